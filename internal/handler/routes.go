package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/middleware"
	"github.com/stemdeck/api/pkg/response"
)

// Routes collects everything mounted on the app. Limiter may be nil.
type Routes struct {
	Authenticate fiber.Handler
	Limiter      *middleware.RateLimiter
	Limits       config.RateLimitConfig
	Storage      config.StorageConfig

	Convert *ConvertHandler
	Songs   *SongHandler
	Auth    *AuthHandler
	Health  *HealthHandler
}

// Mount registers every route on app.
func (r *Routes) Mount(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	app.Get("/health", r.Health.Health)

	app.Static(config.UploadsRoute, r.Storage.UploadsDir)
	app.Static(config.StemsRoute, r.Storage.StemsDir)

	public := app.Group("/api")
	public.Get("/health", r.Health.Health)

	authRoutes := public.Group("/auth", r.Limiter.AuthLimit(r.Limits.AuthPerMin))
	authRoutes.Post("/register", r.Auth.Register)
	authRoutes.Post("/login", r.Auth.Login)

	authn := r.Authenticate
	public.Post("/convert", authn, r.Limiter.ConvertLimit(r.Limits.ConvertPerHour), r.Convert.Convert)

	history := public.Group("/history", authn)
	history.Get("/", r.Convert.History)
	history.Get("/:id/status", r.Convert.Status)
	history.Delete("/:id", r.Convert.DeleteHistory)

	songs := public.Group("/songs", authn)
	songs.Get("/", r.Songs.List)
	songs.Get("/:id", r.Songs.Get)
	songs.Get("/:id/stems", r.Songs.Stems)
	songs.Post("/:id/favorite", r.Songs.ToggleFavorite)
	songs.Delete("/:id", r.Songs.Delete)

	public.Patch("/stems/:id/volume", authn, r.Songs.UpdateVolume)
	public.Get("/stats", authn, r.Songs.Stats)
	public.Get("/download/:id", authn, r.Songs.Download)
}

// ErrorHandler renders errors that escape a handler in the standard
// envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	errorCode := response.CodeServiceError
	if code == fiber.StatusNotFound {
		errorCode = response.CodeNotFound
	}
	return response.Error(c, code, errorCode, message, nil)
}
