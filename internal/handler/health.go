package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/pkg/response"
)

// EngineSelector reports the separation engine usable right now.
type EngineSelector interface {
	Select(ctx context.Context) (*client.Engine, error)
}

// separationTTL bounds how often health checks probe the interpreter.
// Conversions select their engine per job and never read this cache.
const separationTTL = 30 * time.Second

// HealthHandler reports which optional services are usable.
type HealthHandler struct {
	redis      *redis.Client
	separator  EngineSelector
	dispatcher string
	mirror     bool
	auth       bool

	mu         sync.Mutex
	separation string
	probedAt   time.Time
}

// NewHealthHandler builds the handler. redisClient and separator may be nil.
func NewHealthHandler(redisClient *redis.Client, separator EngineSelector, dispatcher string, mirror, auth bool) *HealthHandler {
	return &HealthHandler{
		redis:      redisClient,
		separator:  separator,
		dispatcher: dispatcher,
		mirror:     mirror,
		auth:       auth,
	}
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  HealthServices `json:"services"`
}

type HealthServices struct {
	Redis      bool   `json:"redis"`
	R2         bool   `json:"r2"`
	Auth       bool   `json:"auth"`
	Dispatcher string `json:"dispatcher"`
	Separation string `json:"separation"`
}

// Health handles GET /health and GET /api/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	services := HealthServices{
		R2:         h.mirror,
		Auth:       h.auth,
		Dispatcher: h.dispatcher,
		Separation: h.separationEngine(ctx),
	}
	if h.redis != nil {
		services.Redis = h.redis.Ping(ctx).Err() == nil
	}

	return response.OK(c, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}

func (h *HealthHandler) separationEngine(ctx context.Context) string {
	if h.separator == nil {
		return "none"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.probedAt.IsZero() && time.Since(h.probedAt) < separationTTL {
		return h.separation
	}

	h.separation = "none"
	if engine, err := h.separator.Select(ctx); err == nil {
		h.separation = engine.Name
	} else if ctx.Err() != nil {
		return h.separation
	}
	h.probedAt = time.Now()
	return h.separation
}
