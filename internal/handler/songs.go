package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/middleware"
	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/service"
	"github.com/stemdeck/api/pkg/response"
)

type SongHandler struct {
	service   *service.LibraryService
	validator *validator.Validate
}

func NewSongHandler(svc *service.LibraryService, v *validator.Validate) *SongHandler {
	return &SongHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/songs
// @Summary      List songs
// @Description  List the caller's songs, newest first
// @Tags         Songs
// @Produce      json
// @Param        favorite query bool false "Only favorites"
// @Success      200 {array} model.Song
// @Security     BearerAuth
// @Router       /api/songs [get]
func (h *SongHandler) List(c *fiber.Ctx) error {
	songs, err := h.service.ListSongs(c.UserContext(), middleware.GetUserID(c), c.QueryBool("favorite"))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, songs)
}

// Get handles GET /api/songs/:id
func (h *SongHandler) Get(c *fiber.Ctx) error {
	song, err := h.service.GetSong(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return songError(c, err)
	}
	return response.OK(c, song)
}

// ToggleFavorite handles POST /api/songs/:id/favorite
func (h *SongHandler) ToggleFavorite(c *fiber.Ctx) error {
	song, err := h.service.ToggleFavorite(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return songError(c, err)
	}
	return response.OK(c, song)
}

// Delete handles DELETE /api/songs/:id
func (h *SongHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteSong(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return songError(c, err)
	}
	return response.Message(c, "Song deleted")
}

// Stems handles GET /api/songs/:id/stems
func (h *SongHandler) Stems(c *fiber.Ctx) error {
	stems, err := h.service.ListStems(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return songError(c, err)
	}
	return response.OK(c, stems)
}

// UpdateVolume handles PATCH /api/stems/:id/volume
// @Summary      Set stem volume
// @Description  Store a mixer volume for a stem, clamped to 0..100
// @Tags         Stems
// @Accept       json
// @Produce      json
// @Param        id path string true "Stem ID"
// @Param        request body model.VolumeRequest true "Volume"
// @Success      200 {object} model.Stem
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stems/{id}/volume [patch]
func (h *SongHandler) UpdateVolume(c *fiber.Ctx) error {
	var req model.VolumeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Volume is required", formatValidationErrors(err))
	}

	stem, err := h.service.UpdateStemVolume(c.UserContext(), middleware.GetUserID(c), c.Params("id"), *req.Volume)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "Stem not found")
		}
		return songError(c, err)
	}
	return response.OK(c, stem)
}

// Stats handles GET /api/stats
func (h *SongHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, stats)
}

// Download handles GET /api/download/:id
func (h *SongHandler) Download(c *fiber.Ctx) error {
	download, err := h.service.DownloadSong(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrFileMissing) {
			return response.NotFound(c, "File not found")
		}
		return songError(c, err)
	}
	if download.RedirectURL != "" {
		return c.Redirect(download.RedirectURL, fiber.StatusFound)
	}
	return c.Download(download.LocalPath, download.Filename)
}

func songError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Song not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Not your stem")
	default:
		return response.ServiceError(c, err.Error())
	}
}
