package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/middleware"
	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/service"
	"github.com/stemdeck/api/pkg/response"
)

type ConvertHandler struct {
	service   *service.ConversionService
	validator *validator.Validate
}

func NewConvertHandler(svc *service.ConversionService, v *validator.Validate) *ConvertHandler {
	return &ConvertHandler{
		service:   svc,
		validator: v,
	}
}

// Convert handles POST /api/convert
// @Summary      Start a conversion
// @Description  Record a PENDING job for the URL and process it in the background
// @Tags         Convert
// @Accept       json
// @Produce      json
// @Param        request body model.ConvertRequest true "Conversion request"
// @Success      202 {object} model.ConvertResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/convert [post]
func (h *ConvertHandler) Convert(c *fiber.Ctx) error {
	var req model.ConvertRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if strings.TrimSpace(req.URL) == "" {
		return response.ValidationError(c, "URL is required", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.ServiceError(c, "Failed to start conversion")
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/history/:id/status
// @Summary      Poll conversion status
// @Tags         History
// @Produce      json
// @Param        id path string true "Conversion ID"
// @Success      200 {object} model.Conversion
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/history/{id}/status [get]
func (h *ConvertHandler) Status(c *fiber.Ctx) error {
	conv, err := h.service.Status(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "History record not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, conv)
}

// History handles GET /api/history
func (h *ConvertHandler) History(c *fiber.Ctx) error {
	convs, err := h.service.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, convs)
}

// DeleteHistory handles DELETE /api/history/:id
func (h *ConvertHandler) DeleteHistory(c *fiber.Ctx) error {
	err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "History record not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Message(c, "History record deleted")
}
