package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/service"
	"github.com/stemdeck/api/pkg/response"
)

type AuthHandler struct {
	service   *service.AuthService
	validator *validator.Validate
}

func NewAuthHandler(svc *service.AuthService, v *validator.Validate) *AuthHandler {
	return &AuthHandler{
		service:   svc,
		validator: v,
	}
}

// Register handles POST /api/auth/register
// @Summary      Register
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body model.RegisterRequest true "New account"
// @Success      201 {object} model.AuthResponse
// @Failure      400 {object} response.ErrorResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "All fields are required", formatValidationErrors(err))
	}

	result, err := h.service.Register(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return response.BadRequest(c, "Email already registered")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, result)
}

// Login handles POST /api/auth/login
// @Summary      Login
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body model.LoginRequest true "Credentials"
// @Success      200 {object} model.AuthResponse
// @Failure      401 {object} response.ErrorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Email and password are required", formatValidationErrors(err))
	}

	result, err := h.service.Login(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return response.Unauthorized(c, "Invalid credentials")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}
