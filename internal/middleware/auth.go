package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/auth"
	"github.com/stemdeck/api/pkg/response"
)

// AuthMiddleware accepts session tokens issued by this service and, when a
// verifier is configured, tokens from the external identity provider.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthMiddleware builds the middleware. verifier may be nil.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Authenticate reads the token from the Authorization header, or from the
// token query parameter for media elements that cannot set headers.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Access token required")
		}

		if claims, err := auth.ValidateSessionToken(tokenString, m.jwtSecret); err == nil {
			c.Locals("userId", claims.UserID)
			c.Locals("email", claims.Email)
			return c.Next()
		}

		if m.verifier != nil {
			if claims, err := m.verifier.Validate(tokenString); err == nil {
				c.Locals("userId", claims.UserID)
				c.Locals("email", claims.Email)
				c.Locals("name", claims.Name)
				return c.Next()
			}
		}

		return response.Forbidden(c, "Invalid or expired token")
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetUserID returns the authenticated user's id, or "".
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}
