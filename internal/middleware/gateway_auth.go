package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/stemdeck/api/pkg/response"
)

// Identity headers set by the ForwardAuth proxy.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// GatewayAuthMiddleware trusts the identity headers of a ForwardAuth proxy
// in front of the API. Header values alias the request buffer and must be
// copied before they outlive the request.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := utils.CopyString(c.Get(HeaderUserID))
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", utils.CopyString(c.Get(HeaderUserEmail)))
		c.Locals("name", utils.CopyString(c.Get(HeaderUserName)))
		return c.Next()
	}
}
