package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/synthsara/codex/internal/pkg/payercontext"
)

const InternalTokenHeader = "X-Internal-Token"

// InternalTokenMiddleware guards service-to-service routes. With no token
// configured every request is refused.
func InternalTokenMiddleware(token string) fiber.Handler {
	token = strings.TrimSpace(token)
	if token == "" {
		fiberlog.Warn("[API] INTERNAL_API_TOKEN is not set, internal routes are disabled")
	}
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "internal_api_disabled"})
		}
		presented := extractTokenFromHeader(c)
		if presented == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing token"})
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid token"})
		}
		c.Locals(payercontext.KeyInternalToken, true)
		return c.Next()
	}
}

func extractTokenFromHeader(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Get(InternalTokenHeader)); v != "" {
		return v
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
