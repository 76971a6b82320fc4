package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/synthsara/codex/internal/pkg/payercontext"
)

// RequirePayerParam parses the :id route parameter into the request locals.
func RequirePayerParam(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payer_id"})
	}
	payercontext.SetPayerID(c, uint(id))
	return c.Next()
}
