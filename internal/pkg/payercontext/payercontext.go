package payercontext

import "github.com/gofiber/fiber/v2"

// GetPayerID returns the payer resolved from the route, or 0 if none was set.
func GetPayerID(c *fiber.Ctx) uint {
	if v, ok := c.Locals(KeyPayerID).(uint); ok {
		return v
	}
	return 0
}

// SetPayerID stores the payer for the rest of the request.
func SetPayerID(c *fiber.Ctx, id uint) {
	c.Locals(KeyPayerID, id)
}

// IsInternalCaller reports whether the request passed the internal token check.
func IsInternalCaller(c *fiber.Ctx) bool {
	v, ok := c.Locals(KeyInternalToken).(bool)
	return ok && v
}
