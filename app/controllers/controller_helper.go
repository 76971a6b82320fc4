package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPurchaseLimit = 50
	maxPurchaseLimit     = 200
)

func jsonError(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// queryLimit reads ?limit= and clamps it to (0, maxPurchaseLimit].
func queryLimit(c *fiber.Ctx) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultPurchaseLimit
	}
	if n > maxPurchaseLimit {
		return maxPurchaseLimit
	}
	return n
}
