package controllers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2024, 5, 1, 12, 34, 56, 0, time.Local)
	formatted := formatTimePtr(&now)
	assert.IsType(t, "", formatted)
	assert.Equal(t, now.UTC().Format(time.RFC3339), formatted)
}

func TestQueryLimit(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"limit": queryLimit(c)})
	})

	for query, want := range map[string]string{
		"":           `{"limit":50}`,
		"?limit=5":   `{"limit":5}`,
		"?limit=0":   `{"limit":50}`,
		"?limit=x":   `{"limit":50}`,
		"?limit=999": `{"limit":200}`,
	} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/"+query, nil))
		require.NoError(t, err)
		assert.Equal(t, want, readBody(t, resp), query)
	}
}
