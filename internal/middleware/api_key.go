package middleware

import (
	"crypto/subtle"
	"os"

	"github.com/gofiber/fiber/v2"
)

// RequireAPIKey validates the X-API-Key header against GATEWAY_API_KEY.
// When the variable is unset the check is skipped, which keeps local
// development friction-free.
func RequireAPIKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := os.Getenv("GATEWAY_API_KEY")
		if expected == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if provided == "" {
			return c.Status(401).JSON(fiber.Map{
				"error": "Missing API key",
			})
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.Status(401).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		return c.Next()
	}
}
