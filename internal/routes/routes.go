package routes

import (
	"time"

	"github.com/nimbuscrm/nimbus-backend/internal/handlers"
	"github.com/nimbuscrm/nimbus-backend/internal/middleware"
	"github.com/nimbuscrm/nimbus-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, numberService *services.NumberService, mediaDir string) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Nimbus WhatsApp Gateway!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":  "/health",
				"numbers": "/api/numbers",
				"media":   "/media",
			},
		})
	})

	// Health check
	healthHandler := handlers.NewHealthHandler("1.0.0")
	app.Get("/health", healthHandler.Check)

	// Downloaded media, served by storage key. Keys are content-addressed
	// so a long client cache is safe.
	app.Static("/media", mediaDir, fiber.Static{
		MaxAge: int((72 * time.Hour).Seconds()),
	})

	// ========== NUMBER ROUTES ==========
	numberHandler := handlers.NewNumberHandler(numberService)

	api := app.Group("/api", middleware.RequireAPIKey())

	numbers := api.Group("/numbers")
	numbers.Post("/", numberHandler.Create)
	numbers.Get("/", numberHandler.List)
	numbers.Get("/:id/qr", numberHandler.GetQR)
	numbers.Get("/:id/status", numberHandler.GetStatus)
	numbers.Post("/:id/send", numberHandler.SendText)
	numbers.Post("/:id/send-media", numberHandler.SendMedia)
	numbers.Post("/:id/disconnect", numberHandler.Disconnect)
	numbers.Delete("/:id", numberHandler.Delete)
}
