package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/nimbuscrm/nimbus-backend/database"
	"github.com/nimbuscrm/nimbus-backend/internal/jobs"
	"github.com/nimbuscrm/nimbus-backend/internal/models"
	"github.com/nimbuscrm/nimbus-backend/internal/routes"
	"github.com/nimbuscrm/nimbus-backend/internal/services"
	"github.com/nimbuscrm/nimbus-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	mediaDir := filepath.Join(dataDir, "media")

	webhookURL := os.Getenv("WEBHOOK_URL")
	if webhookURL == "" {
		log.Println("⚠️  WEBHOOK_URL not set - gateway events will be logged and dropped")
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		if err := database.DB.AutoMigrate(&models.Number{}); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}
	storage.SetStore(store)

	// Initialize gateway services
	mediaStore, err := services.NewMediaStore(mediaDir)
	if err != nil {
		log.Fatal("Failed to initialize media store:", err)
	}
	profileCache := services.NewProfileCache()
	dispatcher := services.NewWebhookDispatcher(webhookURL)

	registry := services.NewSessionRegistry(dataDir, dispatcher, mediaStore, profileCache)
	services.SetRegistry(registry)

	numberService := services.NewNumberService(registry, store)
	services.SetNumberService(numberService)

	// Restore sessions that still hold paired credentials
	log.Println("🔄 Restoring persisted sessions...")
	registry.RestoreAll(context.Background())

	// Start scheduled jobs
	mediaCleanup := jobs.NewMediaCleanupJob(mediaDir)
	mediaCleanup.Start()

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Nimbus WhatsApp Gateway v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, numberService, mediaDir)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping media cleanup job...")
		mediaCleanup.Stop()
		log.Println("⏹️  Disconnecting sessions...")
		registry.Shutdown()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 Nimbus WhatsApp Gateway starting on port %s", port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("📱 Sessions restored: %d", len(registry.List()))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func getEnvironment() string {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "Production (Cloud Run)"
	}
	return "Development (Local)"
}

func getStorageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL"
}
