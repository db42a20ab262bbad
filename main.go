package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/talka-ai/talka-backend/database"
	"github.com/talka-ai/talka-backend/internal/config"
	"github.com/talka-ai/talka-backend/internal/jobs"
	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/routes"
	"github.com/talka-ai/talka-backend/internal/services"
	"github.com/talka-ai/talka-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect(cfg.Database)

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Channel{},
			&models.AppService{},
			&models.Assistant{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}

	storage.SetStore(store)

	// Initialize services
	graphClient := services.NewGraphClient(cfg.Graph)
	sessionManager := services.NewSignupManager(cfg.Signup.SessionTTL)
	orchestrator := services.NewOrchestrator(store, graphClient, sessionManager, cfg.Signup.SyncDelay)

	// Twilio is optional: without it, provisioning notifications are skipped
	if twilioService, err := services.NewTwilioService(cfg.Twilio); err != nil {
		log.Println("⚠️  Twilio not configured - provisioning notifications disabled")
	} else {
		orchestrator = orchestrator.WithNotifier(twilioService)
		log.Println("✅ Twilio service initialized")
	}

	// Expire abandoned signup sessions in the background
	cleanupJob := jobs.NewCleanupJob(sessionManager, cfg.Signup.SessionTTL)
	cleanupJob.Start()

	log.Println("✅ All services initialized and background jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Talka Backend v1.0.0",
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
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Service info endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "Talka Backend API",
			"version":     "1.0.0",
			"status":      "healthy",
			"environment": getEnvironment(),
			"storage":     getStorageType(),
			"sessions":    sessionManager.ActiveCount(),
		})
	})

	routes.SetupRoutes(app, cfg, store, orchestrator)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping cleanup job...")
		cleanupJob.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 Talka Backend starting on port %s", cfg.Server.Port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("📱 Graph API: %s/%s", cfg.Graph.BaseURL, cfg.Graph.APIVersion)
	log.Println("========================================")

	log.Fatal(app.Listen(":" + cfg.Server.Port))
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
	return "PostgreSQL Database"
}
