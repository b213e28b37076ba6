package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"mailflow/config"
	"mailflow/middleware"
	"mailflow/routes"
	"mailflow/utils"
	"mailflow/worker"
)

func main() {
	logger := log.New(os.Stdout, "MAILFLOW: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if err := utils.InitSentry(config.AppConfig.SentryDSN, config.AppConfig.Environment); err != nil {
		logger.Printf("Failed to initialize Sentry: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize and start the execution runner
	mailer := utils.NewGomailService()
	automationWorker := worker.NewAutomationWorker(config.DB, mailer, log.New(os.Stdout, "RUNNER: ", log.LstdFlags))
	go automationWorker.Start(ctx)

	// Start the date-based trigger sweeps
	triggerWorker := worker.NewTriggerWorker(config.DB, log.New(os.Stdout, "TRIGGER: ", log.LstdFlags))
	go triggerWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
