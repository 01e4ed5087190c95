package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"library-circulation/internal/adapters/http/middleware"
	"library-circulation/internal/adapters/http/routes"
	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/config"
	"library-circulation/internal/core/services"

	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	// Notification dispatcher: log always, webhook when configured
	sinks := []services.NotificationSink{services.LogSink{}}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, services.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken, cfg.Notify.WebhookSecret))
	}
	dispatcher := services.NewNotificationDispatcher(cfg.Notify.Buffer, cfg.Notify.Workers, sinks...)
	dispatcher.Start()
	defer dispatcher.Stop()

	circ := services.NewCirculation(db, cfg.Policy, dispatcher, services.SystemClock(), services.ULIDGenerator())

	// Start Cron Service for overdue sweep, hold expiry and due-soon reminders
	cronService := services.NewCronService(circ.Loans, circ.Waitlist, services.Schedule{
		OverdueSweep: cfg.Schedule.OverdueSweep,
		HoldExpiry:   cfg.Schedule.HoldExpiry,
		DueSoon:      cfg.Schedule.DueSoon,
	})
	if err := cronService.Start(); err != nil {
		log.Fatalf("❌ Failed to start cron service: %v", err)
	}
	defer cronService.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Library Circulation API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes
	routes.Setup(app, circ, cfg)

	// Graceful shutdown
	go gracefulShutdown(app)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("❌ Server stopped: %v", err)
	}
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
