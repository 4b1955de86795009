package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/http/middleware"
	"consigaz-valegas/internal/adapters/http/routes"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/pkg/logger"
	"consigaz-valegas/internal/pkg/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	_ "consigaz-valegas/docs" // Swagger docs
)

const (
	eventBuffer = 1000
	bodyLimit   = 32 * 1024 * 1024
)

// @title Consigaz Vale-Gás API
// @version 1.0
// @description Gas voucher benefit: monthly issuance, redemption at distributors and reimbursement.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email suporte@consigaz.com.br

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /
// @schemes https http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey CronKey
// @in header
// @name x-cron-key

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.AppMode)
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	// Connect to database
	db, err := config.ConnectDatabase(cfg, zl)
	if err != nil {
		zl.Fatal("❌ Failed to connect to database", zap.Error(err))
	}
	defer config.CloseDatabase(db) //nolint:errcheck

	if err := models.AutoMigrate(db); err != nil {
		zl.Fatal("❌ Failed to auto migrate", zap.Error(err))
	}
	zl.Info("✅ Database migration completed")

	if err := config.NewSeeder(db, cfg, zl).Run(); err != nil {
		zl.Fatal("❌ Failed to seed settings", zap.Error(err))
	}

	store, err := storage.NewLocalStore(cfg.Upload.Dir)
	if err != nil {
		zl.Fatal("❌ Failed to prepare upload directory", zap.Error(err), zap.String("dir", cfg.Upload.Dir))
	}

	bus := newBus(cfg, zl)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Consigaz Vale-Gás API v1.0",
		BodyLimit:    bodyLimit,
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg, zl)

	// Setup routes
	bg := routes.Setup(app, db, cfg, routes.Deps{Log: zl, Publisher: bus, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notifications consume the bus; delivery failures are logged by the service
	bus.Start(ctx, bg.Notifications.Handle)

	if cfg.Cron.Enabled {
		if err := bg.Cron.Start(); err != nil {
			zl.Fatal("❌ Failed to start scheduler", zap.Error(err))
		}
	} else {
		zl.Info("⏸️ In-process scheduler disabled; use the /api/v1/cron endpoints")
	}

	// Graceful shutdown
	go gracefulShutdown(app, zl)

	// Start server
	zl.Info("🚀 Server starting", zap.String("port", cfg.Port), zap.String("mode", cfg.AppMode))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zl.Error("❌ Failed to start server", zap.Error(err))
	}

	// Listen returned: stop producers before consumers
	if cfg.Cron.Enabled {
		bg.Cron.Stop()
	}
	cancel()
	bus.Close()
	zl.Info("✅ Background workers stopped")
}

// newBus picks Kafka when brokers are configured and the in-process bus otherwise
func newBus(cfg *config.Config, zl *zap.Logger) events.Bus {
	if len(cfg.Kafka.Brokers) > 0 {
		zl.Info("📡 Using Kafka event bus",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
		return events.NewKafkaBus(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, zl)
	}
	zl.Info("📡 Using in-process event bus")
	return events.NewChannelBus(eventBuffer, zl)
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App, zl *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		zl.Error("❌ Error during shutdown", zap.Error(err))
	}
	zl.Info("✅ Server stopped gracefully")
}
