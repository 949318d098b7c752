/**
 * @description
 * Main entry point for the AutoValor API.
 * Initializes the Fiber web server, loads configuration, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - Redis being unreachable is non-fatal; the resolver degrades without its hot cache.
 */

package main

import (
	"log"

	"github.com/autovalor/backend/internal/api"
	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/db"
	"github.com/autovalor/backend/internal/logger"
	"github.com/autovalor/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLog := logger.New(cfg.Server.Env)

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	if err := pgDB.AutoMigrate(
		&models.VehicleSpecification{},
		&models.Listing{},
		&models.Valuation{},
		&models.ScraperRun{},
	); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg, appLog)
	if err != nil {
		appLog.WithError(err).Warn("Redis unavailable, running without hot cache")
		redisClient = nil
	}

	// 3. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "AutoValor Valuation API",
		StrictRouting: true,
		CaseSensitive: true,
	})

	// 4. Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// 5. Routes
	api.SetupRoutes(app, pgDB, redisClient, cfg, appLog)

	// 6. Start Server
	appLog.Infof("Starting AutoValor API on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
