/**
 * @description
 * API Route definitions.
 * Sets up the router groups, wires services to handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/services
 */

package api

import (
	"github.com/autovalor/backend/internal/api/handlers"
	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/autovalor/backend/internal/pricelookup"
	"github.com/autovalor/backend/internal/scraper"
	"github.com/autovalor/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config, log *logrus.Logger) {
	// 1. Initialize Clients
	decoder := nhtsa.NewClient(cfg.Services.NHTSAURL)
	lookup := pricelookup.NewClient(cfg.Services.PriceAPIURL, cfg.Services.PriceAPIKey)
	sources := scraper.BuildSources(scraper.FetcherOptions{
		RateLimit:  cfg.Scraper.RateLimit,
		Timeout:    cfg.Scraper.Timeout,
		MaxRetries: cfg.Scraper.MaxRetries,
	}, log)

	// 2. Initialize Services
	ingestService := services.NewIngestService(db, decoder, cfg, log)
	acquisitionService := services.NewAcquisitionService(db, sources, ingestService, cfg, log)
	valuationService := services.NewValuationService(db, rdb, decoder, lookup, cfg, log)

	// 3. Initialize Handlers
	valuationHandler := handlers.NewValuationHandler(valuationService)
	acquisitionHandler := handlers.NewAcquisitionHandler(acquisitionService)

	// 4. Define Routes
	apiGroup := app.Group("/api")
	v1 := apiGroup.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Get("/valuations", valuationHandler.GetValuation)
	v1.Post("/valuations/refresh", acquisitionHandler.RefreshValuations)

	acquisition := v1.Group("/acquisition")
	acquisition.Post("/jobs", acquisitionHandler.CreateJob)
}
