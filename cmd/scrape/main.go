/**
 * @description
 * One-shot acquisition run from the command line.
 * Scrapes the configured sources for one make/model/year and ingests the results.
 */

package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/db"
	"github.com/autovalor/backend/internal/logger"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/autovalor/backend/internal/scraper"
	"github.com/autovalor/backend/internal/services"
)

func main() {
	makeFlag := flag.String("make", "", "vehicle make (required)")
	modelFlag := flag.String("model", "", "vehicle model (required)")
	yearFlag := flag.Int("year", 0, "model year (optional)")
	maxFlag := flag.Int("max", 0, "max results per source (0 = configured default)")
	sourcesFlag := flag.String("sources", "", "comma-separated source names (empty = all)")
	refreshFlag := flag.Bool("refresh", true, "refresh valuations after the run")
	flag.Parse()

	if *makeFlag == "" || *modelFlag == "" {
		log.Fatal("both -make and -model are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	appLog := logger.New(cfg.Server.Env)

	pgDB, err := db.ConnectPostgres(cfg, appLog)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := pgDB.AutoMigrate(
		&models.VehicleSpecification{},
		&models.Listing{},
		&models.Valuation{},
		&models.ScraperRun{},
	); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	decoder := nhtsa.NewClient(cfg.Services.NHTSAURL)
	sources := scraper.BuildSources(scraper.FetcherOptions{
		RateLimit:  cfg.Scraper.RateLimit,
		Timeout:    cfg.Scraper.Timeout,
		MaxRetries: cfg.Scraper.MaxRetries,
	}, appLog)
	ingest := services.NewIngestService(pgDB, decoder, cfg, appLog)
	acquisition := services.NewAcquisitionService(pgDB, sources, ingest, cfg, appLog)

	params := services.JobParams{
		Make:                *makeFlag,
		Model:               *modelFlag,
		MaxResultsPerSource: *maxFlag,
	}
	if *yearFlag > 0 {
		params.Year = yearFlag
	}
	if *sourcesFlag != "" {
		params.Sources = strings.Split(*sourcesFlag, ",")
	}

	ctx := context.Background()

	result, err := acquisition.RunJob(ctx, params)
	if err != nil {
		log.Fatalf("acquisition job failed: %v", err)
	}
	log.Printf("run %s: found %d, saved %d (%.1fs)", result.RunID, result.TotalFound, result.TotalSaved, result.Duration)
	for name, sr := range result.PerSource {
		log.Printf("  %s: %d listings over %d pages (%d requests, %d errors)", name, sr.Found, sr.Pages, sr.Requests, sr.Errors)
	}
	for _, e := range result.Errors {
		log.Printf("  error: %s", e)
	}

	if *refreshFlag {
		refresh, err := acquisition.RefreshValuations(ctx, 0)
		if err != nil {
			log.Fatalf("valuation refresh failed: %v", err)
		}
		log.Printf("valuations: %d updated, %d created", refresh.Updated, refresh.Created)
	}
}
