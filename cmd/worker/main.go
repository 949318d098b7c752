/**
 * @description
 * Worker Service Entry Point.
 * Responsible for scheduled background passes over stored listings:
 * 1. Re-aggregating listings into valuation rows.
 * 2. Removing duplicate listings.
 * 3. Pruning listings past the retention horizon.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 */

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/db"
	"github.com/autovalor/backend/internal/logger"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/autovalor/backend/internal/services"
	"github.com/sirupsen/logrus"
)

const maintenanceInterval = 6 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	appLog := logger.New(cfg.Server.Env)
	appLog.Info("Starting AutoValor worker")

	pgDB, err := db.ConnectPostgres(cfg, appLog)
	if err != nil {
		appLog.Fatalf("Postgres connection failed: %v", err)
	}
	if err := pgDB.AutoMigrate(
		&models.VehicleSpecification{},
		&models.Listing{},
		&models.Valuation{},
		&models.ScraperRun{},
	); err != nil {
		appLog.Fatalf("Failed to run migrations: %v", err)
	}

	decoder := nhtsa.NewClient(cfg.Services.NHTSAURL)
	ingest := services.NewIngestService(pgDB, decoder, cfg, appLog)
	acquisition := services.NewAcquisitionService(pgDB, nil, ingest, cfg, appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()

		runMaintenance(ctx, acquisition, ingest, appLog)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runMaintenance(ctx, acquisition, ingest, appLog)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	time.Sleep(1 * time.Second)
	appLog.Info("Worker exited.")
}

// runMaintenance runs one refresh/dedup/prune cycle. Another process holding
// the maintenance lock is routine, not an error.
func runMaintenance(ctx context.Context, acquisition *services.AcquisitionService, ingest *services.IngestService, log *logrus.Logger) {
	log.Info("Running maintenance cycle")

	if _, err := acquisition.RefreshValuations(ctx, 0); err != nil {
		log.WithError(err).Error("valuation refresh failed")
	}

	if _, err := ingest.Dedup(ctx); err != nil {
		if errors.Is(err, services.ErrMaintenanceBusy) {
			log.Info("duplicate pass skipped, lock held elsewhere")
		} else {
			log.WithError(err).Error("duplicate pass failed")
		}
	}

	if _, err := ingest.PruneOld(ctx); err != nil {
		if errors.Is(err, services.ErrMaintenanceBusy) {
			log.Info("retention pass skipped, lock held elsewhere")
		} else {
			log.WithError(err).Error("retention pass failed")
		}
	}
}
