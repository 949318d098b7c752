package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/services"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func acquisitionApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:handlers_acq?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.VehicleSpecification{}, &models.Listing{}, &models.Valuation{}, &models.ScraperRun{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Valuation: config.ValuationConfig{
			ListingLookback: 60 * 24 * time.Hour,
			MinSamplesBatch: 5,
		},
	}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	ingest := services.NewIngestService(db, nil, cfg, log)
	service := services.NewAcquisitionService(db, nil, ingest, cfg, log)
	handler := NewAcquisitionHandler(service)

	app := fiber.New()
	app.Post("/api/v1/valuations/refresh", handler.RefreshValuations)
	return app, db
}

func TestRefreshValuationsHandler(t *testing.T) {
	app, db := acquisitionApp(t)

	vin := "4T1B11HK5KU211111"
	if err := db.Create(&models.VehicleSpecification{VIN: vin, Make: "Toyota", Model: "Camry", Year: 2019}).Error; err != nil {
		t.Fatalf("seed spec: %v", err)
	}
	for i := 0; i < 3; i++ {
		l := models.Listing{
			VIN:        &vin,
			Price:      20000 + float64(i)*1000,
			Source:     "cars.com",
			ListingURL: fmt.Sprintf("https://x/%d", i),
			ScrapedAt:  time.Now().UTC(),
		}
		if err := db.Create(&l).Error; err != nil {
			t.Fatalf("seed listing: %v", err)
		}
	}

	// the minimum sample size comes from the JSON body
	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuations/refresh",
		strings.NewReader(`{"min_sample_size": 3}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result services.RefreshResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1 with the body's threshold of 3", result.Created)
	}

	// an empty body falls back to the configured batch minimum (5), which the
	// three listings do not meet
	req = httptest.NewRequest(http.MethodPost, "/api/v1/valuations/refresh", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty body status = %d, want 200", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.Created != 0 {
		t.Errorf("created = %d, want 0 at the default threshold", result.Created)
	}
}
