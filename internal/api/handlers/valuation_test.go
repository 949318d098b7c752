package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func valuationApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:handlers?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.VehicleSpecification{}, &models.Listing{}, &models.Valuation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Valuation: config.ValuationConfig{
			FreshWindow:     7 * 24 * time.Hour,
			ListingLookback: 60 * 24 * time.Hour,
			MinSamplesVIN:   3,
			MinSamplesMMY:   5,
		},
	}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	service := services.NewValuationService(db, nil, nil, nil, cfg, log)
	handler := NewValuationHandler(service)

	app := fiber.New()
	app.Get("/api/v1/valuations", handler.GetValuation)
	return app, db
}

func TestGetValuationRequiresIdentity(t *testing.T) {
	app, _ := valuationApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/valuations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetValuationAnswers(t *testing.T) {
	app, _ := valuationApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/valuations?make=Toyota&model=Camry&year=2018&mileage=60000&state=TX", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var est services.Estimate
	if err := json.NewDecoder(resp.Body).Decode(&est); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if est.Value <= 0 {
		t.Errorf("estimated value = %v, want positive", est.Value)
	}
	if est.Source == "" || est.Confidence == "" {
		t.Errorf("estimate missing provenance: source %q confidence %q", est.Source, est.Confidence)
	}
}

func TestGetValuationFromStoredRow(t *testing.T) {
	app, db := valuationApp(t)

	row := models.Valuation{
		VIN:         "4T1B11HK5KU211111",
		Make:        "Toyota",
		Model:       "Camry",
		Year:        2019,
		AvgPrice:    21000,
		SampleSize:  25,
		LastUpdated: time.Now().UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/valuations?vin=4T1B11HK5KU211111", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var est services.Estimate
	if err := json.NewDecoder(resp.Body).Decode(&est); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if est.Source != services.SourceCachedValuation {
		t.Errorf("source = %s, want %s", est.Source, services.SourceCachedValuation)
	}
	if est.Value != 21000 {
		t.Errorf("value = %v, want 21000", est.Value)
	}
}
