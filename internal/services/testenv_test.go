package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// testDB opens an isolated in-memory database; the sequence number keeps
// databases distinct even when one test opens several
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.VehicleSpecification{},
		&models.Listing{},
		&models.Valuation{},
		&models.ScraperRun{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Valuation: config.ValuationConfig{
			FreshWindow:      7 * 24 * time.Hour,
			ListingLookback:  60 * 24 * time.Hour,
			DedupLookback:    30 * 24 * time.Hour,
			RetentionHorizon: 90 * 24 * time.Hour,
			MinSamplesVIN:    3,
			MinSamplesMMY:    5,
			MinSamplesBatch:  5,
			ResolveCacheTTL:  5 * time.Minute,
		},
		Scraper: config.ScraperConfig{
			MaxRetries: 1,
			MaxResults: 100,
		},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// fakeDecoder serves canned decode results and counts calls
type fakeDecoder struct {
	vehicles map[string]*nhtsa.DecodedVehicle
	calls    int
}

func (d *fakeDecoder) Decode(_ context.Context, vin string) (*nhtsa.DecodedVehicle, error) {
	d.calls++
	if v, ok := d.vehicles[vin]; ok {
		return v, nil
	}
	return nil, nhtsa.ErrNotFound
}

func decoderFor(vin, mk, model string, year int) *fakeDecoder {
	return &fakeDecoder{vehicles: map[string]*nhtsa.DecodedVehicle{
		vin: {VIN: vin, Make: mk, Model: model, Year: year, Raw: []byte(`{}`)},
	}}
}

// fakeLookup returns a fixed price, or fails when price is zero
type fakeLookup struct {
	price float64
	calls int
}

func (l *fakeLookup) Lookup(context.Context, string, string, int) (float64, error) {
	l.calls++
	if l.price <= 0 {
		return 0, fmt.Errorf("lookup unavailable")
	}
	return l.price, nil
}

const testVIN = "4T1B11HK5KU211111"

func seedListings(t *testing.T, db *gorm.DB, vin string, prices ...float64) {
	t.Helper()
	for i, p := range prices {
		l := models.Listing{
			Price:      p,
			Source:     "cars.com",
			ListingURL: fmt.Sprintf("https://x/%s/%d", vin, i),
			ScrapedAt:  time.Now().UTC().Add(-time.Duration(i) * time.Hour),
		}
		if vin != "" {
			v := vin
			l.VIN = &v
		}
		if err := db.Create(&l).Error; err != nil {
			t.Fatalf("seed listing: %v", err)
		}
	}
}

func seedSpec(t *testing.T, db *gorm.DB, vin, mk, model string, year int) {
	t.Helper()
	spec := models.VehicleSpecification{VIN: vin, Make: mk, Model: model, Year: year}
	if err := db.Create(&spec).Error; err != nil {
		t.Fatalf("seed spec: %v", err)
	}
}
