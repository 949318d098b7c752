/**
 * @description
 * Listing ingestion pipeline.
 * Validates scraped candidates, enriches VIN-bearing ones through the decode
 * registry (memoized per service instance, bounded), persists listings, and owns
 * the duplicate and retention passes over stored listings.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/nhtsa
 * - backend/internal/scraper
 * - github.com/sirupsen/logrus
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/autovalor/backend/internal/scraper"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// decodeCacheCap bounds the in-process VIN decode memo; the map is flushed
	// when full rather than growing without limit
	decodeCacheCap = 1000

	maintenanceLockKey = 7431
)

// ErrMaintenanceBusy means another process holds the maintenance lock
var ErrMaintenanceBusy = errors.New("maintenance pass already running")

// VINDecoder resolves a VIN to its specification fields
type VINDecoder interface {
	Decode(ctx context.Context, vin string) (*nhtsa.DecodedVehicle, error)
}

// BatchStats summarizes one ingestion batch
type BatchStats struct {
	Total  int `json:"total"`
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

type IngestService struct {
	DB      *gorm.DB
	Decoder VINDecoder
	Cfg     *config.Config
	Log     *logrus.Logger

	// serializes ingestion against the maintenance passes in-process; the
	// advisory lock covers other processes
	mu sync.Mutex

	cacheMu     sync.Mutex
	decodeCache map[string]*models.VehicleSpecification
}

func NewIngestService(db *gorm.DB, decoder VINDecoder, cfg *config.Config, log *logrus.Logger) *IngestService {
	return &IngestService{
		DB:          db,
		Decoder:     decoder,
		Cfg:         cfg,
		Log:         log,
		decodeCache: make(map[string]*models.VehicleSpecification),
	}
}

// ProcessBatch validates and persists a batch of candidates. Failures are
// per-candidate: a bad decode or insert is counted and the batch continues.
func (s *IngestService) ProcessBatch(ctx context.Context, cands []scraper.Candidate) BatchStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := BatchStats{Total: len(cands)}
	for _, c := range cands {
		if err := s.processOne(ctx, c); err != nil {
			stats.Failed++
			s.Log.WithError(err).WithField("source", c.Source).Warn("candidate rejected")
			continue
		}
		stats.Saved++
	}

	s.Log.WithFields(logrus.Fields{
		"total": stats.Total, "saved": stats.Saved, "failed": stats.Failed,
	}).Info("ingestion batch complete")
	return stats
}

func (s *IngestService) processOne(ctx context.Context, c scraper.Candidate) error {
	if !c.Valid() {
		return fmt.Errorf("candidate missing price or source")
	}

	listing := models.Listing{
		Price:         *c.Price,
		OriginalPrice: c.OriginalPrice,
		Mileage:       c.Mileage,
		Condition:     c.Condition,
		City:          c.City,
		State:         c.State,
		ZipCode:       c.ZipCode,
		Source:        c.Source,
		ListingURL:    c.ListingURL,
		ListingID:     c.ListingID,
		ListingDate:   c.ListingDate,
		ScrapedAt:     time.Now().UTC(),
		DealerName:    c.DealerName,
	}
	if listing.Condition == "" {
		listing.Condition = "used"
	}
	if len(c.Features) > 0 {
		if raw, err := json.Marshal(c.Features); err == nil {
			listing.Features = datatypes.JSON(raw)
		}
	}

	// A well-formed VIN must decode before the listing may reference it; a
	// candidate with no usable VIN is persisted unlinked and only ever pooled
	// by make/model/year
	if nhtsa.WellFormedVIN(c.VIN) {
		spec, err := s.getOrCreateSpec(ctx, c.VIN)
		if err != nil {
			return fmt.Errorf("vin %s: %w", c.VIN, err)
		}
		listing.VIN = &spec.VIN
	}

	if err := s.DB.WithContext(ctx).Create(&listing).Error; err != nil {
		return fmt.Errorf("persist listing: %w", err)
	}
	return nil
}

// getOrCreateSpec resolves a specification row for the VIN, hitting the decode
// registry at most once per unseen VIN per service instance
func (s *IngestService) getOrCreateSpec(ctx context.Context, vin string) (*models.VehicleSpecification, error) {
	s.cacheMu.Lock()
	if spec, ok := s.decodeCache[vin]; ok {
		s.cacheMu.Unlock()
		return spec, nil
	}
	s.cacheMu.Unlock()

	var spec models.VehicleSpecification
	err := s.DB.WithContext(ctx).First(&spec, "vin = ?", vin).Error
	if err == nil {
		s.memoize(vin, &spec)
		return &spec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	decoded, err := s.Decoder.Decode(ctx, vin)
	if err != nil {
		return nil, err
	}

	spec = models.VehicleSpecification{
		VIN:                decoded.VIN,
		Make:               decoded.Make,
		Model:              decoded.Model,
		Year:               decoded.Year,
		Trim:               decoded.Trim,
		BodyType:           decoded.BodyType,
		VehicleType:        decoded.VehicleType,
		Manufacturer:       decoded.Manufacturer,
		EngineCylinders:    decoded.EngineCylinders,
		EngineDisplacement: decoded.EngineDisplacement,
		FuelType:           decoded.FuelType,
		Transmission:       decoded.Transmission,
		DriveType:          decoded.DriveType,
		Doors:              decoded.Doors,
		PlantCity:          decoded.PlantCity,
		PlantCountry:       decoded.PlantCountry,
		Source:             "NHTSA",
		RawData:            datatypes.JSON(decoded.Raw),
	}
	if err := s.DB.WithContext(ctx).Create(&spec).Error; err != nil {
		return nil, fmt.Errorf("persist spec: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"vin": vin, "make": spec.Make, "model": spec.Model, "year": spec.Year,
	}).Info("created vehicle specification")

	s.memoize(vin, &spec)
	return &spec, nil
}

func (s *IngestService) memoize(vin string, spec *models.VehicleSpecification) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if len(s.decodeCache) >= decodeCacheCap {
		s.decodeCache = make(map[string]*models.VehicleSpecification)
	}
	s.decodeCache[vin] = spec
}

// Dedup removes duplicate listings by external URL within the lookback window,
// keeping the most recently observed row of each group. Running it twice in a
// row removes nothing the second time.
func (s *IngestService) Dedup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireMaintenanceLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-s.Cfg.Valuation.DedupLookback)

	var urls []string
	err = s.DB.WithContext(ctx).
		Model(&models.Listing{}).
		Where("scraped_at >= ? AND listing_url <> ''", cutoff).
		Group("listing_url").
		Having("COUNT(id) > 1").
		Pluck("listing_url", &urls).Error
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, u := range urls {
		// one transaction per duplicate group so a mid-pass failure cannot
		// leave a group half-deleted
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var group []models.Listing
			if err := tx.Where("listing_url = ?", u).
				Order("scraped_at DESC").
				Find(&group).Error; err != nil {
				return err
			}
			for _, stale := range group[1:] {
				if err := tx.Delete(&models.Listing{}, stale.ID).Error; err != nil {
					return err
				}
				removed++
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
	}

	s.Log.WithField("removed", removed).Info("duplicate pass complete")
	return removed, nil
}

// PruneOld deletes listings older than the retention horizon
func (s *IngestService) PruneOld(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireMaintenanceLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-s.Cfg.Valuation.RetentionHorizon)

	res := s.DB.WithContext(ctx).Where("scraped_at < ?", cutoff).Delete(&models.Listing{})
	if res.Error != nil {
		return 0, res.Error
	}

	s.Log.WithField("deleted", res.RowsAffected).Info("retention pass complete")
	return res.RowsAffected, nil
}

// acquireMaintenanceLock takes the cross-process advisory lock. Only Postgres
// has advisory locks; other dialects rely on the in-process mutex alone.
func (s *IngestService) acquireMaintenanceLock(ctx context.Context) (func(), error) {
	if s.DB.Dialector.Name() != "postgres" {
		return func() {}, nil
	}

	var locked bool
	if err := s.DB.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", maintenanceLockKey).Scan(&locked).Error; err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrMaintenanceBusy
	}
	return func() {
		if err := s.DB.WithContext(ctx).Exec("SELECT pg_advisory_unlock(?)", maintenanceLockKey).Error; err != nil {
			s.Log.WithError(err).Warn("failed to release maintenance lock")
		}
	}, nil
}
