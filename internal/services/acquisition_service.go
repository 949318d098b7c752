/**
 * @description
 * Acquisition orchestration: runs the source scrapers for one target identity,
 * feeds the ingestion pipeline, and records the audit row. Also owns the
 * scheduled valuation refresh that re-aggregates stored listings per VIN.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/scraper
 * - backend/internal/valuation
 * - github.com/jackc/pgconn (serialization-failure retry)
 */

package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/scraper"
	"github.com/autovalor/backend/internal/valuation"
	"github.com/jackc/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobParams describes one acquisition job
type JobParams struct {
	Make                string   `json:"make"`
	Model               string   `json:"model"`
	Year                *int     `json:"year,omitempty"`
	MaxResultsPerSource int      `json:"max_results_per_source"`
	Sources             []string `json:"sources,omitempty"` // empty = all registered sources
}

// SourceResult is the per-source outcome of a job
type SourceResult struct {
	Found    int   `json:"found"`
	Pages    int   `json:"pages"`
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
}

// JobResult is the overall outcome of a job
type JobResult struct {
	RunID      string                  `json:"run_id"`
	TotalFound int                     `json:"total_found"`
	TotalSaved int                     `json:"total_saved"`
	PerSource  map[string]SourceResult `json:"per_source"`
	Errors     []string                `json:"errors,omitempty"`
	Duration   float64                 `json:"duration_seconds"`
}

// RefreshResult summarizes a valuation refresh pass
type RefreshResult struct {
	Updated int `json:"updated"`
	Created int `json:"created"`
}

type AcquisitionService struct {
	DB      *gorm.DB
	Sources []scraper.Source
	Ingest  *IngestService
	Cfg     *config.Config
	Log     *logrus.Logger
}

func NewAcquisitionService(db *gorm.DB, sources []scraper.Source, ingest *IngestService, cfg *config.Config, log *logrus.Logger) *AcquisitionService {
	return &AcquisitionService{
		DB:      db,
		Sources: sources,
		Ingest:  ingest,
		Cfg:     cfg,
		Log:     log,
	}
}

// RunJob scrapes each requested source in turn, ingests the pooled candidates,
// and writes the audit row. A source failing never aborts its siblings; its
// partial results still count.
func (s *AcquisitionService) RunJob(ctx context.Context, p JobParams) (*JobResult, error) {
	if p.Make == "" || p.Model == "" {
		return nil, fmt.Errorf("make and model are required")
	}
	if p.MaxResultsPerSource <= 0 {
		p.MaxResultsPerSource = s.Cfg.Scraper.MaxResults
	}

	sources := s.selectSources(p.Sources)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no matching sources")
	}

	run := models.ScraperRun{
		Sources:   strings.Join(sourceNames(sources), ","),
		Make:      p.Make,
		Model:     p.Model,
		Year:      p.Year,
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	result := &JobResult{
		RunID:     run.ID,
		PerSource: make(map[string]SourceResult, len(sources)),
	}

	query := scraper.Query{
		Make:       p.Make,
		Model:      p.Model,
		Year:       p.Year,
		MaxResults: p.MaxResultsPerSource,
		ZipCode:    s.Cfg.Scraper.ZipCode,
		RadiusMi:   s.Cfg.Scraper.RadiusMi,
	}

	var pooled []scraper.Candidate
	for _, src := range sources {
		cands, stats, err := src.ScrapeListings(ctx, query)
		result.PerSource[src.Name()] = SourceResult{
			Found:    stats.Found,
			Pages:    stats.Pages,
			Requests: stats.Requests,
			Errors:   stats.Errors,
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", src.Name(), err))
			s.Log.WithError(err).WithField("source", src.Name()).Warn("source run failed, keeping partial results")
		}
		pooled = append(pooled, cands...)
	}
	result.TotalFound = len(pooled)

	if len(pooled) > 0 {
		batch := s.Ingest.ProcessBatch(ctx, pooled)
		result.TotalSaved = batch.Saved
	}

	now := time.Now().UTC()
	result.Duration = now.Sub(run.StartedAt).Seconds()

	run.CompletedAt = &now
	run.Status = models.RunStatusCompleted
	if result.TotalFound == 0 && len(result.Errors) == len(sources) {
		run.Status = models.RunStatusFailed
	}
	run.ListingsFound = result.TotalFound
	run.ListingsSaved = result.TotalSaved
	run.ErrorsCount = len(result.Errors)
	run.DurationSeconds = result.Duration
	run.ErrorDetail = strings.Join(result.Errors, "; ")
	if err := s.DB.WithContext(ctx).Save(&run).Error; err != nil {
		s.Log.WithError(err).Warn("failed to finalize run record")
	}

	s.Log.WithFields(logrus.Fields{
		"run_id": run.ID, "found": result.TotalFound, "saved": result.TotalSaved,
	}).Info("acquisition job complete")
	return result, nil
}

// RefreshValuations re-aggregates recent listings for every VIN with at least
// minSampleSize priced observations and upserts the valuation rows
func (s *AcquisitionService) RefreshValuations(ctx context.Context, minSampleSize int) (*RefreshResult, error) {
	if minSampleSize <= 0 {
		minSampleSize = s.Cfg.Valuation.MinSamplesBatch
	}
	cutoff := time.Now().UTC().Add(-s.Cfg.Valuation.ListingLookback)

	var vins []string
	err := s.DB.WithContext(ctx).
		Model(&models.Listing{}).
		Where("vin IS NOT NULL AND scraped_at >= ?", cutoff).
		Group("vin").
		Having("COUNT(id) >= ?", minSampleSize).
		Pluck("vin", &vins).Error
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{}
	for _, vin := range vins {
		var listings []models.Listing
		if err := s.DB.WithContext(ctx).
			Where("vin = ? AND scraped_at >= ?", vin, cutoff).
			Find(&listings).Error; err != nil {
			s.Log.WithError(err).WithField("vin", vin).Warn("refresh: load listings failed")
			continue
		}

		stats, err := valuation.Aggregate(listingSamples(listings), minSampleSize)
		if err != nil {
			continue
		}

		var existing int64
		s.DB.WithContext(ctx).Model(&models.Valuation{}).Where("vin = ?", vin).Count(&existing)

		var spec models.VehicleSpecification
		_ = s.DB.WithContext(ctx).First(&spec, "vin = ?", vin).Error

		if err := upsertValuation(ctx, s.DB, vin, spec.Make, spec.Model, spec.Year, stats); err != nil {
			s.Log.WithError(err).WithField("vin", vin).Warn("refresh: upsert failed")
			continue
		}
		if existing > 0 {
			result.Updated++
		} else {
			result.Created++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"updated": result.Updated, "created": result.Created,
	}).Info("valuation refresh complete")
	return result, nil
}

func (s *AcquisitionService) selectSources(names []string) []scraper.Source {
	if len(names) == 0 {
		return s.Sources
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = struct{}{}
	}
	var out []scraper.Source
	for _, src := range s.Sources {
		if _, ok := want[src.Name()]; ok {
			out = append(out, src)
		}
	}
	return out
}

func sourceNames(sources []scraper.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name()
	}
	return out
}

// listingSamples projects stored listings into aggregation samples
func listingSamples(listings []models.Listing) []valuation.Sample {
	out := make([]valuation.Sample, 0, len(listings))
	for _, l := range listings {
		out = append(out, valuation.Sample{Price: l.Price, Mileage: l.Mileage})
	}
	return out
}

// upsertValuation writes one cache entry, retrying deadlock/serialization
// failures with a short randomized backoff
func upsertValuation(ctx context.Context, db *gorm.DB, vin, mk, model string, year int, stats *valuation.Stats) error {
	row := models.Valuation{
		VIN:          vin,
		Make:         mk,
		Model:        model,
		Year:         year,
		RetailValue:  stats.RetailValue,
		TradeInValue: stats.TradeInValue,
		AvgPrice:     stats.Mean,
		MedianPrice:  stats.Median,
		MinPrice:     stats.Min,
		MaxPrice:     stats.Max,
		StdDev:       stats.StdDev,
		SampleSize:   stats.SampleSize,
		AvgMileage:   stats.AvgMileage,
		Confidence:   string(stats.Confidence),
		LastUpdated:  time.Now().UTC(),
	}

	const maxRetries = 5
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vin"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"make", "model", "year",
				"retail_value", "trade_in_value",
				"avg_price", "median_price", "min_price", "max_price", "std_dev",
				"sample_size", "avg_mileage", "confidence", "last_updated",
			}),
		}).Create(&row).Error
		if err == nil {
			return nil
		}

		if pgErr, ok := err.(*pgconn.PgError); ok && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
			backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		break
	}
	return err
}
