/**
 * @description
 * Tiered valuation resolver. Works down a ladder of progressively cheaper
 * evidence until something answers:
 *
 *   0. hot cache (Redis, short TTL)
 *   1. fresh stored valuation for the VIN
 *   2. on-demand aggregation of the VIN's own recent listings
 *   3. pooled aggregation across the make/model/year cohort
 *   4. best-effort external price lookup
 *   5. deterministic depreciation model (cannot fail)
 *
 * Redis being down never fails a request; the hot cache degrades silently.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/redis/go-redis/v9
 * - backend/internal/valuation
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autovalor/backend/internal/config"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/nhtsa"
	"github.com/autovalor/backend/internal/valuation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Estimate sources, in resolution order
const (
	SourceCachedValuation = "cached_valuation"
	SourceMarketListings  = "market_listings"
	SourceWebScraping     = "web_scraping"
	SourceDepreciation    = "industry_depreciation"
)

const lookupTimeout = 10 * time.Second

// ErrInsufficientIdentity means the request carries neither a well-formed VIN
// nor a complete make/model/year to resolve against
var ErrInsufficientIdentity = errors.New("valuation request needs a vin or make/model/year")

// PriceLookup is the best-effort external price collaborator
type PriceLookup interface {
	Lookup(ctx context.Context, make, model string, year int) (float64, error)
}

// ResolveRequest identifies the vehicle to value
type ResolveRequest struct {
	VIN     string `json:"vin,omitempty"`
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	Year    int    `json:"year,omitempty"`
	Mileage *int   `json:"mileage,omitempty"`
	State   string `json:"state,omitempty"`
}

// Estimate is the resolved valuation and the evidence behind it
type Estimate struct {
	VIN   string `json:"vin,omitempty"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`

	Value        float64 `json:"estimated_value"`
	RetailValue  float64 `json:"retail_value"`
	TradeInValue float64 `json:"trade_in_value"`

	Confidence valuation.Confidence `json:"confidence"`
	Source     string               `json:"source"`
	SampleSize int                  `json:"sample_size"`

	Stats *valuation.Stats `json:"stats,omitempty"`
}

type ValuationService struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Decoder VINDecoder
	Lookup  PriceLookup
	Cfg     *config.Config
	Log     *logrus.Logger
}

func NewValuationService(db *gorm.DB, rdb *redis.Client, decoder VINDecoder, lookup PriceLookup, cfg *config.Config, log *logrus.Logger) *ValuationService {
	return &ValuationService{
		DB:      db,
		Redis:   rdb,
		Decoder: decoder,
		Lookup:  lookup,
		Cfg:     cfg,
		Log:     log,
	}
}

// Resolve answers a valuation request from the cheapest sufficient tier.
// It always returns an estimate unless the request identifies no vehicle at all.
func (s *ValuationService) Resolve(ctx context.Context, req ResolveRequest) (*Estimate, error) {
	req.VIN = strings.ToUpper(strings.TrimSpace(req.VIN))
	req.State = strings.ToUpper(strings.TrimSpace(req.State))

	if !nhtsa.WellFormedVIN(req.VIN) && (req.Make == "" || req.Model == "" || req.Year == 0) {
		return nil, ErrInsufficientIdentity
	}

	cacheKey := s.cacheKey(req)
	if est := s.cacheGet(ctx, cacheKey); est != nil {
		return est, nil
	}

	est := s.resolve(ctx, req)
	s.cacheSet(ctx, cacheKey, est)
	return est, nil
}

func (s *ValuationService) resolve(ctx context.Context, req ResolveRequest) *Estimate {
	if nhtsa.WellFormedVIN(req.VIN) {
		if est := s.fromStoredValuation(ctx, req); est != nil {
			return est
		}
		if est := s.fromVINListings(ctx, req); est != nil {
			return est
		}
	}

	// Identity beyond this point is make/model/year
	mk, model, year := s.resolveIdentity(ctx, req)

	if mk != "" && model != "" {
		if est := s.fromCohortListings(ctx, req, mk, model, year); est != nil {
			return est
		}
		if year > 0 {
			if est := s.fromPriceLookup(ctx, req, mk, model, year); est != nil {
				return est
			}
		}
	}

	return s.fromDepreciation(req, mk, model, year)
}

// fromStoredValuation serves a stored per-VIN valuation if one is still fresh
func (s *ValuationService) fromStoredValuation(ctx context.Context, req ResolveRequest) *Estimate {
	var row models.Valuation
	err := s.DB.WithContext(ctx).First(&row, "vin = ?", req.VIN).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.WithError(err).Warn("stored valuation lookup failed")
		}
		return nil
	}
	if !row.FreshWithin(s.Cfg.Valuation.FreshWindow, time.Now().UTC()) {
		return nil
	}

	value := valuation.AdjustForMileageAndRegion(row.AvgPrice, req.Mileage, row.AvgMileage, req.State)
	return &Estimate{
		VIN:          row.VIN,
		Make:         row.Make,
		Model:        row.Model,
		Year:         row.Year,
		Value:        value,
		RetailValue:  row.RetailValue,
		TradeInValue: row.TradeInValue,
		Confidence:   valuation.ConfidenceFromSampleSize(row.SampleSize),
		Source:       SourceCachedValuation,
		SampleSize:   row.SampleSize,
	}
}

// fromVINListings aggregates the VIN's own recent listings on demand and
// writes the result back as a stored valuation
func (s *ValuationService) fromVINListings(ctx context.Context, req ResolveRequest) *Estimate {
	cutoff := time.Now().UTC().Add(-s.Cfg.Valuation.ListingLookback)

	var listings []models.Listing
	err := s.DB.WithContext(ctx).
		Where("vin = ? AND scraped_at >= ?", req.VIN, cutoff).
		Find(&listings).Error
	if err != nil {
		s.Log.WithError(err).Warn("vin listing lookup failed")
		return nil
	}

	stats, err := valuation.Aggregate(listingSamples(listings), s.Cfg.Valuation.MinSamplesVIN)
	if err != nil {
		return nil
	}

	mk, model, year := s.resolveIdentity(ctx, req)
	if err := upsertValuation(ctx, s.DB, req.VIN, mk, model, year, stats); err != nil {
		s.Log.WithError(err).WithField("vin", req.VIN).Warn("valuation writeback failed")
	}

	value := valuation.AdjustForMileageAndRegion(stats.Mean, req.Mileage, stats.AvgMileage, req.State)
	return &Estimate{
		VIN:          req.VIN,
		Make:         mk,
		Model:        model,
		Year:         year,
		Value:        value,
		RetailValue:  stats.RetailValue,
		TradeInValue: stats.TradeInValue,
		Confidence:   stats.Confidence,
		Source:       SourceMarketListings,
		SampleSize:   stats.SampleSize,
		Stats:        stats,
	}
}

// fromCohortListings pools recent listings across every decoded VIN of the
// same make/model/year. Listings without a decoded VIN never join a cohort.
func (s *ValuationService) fromCohortListings(ctx context.Context, req ResolveRequest, mk, model string, year int) *Estimate {
	cutoff := time.Now().UTC().Add(-s.Cfg.Valuation.ListingLookback)

	specQuery := s.DB.Model(&models.VehicleSpecification{}).
		Select("vin").
		Where("make = ? AND model = ?", mk, model)
	if year > 0 {
		specQuery = specQuery.Where("year = ?", year)
	}

	var listings []models.Listing
	err := s.DB.WithContext(ctx).
		Where("vin IN (?) AND scraped_at >= ?", specQuery, cutoff).
		Find(&listings).Error
	if err != nil {
		s.Log.WithError(err).Warn("cohort listing lookup failed")
		return nil
	}

	stats, err := valuation.Aggregate(listingSamples(listings), s.Cfg.Valuation.MinSamplesMMY)
	if err != nil {
		return nil
	}

	value := valuation.AdjustForMileageAndRegion(stats.Mean, req.Mileage, stats.AvgMileage, req.State)
	return &Estimate{
		VIN:          req.VIN,
		Make:         mk,
		Model:        model,
		Year:         year,
		Value:        value,
		RetailValue:  stats.RetailValue,
		TradeInValue: stats.TradeInValue,
		Confidence:   stats.Confidence,
		Source:       SourceMarketListings,
		SampleSize:   stats.SampleSize,
		Stats:        stats,
	}
}

// fromPriceLookup asks the external price API. Every failure is swallowed;
// this tier either answers or quietly yields to the depreciation model.
func (s *ValuationService) fromPriceLookup(ctx context.Context, req ResolveRequest, mk, model string, year int) *Estimate {
	if s.Lookup == nil {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	price, err := s.Lookup.Lookup(lctx, mk, model, year)
	if err != nil {
		s.Log.WithError(err).Debug("external price lookup yielded nothing")
		return nil
	}

	return &Estimate{
		VIN:          req.VIN,
		Make:         mk,
		Model:        model,
		Year:         year,
		Value:        price,
		RetailValue:  price,
		TradeInValue: price * 0.75,
		Confidence:   valuation.ConfidenceHigh,
		Source:       SourceWebScraping,
		SampleSize:   1,
	}
}

// fromDepreciation is the terminal tier. Unknown identities fall back to a
// representative mid-market sedan so the resolver still answers.
func (s *ValuationService) fromDepreciation(req ResolveRequest, mk, model string, year int) *Estimate {
	if mk == "" {
		mk = "Toyota"
	}
	if model == "" {
		model = "Camry"
	}
	if year == 0 {
		year = 2010
	}

	dep := valuation.DepreciatedValue(mk, model, year, req.Mileage, time.Now().UTC())
	value := dep.Value
	if req.State != "" {
		value *= valuation.RegionalMultiplier(req.State)
		if value < valuation.MinimumValue {
			value = valuation.MinimumValue
		}
	}

	return &Estimate{
		VIN:          req.VIN,
		Make:         mk,
		Model:        model,
		Year:         year,
		Value:        value,
		RetailValue:  value,
		TradeInValue: value * 0.75,
		Confidence:   valuation.ConfidenceMedium,
		Source:       SourceDepreciation,
	}
}

// resolveIdentity fills in make/model/year, preferring the request's own
// fields, then the spec table, then a live decode
func (s *ValuationService) resolveIdentity(ctx context.Context, req ResolveRequest) (string, string, int) {
	if req.Make != "" && req.Model != "" && req.Year > 0 {
		return req.Make, req.Model, req.Year
	}
	if !nhtsa.WellFormedVIN(req.VIN) {
		return req.Make, req.Model, req.Year
	}

	var spec models.VehicleSpecification
	if err := s.DB.WithContext(ctx).First(&spec, "vin = ?", req.VIN).Error; err == nil {
		return spec.Make, spec.Model, spec.Year
	}

	if s.Decoder != nil {
		if decoded, err := s.Decoder.Decode(ctx, req.VIN); err == nil {
			return decoded.Make, decoded.Model, decoded.Year
		}
	}
	return req.Make, req.Model, req.Year
}

func (s *ValuationService) cacheKey(req ResolveRequest) string {
	mileage := -1
	if req.Mileage != nil {
		mileage = *req.Mileage
	}
	if req.VIN != "" {
		return fmt.Sprintf("resolve:vin:%s:%d:%s", req.VIN, mileage, req.State)
	}
	return fmt.Sprintf("resolve:mmy:%s:%s:%d:%d:%s",
		strings.ToLower(req.Make), strings.ToLower(req.Model), req.Year, mileage, req.State)
}

func (s *ValuationService) cacheGet(ctx context.Context, key string) *Estimate {
	if s.Redis == nil {
		return nil
	}
	raw, err := s.Redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.Log.WithError(err).Debug("resolve cache read failed")
		}
		return nil
	}
	var est Estimate
	if err := json.Unmarshal([]byte(raw), &est); err != nil {
		return nil
	}
	return &est
}

func (s *ValuationService) cacheSet(ctx context.Context, key string, est *Estimate) {
	if s.Redis == nil || est == nil {
		return
	}
	raw, err := json.Marshal(est)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, key, raw, s.Cfg.Valuation.ResolveCacheTTL).Err(); err != nil {
		s.Log.WithError(err).Debug("resolve cache write failed")
	}
}
