/**
 * @description
 * Configuration loader for the AutoValor valuation backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 * - standard "fmt": For error reporting
 *
 * @notes
 * - Fails fast if DATABASE_URL is missing.
 * - All tunables (windows, thresholds, rate limits) have defaults matching production.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Scraper   ScraperConfig
	Valuation ValuationConfig
	Services  ServicesConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// ScraperConfig holds acquisition tunables shared by all listing sources
type ScraperConfig struct {
	RateLimit  time.Duration // minimum interval between requests per source
	Timeout    time.Duration // hard timeout per outbound request
	MaxRetries int           // attempts per request, transient failures only
	MaxResults int           // default per-source result cap
	ZipCode    string        // search origin for distance-based sources
	RadiusMi   int           // search radius in miles
}

// ValuationConfig holds the freshness/lookback windows and sample thresholds
type ValuationConfig struct {
	FreshWindow      time.Duration // cached valuation is trusted within this age
	ListingLookback  time.Duration // listings older than this are ignored by aggregation
	DedupLookback    time.Duration // duplicate scan window
	RetentionHorizon time.Duration // listings older than this are pruned
	MinSamplesVIN    int           // on-demand VIN aggregation
	MinSamplesMMY    int           // make/model/year pooled aggregation
	MinSamplesBatch  int           // scheduled valuation refresh
	ResolveCacheTTL  time.Duration // hot cache TTL for resolve responses
}

// ServicesConfig holds external collaborator endpoints and keys
type ServicesConfig struct {
	NHTSAURL    string // vPIC-compatible VIN decode API
	PriceAPIURL string // best-effort market price lookup
	PriceAPIKey string
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (k8s/prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Scraper: ScraperConfig{
			RateLimit:  time.Duration(getEnvAsInt("SCRAPER_RATE_LIMIT_MS", 2000)) * time.Millisecond,
			Timeout:    time.Duration(getEnvAsInt("SCRAPER_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries: getEnvAsInt("SCRAPER_MAX_RETRIES", 3),
			MaxResults: getEnvAsInt("SCRAPER_MAX_RESULTS", 100),
			ZipCode:    getEnv("SCRAPER_ZIP_CODE", "10001"),
			RadiusMi:   getEnvAsInt("SCRAPER_RADIUS_MILES", 500),
		},
		Valuation: ValuationConfig{
			FreshWindow:      time.Duration(getEnvAsInt("VALUATION_FRESH_DAYS", 7)) * 24 * time.Hour,
			ListingLookback:  time.Duration(getEnvAsInt("LISTING_LOOKBACK_DAYS", 60)) * 24 * time.Hour,
			DedupLookback:    time.Duration(getEnvAsInt("DEDUP_LOOKBACK_DAYS", 30)) * 24 * time.Hour,
			RetentionHorizon: time.Duration(getEnvAsInt("LISTING_RETENTION_DAYS", 90)) * 24 * time.Hour,
			MinSamplesVIN:    getEnvAsInt("MIN_SAMPLES_VIN", 3),
			MinSamplesMMY:    getEnvAsInt("MIN_SAMPLES_MMY", 5),
			MinSamplesBatch:  getEnvAsInt("MIN_SAMPLES_BATCH", 5),
			ResolveCacheTTL:  time.Duration(getEnvAsInt("RESOLVE_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Services: ServicesConfig{
			NHTSAURL:    getEnv("NHTSA_API_URL", "https://vpic.nhtsa.dot.gov/api/vehicles"),
			PriceAPIURL: getEnv("PRICE_API_URL", ""),
			PriceAPIKey: sanitizeCredential(getEnv("PRICE_API_KEY", "")),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}
	if cfg.Services.PriceAPIURL == "" && cfg.Server.Env != "test" {
		// Warning only: the resolver degrades to the depreciation model without it
		fmt.Println("Warning: PRICE_API_URL is missing. On-demand market lookups are disabled.")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
