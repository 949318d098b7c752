/**
 * @description
 * Source abstraction for listing acquisition.
 * Each external site implements Source; the acquisition service iterates sources
 * without knowing anything site-specific. Run statistics are explicit return values,
 * not ambient state.
 *
 * @dependencies
 * - backend/internal/scraper (Fetcher)
 */

package scraper

import (
	"context"
	"time"
)

// Query describes one paginated listing search
type Query struct {
	Make       string
	Model      string
	Year       *int
	MaxResults int
	ZipCode    string
	RadiusMi   int
}

// Candidate is one extracted listing before validation and persistence.
// Price and Source are the only fields a candidate must have; everything else is
// best-effort extraction and may be absent.
type Candidate struct {
	VIN           string
	Price         *float64
	OriginalPrice *float64
	Mileage       *int
	Condition     string
	City          string
	State         string
	ZipCode       string
	Source        string
	ListingURL    string
	ListingID     string
	ListingDate   *time.Time
	DealerName    string
	Features      map[string]string
}

// Valid reports whether the candidate meets the minimum bar for ingestion
func (c Candidate) Valid() bool {
	return c.Price != nil && c.Source != ""
}

// RunStats summarizes one ScrapeListings call
type RunStats struct {
	Pages    int   `json:"pages"`
	Found    int   `json:"found"`
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
}

// Source is the capability every listing site must provide
type Source interface {
	// Name identifies the source in listings, logs and run records
	Name() string

	// ScrapeListings paginates the site until MaxResults, an empty page, or an
	// unrecoverable fetch error. Partial results are returned alongside the error.
	ScrapeListings(ctx context.Context, q Query) ([]Candidate, RunStats, error)
}

// DedupeBatch removes within-batch duplicates by external URL/ID, keeping the
// first occurrence so page order is preserved
func DedupeBatch(cands []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := cands[:0]
	for _, c := range cands {
		key := c.ListingURL
		if key == "" {
			key = c.Source + "#" + c.ListingID
		}
		if key == c.Source+"#" {
			// nothing to dedupe on
			out = append(out, c)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
