/**
 * @description
 * Statistical aggregation of listing samples into a point estimate.
 * Pure arithmetic, no storage or I/O; callers gate on minimum sample size and
 * decide what to persist.
 *
 * @dependencies
 * - standard "math" and "sort"
 */

package valuation

import (
	"errors"
	"math"
	"sort"
)

// Confidence classifies how trustworthy an estimate is
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ErrInsufficientSample means the sample is below the caller's minimum; the
// result must not be trusted and the caller should fall through to its next tier
var ErrInsufficientSample = errors.New("valuation: insufficient sample")

// Sample is one priced observation
type Sample struct {
	Price   float64
	Mileage *int
}

// Stats is the aggregate over a sample of listings
type Stats struct {
	Mean   float64 `json:"avg_price"`
	Median float64 `json:"median_price"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min_price"`
	Max    float64 `json:"max_price"`

	// RetailValue is the mean of the top third of prices and TradeInValue is
	// 0.75 x mean. Both are heuristic point estimates, not market guarantees.
	RetailValue  float64 `json:"retail_value"`
	TradeInValue float64 `json:"trade_in_value"`

	AvgMileage *int `json:"avg_mileage,omitempty"`
	SampleSize int  `json:"sample_size"`

	Confidence Confidence `json:"confidence"`
}

// Aggregate computes price statistics over the sample. Returns
// ErrInsufficientSample when len(samples) < minSampleSize.
//
// For samples smaller than 3 the "top third" degenerates to the single most
// expensive price; call sites gate on minimums that make this acceptable.
func Aggregate(samples []Sample, minSampleSize int) (*Stats, error) {
	if len(samples) < minSampleSize || len(samples) == 0 {
		return nil, ErrInsufficientSample
	}

	prices := make([]float64, 0, len(samples))
	var mileages []int
	for _, s := range samples {
		prices = append(prices, s.Price)
		if s.Mileage != nil {
			mileages = append(mileages, *s.Mileage)
		}
	}
	sort.Float64s(prices)

	n := len(prices)
	stats := &Stats{
		Min:        prices[0],
		Max:        prices[n-1],
		Mean:       mean(prices),
		Median:     median(prices),
		SampleSize: n,
	}
	stats.StdDev = stdDev(prices, stats.Mean)

	topN := n / 3
	if topN < 1 {
		topN = 1
	}
	stats.RetailValue = mean(prices[n-topN:])
	stats.TradeInValue = stats.Mean * 0.75

	if len(mileages) > 0 {
		var sum int
		for _, m := range mileages {
			sum += m
		}
		avg := sum / len(mileages)
		stats.AvgMileage = &avg
	}

	stats.Confidence = ConfidenceFor(n, stats.StdDev, stats.Mean)
	return stats, nil
}

// ConfidenceFor grades an estimate by sample size and coefficient of variation
func ConfidenceFor(sampleSize int, stdDev, mean float64) Confidence {
	if mean <= 0 {
		return ConfidenceLow
	}
	cov := stdDev / mean
	switch {
	case sampleSize >= 20 && cov < 0.2:
		return ConfidenceHigh
	case sampleSize >= 10 && cov < 0.3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidenceFromSampleSize grades a stored valuation by sample size alone,
// used when reading back a cached entry
func ConfidenceFromSampleSize(sampleSize int) Confidence {
	switch {
	case sampleSize >= 20:
		return ConfidenceHigh
	case sampleSize >= 10:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// median assumes xs is sorted
func median(xs []float64) float64 {
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// stdDev is the sample standard deviation; a single observation has no spread
func stdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
