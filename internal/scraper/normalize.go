package scraper

import (
	"strconv"
	"strings"
)

// CleanPrice parses a scraped price string ("$25,000", "25000 USD") into a float.
// Returns nil when the value cannot be coerced; a bad price never fails a candidate
// on its own, validation downstream decides what to do with a nil.
func CleanPrice(raw string) *float64 {
	if raw == "" {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "USD", "", "usd", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// CleanMileage parses a scraped mileage string ("50,000 miles", "50K mi") into an int.
// Returns nil on coercion failure.
func CleanMileage(raw string) *int {
	if raw == "" {
		return nil
	}
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer(",", "", "miles", "", "mileage", "", "mi.", "", "mi", "", "km", "", " ", "").Replace(cleaned)

	// "50k" style abbreviations show up on a few sources
	multiplier := 1.0
	if strings.HasSuffix(cleaned, "k") {
		multiplier = 1000
		cleaned = strings.TrimSuffix(cleaned, "k")
	}
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return nil
	}
	n := int(v * multiplier)
	return &n
}
