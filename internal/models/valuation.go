/**
 * @description
 * Aggregated valuation database model: the durable cache entry.
 * One row per VIN, recomputed from listings by the valuation refresh. Staleness is
 * never enforced eagerly; readers compare last_updated against the freshness window.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Valuation is the statistical summary of recent listings for one VIN
type Valuation struct {
	ID  uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	VIN string `gorm:"column:vin;size:17;uniqueIndex" json:"vin"`

	// Denormalized identity so make/model/year queries don't need the spec row
	Make  string `gorm:"column:make;size:50" json:"make,omitempty"`
	Model string `gorm:"column:model;size:100" json:"model,omitempty"`
	Year  int    `gorm:"column:year" json:"year,omitempty"`

	// Point estimates
	RetailValue  float64 `gorm:"column:retail_value" json:"retail_value"`
	TradeInValue float64 `gorm:"column:trade_in_value" json:"trade_in_value"`

	// Sample statistics
	AvgPrice    float64 `gorm:"column:avg_price;not null" json:"avg_price"`
	MedianPrice float64 `gorm:"column:median_price" json:"median_price"`
	MinPrice    float64 `gorm:"column:min_price" json:"min_price"`
	MaxPrice    float64 `gorm:"column:max_price" json:"max_price"`
	StdDev      float64 `gorm:"column:std_dev" json:"std_dev"`

	SampleSize int  `gorm:"column:sample_size;default:0" json:"sample_size"`
	AvgMileage *int `gorm:"column:avg_mileage" json:"avg_mileage,omitempty"`

	Confidence  string    `gorm:"column:confidence;size:10" json:"confidence"`
	LastUpdated time.Time `gorm:"column:last_updated;index" json:"last_updated"`
}

// TableName overrides the table name used by Valuation
func (Valuation) TableName() string {
	return "vehicle_valuations"
}

// FreshWithin reports whether the entry is still trustworthy at the given moment
func (v *Valuation) FreshWithin(window time.Duration, now time.Time) bool {
	return now.Sub(v.LastUpdated) < window
}
