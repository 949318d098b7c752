/**
 * @description
 * Market listing database model.
 * One row per observed offer; multiple rows per VIN or make/model/year are expected
 * and are the raw material for aggregation. Rows are never mutated; they are either
 * pruned by retention or removed by the duplicate pass.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes (free-form feature bag)
 */

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Listing is one scraped market offer for a vehicle
type Listing struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// Nullable: listings without a decodable VIN are matched by make/model/year later
	VIN *string `gorm:"column:vin;size:17;index" json:"vin,omitempty"`

	// Pricing
	Price         float64  `gorm:"column:price;not null" json:"price"`
	OriginalPrice *float64 `gorm:"column:original_price" json:"original_price,omitempty"`

	// Condition
	Mileage   *int   `gorm:"column:mileage" json:"mileage,omitempty"`
	Condition string `gorm:"column:condition;size:20" json:"condition,omitempty"` // new, used, certified

	// Location
	City    string `gorm:"column:city;size:100" json:"city,omitempty"`
	State   string `gorm:"column:state;size:2;index" json:"state,omitempty"`
	ZipCode string `gorm:"column:zip_code;size:10" json:"zip_code,omitempty"`

	// Listing metadata
	Source      string     `gorm:"column:source;size:50;not null;index:idx_listing_source_time,priority:1" json:"source"`
	ListingURL  string     `gorm:"column:listing_url" json:"listing_url,omitempty"`
	ListingID   string     `gorm:"column:listing_id;size:100" json:"listing_id,omitempty"` // external ID from the source site
	ListingDate *time.Time `gorm:"column:listing_date" json:"listing_date,omitempty"`
	ScrapedAt   time.Time  `gorm:"column:scraped_at;index;index:idx_listing_source_time,priority:2" json:"scraped_at"`

	DealerName   string         `gorm:"column:dealer_name;size:200" json:"dealer_name,omitempty"`
	DaysOnMarket *int           `gorm:"column:days_on_market" json:"days_on_market,omitempty"`
	Features     datatypes.JSON `gorm:"column:features" json:"features,omitempty"`
}

// TableName overrides the table name used by Listing
func (Listing) TableName() string {
	return "vehicle_listings"
}
