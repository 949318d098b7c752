/**
 * @description
 * Acquisition run audit log. Write-once, append-only; nothing on the read path
 * depends on it.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScraperRun records one acquisition batch across one or more sources
type ScraperRun struct {
	ID      string `gorm:"column:id;primaryKey;size:36" json:"id"`
	Sources string `gorm:"column:sources;size:200;not null" json:"sources"` // comma-separated source names

	// Target identity
	Make  string `gorm:"column:make;size:50" json:"make"`
	Model string `gorm:"column:model;size:100" json:"model"`
	Year  *int   `gorm:"column:year" json:"year,omitempty"`

	StartedAt   time.Time  `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Status      string     `gorm:"column:status;size:20" json:"status"`

	ListingsFound   int     `gorm:"column:listings_found;default:0" json:"listings_found"`
	ListingsSaved   int     `gorm:"column:listings_saved;default:0" json:"listings_saved"`
	ErrorsCount     int     `gorm:"column:errors_count;default:0" json:"errors_count"`
	DurationSeconds float64 `gorm:"column:duration_seconds" json:"duration_seconds"`

	ErrorDetail string `gorm:"column:error_detail;type:text" json:"error_detail,omitempty"`
}

// TableName overrides the table name used by ScraperRun
func (ScraperRun) TableName() string {
	return "scraper_runs"
}

// BeforeCreate assigns the run ID
func (r *ScraperRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
