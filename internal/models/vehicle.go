/**
 * @description
 * Vehicle specification database model.
 * One row per unique VIN, populated from the external VIN decode registry on first
 * encounter and immutable afterwards apart from the refresh timestamp.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes (raw decode payload)
 */

package models

import (
	"time"

	"gorm.io/datatypes"
)

// VehicleSpecification holds the decoded identity of a vehicle
type VehicleSpecification struct {
	VIN   string `gorm:"column:vin;primaryKey;size:17" json:"vin"`
	Make  string `gorm:"column:make;size:50;not null;index:idx_spec_mmy,priority:1" json:"make"`
	Model string `gorm:"column:model;size:100;not null;index:idx_spec_mmy,priority:2" json:"model"`
	Year  int    `gorm:"column:year;not null;index:idx_spec_mmy,priority:3" json:"year"`
	Trim  string `gorm:"column:trim;size:100" json:"trim,omitempty"`

	BodyType     string `gorm:"column:body_type;size:50" json:"body_type,omitempty"`
	VehicleType  string `gorm:"column:vehicle_type;size:50" json:"vehicle_type,omitempty"`
	Manufacturer string `gorm:"column:manufacturer;size:100" json:"manufacturer,omitempty"`

	// Engine & drivetrain
	EngineCylinders    int    `gorm:"column:engine_cylinders" json:"engine_cylinders,omitempty"`
	EngineDisplacement string `gorm:"column:engine_displacement;size:20" json:"engine_displacement,omitempty"`
	FuelType           string `gorm:"column:fuel_type;size:50" json:"fuel_type,omitempty"`
	Transmission       string `gorm:"column:transmission;size:50" json:"transmission,omitempty"`
	DriveType          string `gorm:"column:drive_type;size:20" json:"drive_type,omitempty"`
	Doors              int    `gorm:"column:doors" json:"doors,omitempty"`

	PlantCity    string `gorm:"column:plant_city;size:100" json:"plant_city,omitempty"`
	PlantCountry string `gorm:"column:plant_country;size:50" json:"plant_country,omitempty"`

	// Provenance
	Source    string         `gorm:"column:source;size:20;default:NHTSA" json:"source"`
	RawData   datatypes.JSON `gorm:"column:raw_data" json:"-"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by VehicleSpecification
func (VehicleSpecification) TableName() string {
	return "vehicle_specifications"
}
