/**
 * @description
 * HTTP client for the NHTSA vPIC VIN decode API.
 * The free federal registry behind vehicle specification lookups.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 */

package nhtsa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second

	// VINLength is the fixed length of a well-formed VIN
	VINLength = 17
)

var (
	// ErrInvalidVIN is returned for input that cannot be a VIN; never retried
	ErrInvalidVIN = errors.New("nhtsa: invalid vin")
	// ErrNotFound is returned when the registry has no record for the VIN
	ErrNotFound = errors.New("nhtsa: vin not found")
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Decode resolves a 17-character VIN to its specification fields.
// Returns ErrInvalidVIN for malformed input and ErrNotFound when vPIC has no
// usable record (it responds 200 with empty fields rather than 404).
func (c *Client) Decode(ctx context.Context, vin string) (*DecodedVehicle, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if len(vin) != VINLength {
		return nil, fmt.Errorf("%w: must be %d characters, got %d", ErrInvalidVIN, VINLength, len(vin))
	}

	u := fmt.Sprintf("%s/DecodeVinValues/%s?format=json", c.BaseURL, vin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nhtsa api error: status %d", resp.StatusCode)
	}

	var body decodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Results) == 0 {
		return nil, ErrNotFound
	}

	rec := body.Results[0]
	if rec.Make == "" || rec.Model == "" || rec.ModelYear == "" {
		return nil, ErrNotFound
	}

	year, err := strconv.Atoi(rec.ModelYear)
	if err != nil {
		return nil, fmt.Errorf("nhtsa: unparseable model year %q", rec.ModelYear)
	}

	raw, _ := json.Marshal(rec)

	return &DecodedVehicle{
		VIN:                vin,
		Make:               rec.Make,
		Model:              rec.Model,
		Year:               year,
		Trim:               rec.Trim,
		BodyType:           rec.BodyClass,
		VehicleType:        rec.VehicleType,
		Manufacturer:       rec.Manufacturer,
		EngineCylinders:    atoiOrZero(rec.EngineCylinders),
		EngineDisplacement: rec.DisplacementL,
		FuelType:           rec.FuelTypePrimary,
		Transmission:       rec.TransmissionStyle,
		DriveType:          rec.DriveType,
		Doors:              atoiOrZero(rec.Doors),
		PlantCity:          rec.PlantCity,
		PlantCountry:       rec.PlantCountryName,
		Raw:                raw,
	}, nil
}

// WellFormedVIN reports whether the string could be a VIN without calling the registry
func WellFormedVIN(vin string) bool {
	return len(strings.TrimSpace(vin)) == VINLength
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
