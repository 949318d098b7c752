package nhtsa

// decodeResponse mirrors the vPIC DecodeVinValues JSON envelope
type decodeResponse struct {
	Count   int              `json:"Count"`
	Message string           `json:"Message"`
	Results []decodedVariant `json:"Results"`
}

// decodedVariant is the flat key/value record vPIC returns per VIN.
// Numeric fields arrive as strings; coercion happens in the client.
type decodedVariant struct {
	Make               string `json:"Make"`
	Model              string `json:"Model"`
	ModelYear          string `json:"ModelYear"`
	Trim               string `json:"Trim"`
	BodyClass          string `json:"BodyClass"`
	VehicleType        string `json:"VehicleType"`
	Manufacturer       string `json:"Manufacturer"`
	EngineCylinders    string `json:"EngineCylinders"`
	DisplacementL      string `json:"DisplacementL"`
	FuelTypePrimary    string `json:"FuelTypePrimary"`
	TransmissionStyle  string `json:"TransmissionStyle"`
	DriveType          string `json:"DriveType"`
	Doors              string `json:"Doors"`
	PlantCity          string `json:"PlantCity"`
	PlantCountryName   string `json:"PlantCountry"`
	ErrorCode          string `json:"ErrorCode"`
	ErrorText          string `json:"ErrorText"`
	SuggestedVIN       string `json:"SuggestedVIN"`
	PossibleValues     string `json:"PossibleValues"`
	AdditionalErrorTxt string `json:"AdditionalErrorText"`
}

// DecodedVehicle is the normalized result of a VIN decode
type DecodedVehicle struct {
	VIN                string
	Make               string
	Model              string
	Year               int
	Trim               string
	BodyType           string
	VehicleType        string
	Manufacturer       string
	EngineCylinders    int
	EngineDisplacement string
	FuelType           string
	Transmission       string
	DriveType          string
	Doors              int
	PlantCity          string
	PlantCountry       string

	// Raw is the untouched vPIC record, persisted alongside the spec for audit
	Raw []byte
}
