package valuation

// MarketMileageRate is the dollar shift per mile of difference between a
// vehicle's odometer and the sample's average mileage
const MarketMileageRate = 0.10

// regionalMultipliers scales values by state-level market cost differences;
// states not listed use 1.0
var regionalMultipliers = map[string]float64{
	"CA": 1.25,
	"NY": 1.20,
	"HI": 1.30,
	"MA": 1.15,
	"WA": 1.12,
	"IL": 1.08,
	"FL": 1.05,
	"TX": 1.00,
	"OH": 0.95,
	"IN": 0.92,
	"SC": 0.90,
	"AL": 0.88,
	"MS": 0.85,
}

// RegionalMultiplier returns the cost multiplier for a state, 1.0 when unknown
func RegionalMultiplier(state string) float64 {
	if m, ok := regionalMultipliers[state]; ok {
		return m
	}
	return 1.0
}

// AdjustForMileageAndRegion shifts a market-derived price by the mileage delta
// against the sample average, then applies the regional multiplier. Either
// adjustment is skipped when its inputs are unknown.
func AdjustForMileageAndRegion(base float64, actualMileage, referenceMileage *int, state string) float64 {
	adjusted := base

	if actualMileage != nil && referenceMileage != nil {
		diff := float64(*actualMileage - *referenceMileage)
		adjusted -= diff * MarketMileageRate
	}

	if state != "" {
		adjusted *= RegionalMultiplier(state)
	}

	return adjusted
}
