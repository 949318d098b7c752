package services

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/autovalor/backend/internal/models"
	"github.com/autovalor/backend/internal/valuation"
	"github.com/redis/go-redis/v9"
)

func newValuationService(t *testing.T, decoder VINDecoder, lookup PriceLookup) *ValuationService {
	t.Helper()
	db := testDB(t)
	if decoder == nil {
		decoder = &fakeDecoder{}
	}
	return NewValuationService(db, nil, decoder, lookup, testConfig(), testLogger())
}

func seedValuation(t *testing.T, svc *ValuationService, vin string, sampleSize int, age time.Duration) {
	t.Helper()
	row := models.Valuation{
		VIN:         vin,
		Make:        "Toyota",
		Model:       "Camry",
		Year:        2019,
		AvgPrice:    21000,
		RetailValue: 23000,
		SampleSize:  sampleSize,
		LastUpdated: time.Now().UTC().Add(-age),
	}
	if err := svc.DB.Create(&row).Error; err != nil {
		t.Fatalf("seed valuation: %v", err)
	}
}

func TestResolveInsufficientIdentity(t *testing.T) {
	svc := newValuationService(t, nil, nil)

	if _, err := svc.Resolve(context.Background(), ResolveRequest{}); err != ErrInsufficientIdentity {
		t.Fatalf("err = %v, want ErrInsufficientIdentity", err)
	}
	if _, err := svc.Resolve(context.Background(), ResolveRequest{Make: "Toyota", Model: "Camry"}); err != ErrInsufficientIdentity {
		t.Fatalf("make/model without year: err = %v, want ErrInsufficientIdentity", err)
	}
	if _, err := svc.Resolve(context.Background(), ResolveRequest{VIN: "SHORT"}); err != ErrInsufficientIdentity {
		t.Fatalf("malformed vin alone: err = %v, want ErrInsufficientIdentity", err)
	}
}

func TestResolveFreshStoredValuation(t *testing.T) {
	svc := newValuationService(t, nil, nil)
	seedValuation(t, svc, testVIN, 25, 24*time.Hour)

	// listings that would aggregate to a very different number; a fresh stored
	// entry must win over them
	seedSpec(t, svc.DB, testVIN, "Toyota", "Camry", 2019)
	seedListings(t, svc.DB, testVIN, 5000, 5000, 5000, 5000, 5000)

	est, err := svc.Resolve(context.Background(), ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceCachedValuation {
		t.Fatalf("source = %s, want %s", est.Source, SourceCachedValuation)
	}
	if est.Value != 21000 {
		t.Errorf("value = %v, want stored average 21000, not the listing mean", est.Value)
	}
	// stored entries are graded by sample size alone
	if est.Confidence != valuation.ConfidenceHigh {
		t.Errorf("confidence = %s, want high for 25 samples", est.Confidence)
	}
}

func TestResolveFreshnessBoundary(t *testing.T) {
	window := testConfig().Valuation.FreshWindow

	svc := newValuationService(t, nil, nil)
	seedValuation(t, svc, testVIN, 25, window-time.Second)

	est, err := svc.Resolve(context.Background(), ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceCachedValuation {
		t.Errorf("entry just inside the window: source = %s, want %s", est.Source, SourceCachedValuation)
	}

	stale := newValuationService(t, nil, nil)
	seedValuation(t, stale, testVIN, 25, window+time.Second)

	est, err = stale.Resolve(context.Background(), ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("resolve stale: %v", err)
	}
	if est.Source == SourceCachedValuation {
		t.Errorf("entry past the window must not serve, got source %s", est.Source)
	}
}

func TestResolveFromVINListings(t *testing.T) {
	svc := newValuationService(t, decoderFor(testVIN, "Toyota", "Camry", 2019), nil)
	seedSpec(t, svc.DB, testVIN, "Toyota", "Camry", 2019)
	seedListings(t, svc.DB, testVIN, 20000, 21000, 22000)

	est, err := svc.Resolve(context.Background(), ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceMarketListings {
		t.Fatalf("source = %s, want %s", est.Source, SourceMarketListings)
	}
	if est.Value != 21000 {
		t.Errorf("value = %v, want mean 21000", est.Value)
	}
	if est.SampleSize != 3 {
		t.Errorf("sample size = %d, want 3", est.SampleSize)
	}
	if est.Make != "Toyota" || est.Year != 2019 {
		t.Errorf("identity = %s/%d, want Toyota/2019", est.Make, est.Year)
	}

	// an on-demand aggregation is written back as a stored valuation
	var row models.Valuation
	if err := svc.DB.First(&row, "vin = ?", testVIN).Error; err != nil {
		t.Fatalf("writeback row missing: %v", err)
	}
	if row.AvgPrice != 21000 || row.SampleSize != 3 {
		t.Errorf("writeback = avg %v size %d, want 21000/3", row.AvgPrice, row.SampleSize)
	}
}

func TestResolveInsufficientVINListings(t *testing.T) {
	svc := newValuationService(t, nil, nil)
	seedSpec(t, svc.DB, testVIN, "Toyota", "Camry", 2019)
	seedListings(t, svc.DB, testVIN, 20000, 21000) // below the per-VIN minimum

	est, err := svc.Resolve(context.Background(), ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source == SourceMarketListings {
		t.Errorf("two listings must not aggregate per-VIN, got %s", est.Source)
	}
}

func TestResolveFromCohort(t *testing.T) {
	svc := newValuationService(t, nil, nil)

	vins := []string{
		"4T1B11HK5KU211111", "4T1B11HK5KU211112", "4T1B11HK5KU211113",
		"4T1B11HK5KU211114", "4T1B11HK5KU211115",
	}
	for i, vin := range vins {
		seedSpec(t, svc.DB, vin, "Toyota", "Camry", 2019)
		seedListings(t, svc.DB, vin, 20000+float64(i)*500)
	}
	// a VIN-less listing never joins the cohort
	seedListings(t, svc.DB, "", 90000)

	est, err := svc.Resolve(context.Background(), ResolveRequest{Make: "Toyota", Model: "Camry", Year: 2019})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceMarketListings {
		t.Fatalf("source = %s, want %s", est.Source, SourceMarketListings)
	}
	if est.SampleSize != 5 {
		t.Errorf("sample size = %d, want 5 (vin-less listing excluded)", est.SampleSize)
	}
	if est.Value != 21000 {
		t.Errorf("value = %v, want mean 21000", est.Value)
	}
}

func TestResolveFromPriceLookup(t *testing.T) {
	lookup := &fakeLookup{price: 19500}
	svc := newValuationService(t, nil, lookup)

	est, err := svc.Resolve(context.Background(), ResolveRequest{Make: "Toyota", Model: "Camry", Year: 2019})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceWebScraping {
		t.Fatalf("source = %s, want %s", est.Source, SourceWebScraping)
	}
	if lookup.calls != 1 {
		t.Errorf("lookup calls = %d, want 1", lookup.calls)
	}
	if est.Confidence != valuation.ConfidenceHigh {
		t.Errorf("confidence = %s, want high for an external lookup hit", est.Confidence)
	}
	if est.Value != 19500 {
		t.Errorf("value = %v, want the looked-up price unadjusted", est.Value)
	}
}

func TestResolveLookupFailureFallsThrough(t *testing.T) {
	lookup := &fakeLookup{} // always errors
	svc := newValuationService(t, nil, lookup)

	est, err := svc.Resolve(context.Background(), ResolveRequest{Make: "Toyota", Model: "Camry", Year: 2019})
	if err != nil {
		t.Fatalf("lookup failure must not surface: %v", err)
	}
	if est.Source != SourceDepreciation {
		t.Fatalf("source = %s, want %s", est.Source, SourceDepreciation)
	}
	if est.Value < valuation.MinimumValue {
		t.Errorf("value = %v, below the floor", est.Value)
	}
}

func TestResolveAlwaysAnswers(t *testing.T) {
	// unknown VIN, empty database, no lookup: the resolver still produces a value
	svc := newValuationService(t, nil, nil)
	mileage := 50000

	est, err := svc.Resolve(context.Background(), ResolveRequest{
		VIN:     testVIN,
		Mileage: &mileage,
		State:   "CA",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if est.Source != SourceDepreciation {
		t.Fatalf("source = %s, want %s", est.Source, SourceDepreciation)
	}
	if est.Value < valuation.MinimumValue {
		t.Errorf("value = %v, below the floor", est.Value)
	}
	// unknown identity defaults to a representative sedan
	if est.Make != "Toyota" || est.Model != "Camry" || est.Year != 2010 {
		t.Errorf("default identity = %s %s %d, want Toyota Camry 2010", est.Make, est.Model, est.Year)
	}
}

func TestResolveHotCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	db := testDB(t)
	svc := NewValuationService(db, redisClient, &fakeDecoder{}, nil, testConfig(), testLogger())
	seedValuation(t, svc, testVIN, 25, 24*time.Hour)

	ctx := context.Background()
	first, err := svc.Resolve(ctx, ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// remove the durable entry; the hot cache alone must answer now
	if err := db.Delete(&models.Valuation{}, "vin = ?", testVIN).Error; err != nil {
		t.Fatalf("delete valuation: %v", err)
	}

	second, err := svc.Resolve(ctx, ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Source != first.Source || second.Value != first.Value {
		t.Errorf("cached answer %v/%v differs from first %v/%v",
			second.Source, second.Value, first.Source, first.Value)
	}

	// cached entries expire with the configured TTL
	mr.FastForward(testConfig().Valuation.ResolveCacheTTL + time.Second)
	third, err := svc.Resolve(ctx, ResolveRequest{VIN: testVIN})
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third.Source == SourceCachedValuation {
		t.Errorf("expired cache with deleted row still served %s", third.Source)
	}
}

func TestResolveMileageAndRegionAdjustment(t *testing.T) {
	svc := newValuationService(t, nil, nil)
	avgMileage := 50000
	row := models.Valuation{
		VIN:         testVIN,
		Make:        "Toyota",
		Model:       "Camry",
		Year:        2019,
		AvgPrice:    20000,
		SampleSize:  25,
		AvgMileage:  &avgMileage,
		LastUpdated: time.Now().UTC(),
	}
	if err := svc.DB.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	mileage := 60000
	est, err := svc.Resolve(context.Background(), ResolveRequest{VIN: testVIN, Mileage: &mileage, State: "CA"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// (20000 - 10000 * 0.10) * 1.25
	if est.Value != 23750 {
		t.Errorf("value = %v, want 23750", est.Value)
	}
}
