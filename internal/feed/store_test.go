package feed

import (
	"errors"
	"testing"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/risk"

	"github.com/shopspring/decimal"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.FeedConfig{
		MinConfidence:   0.95,
		MaxPriceAge:     time.Hour,
		HistoryCapacity: 168,
		EstimatorWindow: 24,
		SampleInterval:  time.Hour,
	}
	params := risk.Params{
		LambdaMin:     300,
		LambdaMax:     1800,
		VolLowBps:     1000,
		VolHighBps:    5000,
		DefaultVolBps: 2500,
	}
	return NewStore(cfg, params, nil)
}

func sampleAt(price float64, ts time.Time) PriceSample {
	return PriceSample{
		Price:      decimal.NewFromFloat(price),
		Confidence: decimal.NewFromFloat(0.99),
		Timestamp:  ts,
	}
}

func TestUpdateRejectsNonMonotonicTimestamp(t *testing.T) {
	s := testStore(t)
	base := time.Unix(1_700_000_000, 0)
	if err := s.Update("ETH/USD", sampleAt(100, base)); err != nil {
		t.Fatalf("first update: %v", err)
	}
	err := s.Update("ETH/USD", sampleAt(101, base))
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("duplicate timestamp: expected ErrStalePrice, got %v", err)
	}
	err = s.Update("ETH/USD", sampleAt(101, base.Add(-time.Minute)))
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("older timestamp: expected ErrStalePrice, got %v", err)
	}
	if err := s.Update("ETH/USD", sampleAt(101, base.Add(time.Hour))); err != nil {
		t.Fatalf("newer timestamp rejected: %v", err)
	}
}

func TestUpdateRejectsLowConfidence(t *testing.T) {
	s := testStore(t)
	sample := PriceSample{
		Price:      decimal.NewFromInt(100),
		Confidence: decimal.NewFromFloat(0.90),
		Timestamp:  time.Unix(1_700_000_000, 0),
	}
	if err := s.Update("ETH/USD", sample); !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
	if got := s.Read("ETH/USD"); !got.Stale {
		t.Fatalf("rejected update must leave no readable sample")
	}
}

func TestUpdateRejectsNonPositivePrice(t *testing.T) {
	s := testStore(t)
	sample := PriceSample{
		Price:      decimal.Zero,
		Confidence: decimal.NewFromFloat(0.99),
		Timestamp:  time.Unix(1_700_000_000, 0),
	}
	if err := s.Update("ETH/USD", sample); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestReadStalenessFlag(t *testing.T) {
	s := testStore(t)
	base := time.Unix(1_700_000_000, 0)
	now := base
	s.SetClock(func() time.Time { return now })
	if err := s.Update("ETH/USD", sampleAt(100, base)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if q := s.Read("ETH/USD"); q.Stale {
		t.Fatalf("fresh sample flagged stale")
	}
	now = base.Add(2 * time.Hour)
	if q := s.Read("ETH/USD"); !q.Stale {
		t.Fatalf("old sample not flagged stale")
	}
}

func TestVolatilityDefaultBeforeTwoSamples(t *testing.T) {
	s := testStore(t)
	if got := s.Volatility("ETH/USD").Bps; got != 2500 {
		t.Fatalf("unknown instrument: expected default 2500bps, got %d", got)
	}
	base := time.Unix(1_700_000_000, 0)
	if err := s.Update("ETH/USD", sampleAt(100, base)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Volatility("ETH/USD").Bps; got != 2500 {
		t.Fatalf("single sample: expected default 2500bps, got %d", got)
	}
}

func TestVolatilityFlatHistoryGivesMaxLambda(t *testing.T) {
	s := testStore(t)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		if err := s.Update("ETH/USD", sampleAt(1.00, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	vol := s.Volatility("ETH/USD")
	if vol.Bps != 0 {
		t.Fatalf("flat history: expected 0bps, got %d", vol.Bps)
	}
	if vol.Samples != 4 {
		t.Fatalf("expected 4 samples in window, got %d", vol.Samples)
	}
	if got := s.Lambda("ETH/USD"); got != 1800 {
		t.Fatalf("flat history: expected lambda 1800, got %d", got)
	}
}

func TestRingEvictsOldestFIFO(t *testing.T) {
	r := newRing(3)
	base := time.Unix(0, 0)
	for i := 1; i <= 5; i++ {
		r.push(sampleAt(float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	if r.len() != 3 {
		t.Fatalf("ring length = %d, want 3", r.len())
	}
	got := r.tail(3)
	for i, want := range []float64{3, 4, 5} {
		if !got[i].Price.Equal(decimal.NewFromFloat(want)) {
			t.Fatalf("tail[%d] = %s, want %f", i, got[i].Price, want)
		}
	}
}

func TestHistoryWindowBoundsEstimator(t *testing.T) {
	s := testStore(t)
	base := time.Unix(1_700_000_000, 0)
	// Fill beyond the estimator window; only the last 24 samples matter.
	for i := 0; i < 48; i++ {
		price := 100.0
		if i < 24 {
			price = 100.0 + float64(i) // turbulence outside the window
		}
		if err := s.Update("ETH/USD", sampleAt(price, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if got := s.Volatility("ETH/USD").Bps; got != 0 {
		t.Fatalf("window should only see flat prices, got %dbps", got)
	}
	if hist := s.History("ETH/USD", 200); len(hist) != 48 {
		t.Fatalf("history length = %d, want 48", len(hist))
	}
}

func TestHistoryNonPositiveCount(t *testing.T) {
	s := testStore(t)
	base := time.Unix(1_700_000_000, 0)
	if err := s.Update("ETH/USD", sampleAt(100, base)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if hist := s.History("ETH/USD", -1); len(hist) != 0 {
		t.Fatalf("negative count: got %d samples, want 0", len(hist))
	}
	if hist := s.History("ETH/USD", 0); len(hist) != 0 {
		t.Fatalf("zero count: got %d samples, want 0", len(hist))
	}
}
