package hermes

import (
	"encoding/json"
	"testing"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/feed"
	"riskvault/internal/risk"

	"github.com/shopspring/decimal"
)

func TestSampleFixedPointConversion(t *testing.T) {
	p := priceData{
		Price:       "6281060000000",
		Conf:        "6281060000",
		Expo:        -8,
		PublishTime: 1_700_000_000,
	}
	sample, err := p.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !sample.Price.Equal(decimal.RequireFromString("62810.6")) {
		t.Fatalf("price = %s, want 62810.6", sample.Price)
	}
	// Interval is 0.1% of the price, so the score is 0.999.
	if !sample.Confidence.Equal(decimal.RequireFromString("0.999")) {
		t.Fatalf("confidence = %s, want 0.999", sample.Confidence)
	}
	if got := sample.Timestamp.Unix(); got != 1_700_000_000 {
		t.Fatalf("timestamp = %d", got)
	}
}

func TestSampleRejectsBadData(t *testing.T) {
	if _, err := (priceData{Price: "abc", Conf: "1", Expo: 0}).Sample(); err == nil {
		t.Fatalf("expected parse error for mantissa")
	}
	if _, err := (priceData{Price: "0", Conf: "1", Expo: 0}).Sample(); err == nil {
		t.Fatalf("expected error for zero price")
	}
	if _, err := (priceData{Price: "100", Conf: "x", Expo: 0}).Sample(); err == nil {
		t.Fatalf("expected parse error for conf")
	}
}

func TestSampleClampsHugeInterval(t *testing.T) {
	p := priceData{Price: "100", Conf: "500", Expo: 0, PublishTime: 1}
	sample, err := p.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !sample.Confidence.IsZero() {
		t.Fatalf("confidence = %s, want 0", sample.Confidence)
	}
}

func newTestStore() *feed.Store {
	return feed.NewStore(config.FeedConfig{
		MinConfidence:   0.95,
		MaxPriceAge:     time.Hour,
		HistoryCapacity: 168,
		EstimatorWindow: 24,
		SampleInterval:  time.Hour,
	}, risk.Params{
		LambdaMin:     300,
		LambdaMax:     1800,
		VolLowBps:     1000,
		VolHighBps:    5000,
		DefaultVolBps: 2500,
	}, nil)
}

func TestHandleRoutesUpdateToStore(t *testing.T) {
	store := newTestStore()
	now := time.Unix(1_700_000_100, 0)
	store.SetClock(func() time.Time { return now })
	s := NewStream(config.HermesConfig{
		Feeds: []config.HermesFeed{
			{Symbol: "ETH/USD", ID: "0xABCD1234"},
		},
	}, store, nil)

	frame, err := json.Marshal(wsMessage{
		Type: "price_update",
		PriceFeed: priceFeed{
			ID: "abcd1234",
			Price: priceData{
				Price:       "315000000000",
				Conf:        "31500000",
				Expo:        -8,
				PublishTime: 1_700_000_000,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	s.handle(frame)

	quote := store.Read("ETH/USD")
	if quote.Stale {
		t.Fatalf("quote unexpectedly stale")
	}
	if !quote.Price.Equal(decimal.RequireFromString("3150")) {
		t.Fatalf("price = %s, want 3150", quote.Price)
	}
}

func TestHandleIgnoresUnknownFeedAndGarbage(t *testing.T) {
	store := newTestStore()
	s := NewStream(config.HermesConfig{
		Feeds: []config.HermesFeed{{Symbol: "ETH/USD", ID: "aa"}},
	}, store, nil)

	s.handle([]byte("not json"))
	frame, _ := json.Marshal(wsMessage{
		Type:      "price_update",
		PriceFeed: priceFeed{ID: "bb", Price: priceData{Price: "1", Conf: "0", Expo: 0, PublishTime: 1}},
	})
	s.handle(frame)
	if !store.Read("ETH/USD").Stale {
		t.Fatalf("store should be untouched")
	}
}
