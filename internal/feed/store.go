package feed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/risk"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrStalePrice    = errors.New("price timestamp is not newer than stored sample")
	ErrLowConfidence = errors.New("price confidence below threshold")
	ErrInvalidPrice  = errors.New("price must be positive")
)

// Store holds the latest sample and a bounded history per instrument and
// recomputes the derived volatility state synchronously with every accepted
// update. Price updates are the only operation allowed to race vault
// operations; readers always see a fully applied sample + volatility pair.
type Store struct {
	minConfidence  decimal.Decimal
	maxPriceAge    time.Duration
	capacity       int
	window         int
	samplesPerYear float64
	riskParams     risk.Params
	log            *zap.Logger
	now            func() time.Time

	mu    sync.RWMutex
	feeds map[string]*instrumentState
}

type instrumentState struct {
	latest  PriceSample
	history *ring
	vol     VolatilityState
}

func NewStore(cfg config.FeedConfig, riskParams risk.Params, log *zap.Logger) *Store {
	samplesPerYear := float64(365*24*time.Hour) / float64(cfg.SampleInterval)
	return &Store{
		minConfidence:  decimal.NewFromFloat(cfg.MinConfidence),
		maxPriceAge:    cfg.MaxPriceAge,
		capacity:       cfg.HistoryCapacity,
		window:         cfg.EstimatorWindow,
		samplesPerYear: samplesPerYear,
		riskParams:     riskParams,
		log:            log,
		now:            time.Now,
	}
}

// SetClock overrides the staleness clock, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Update validates and records a sample, then recomputes volatility as part
// of the same critical section. Duplicate timestamps are rejected rather than
// overwritten so two sources cannot race to shrink the apparent volatility
// window.
func (s *Store) Update(instrument string, sample PriceSample) error {
	if !sample.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, sample.Price)
	}
	if sample.Confidence.LessThan(s.minConfidence) {
		return fmt.Errorf("%w: %s < %s", ErrLowConfidence, sample.Confidence, s.minConfidence)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.feeds[instrument]
	if !ok {
		if s.feeds == nil {
			s.feeds = make(map[string]*instrumentState)
		}
		st = &instrumentState{history: newRing(s.capacity)}
		s.feeds[instrument] = st
	}
	if st.history.len() > 0 && !sample.Timestamp.After(st.latest.Timestamp) {
		return fmt.Errorf("%w: %s <= %s", ErrStalePrice, sample.Timestamp.Format(time.RFC3339), st.latest.Timestamp.Format(time.RFC3339))
	}
	st.latest = sample
	st.history.push(sample)
	st.vol = s.recompute(st)
	if s.log != nil {
		s.log.Debug("price applied",
			zap.String("instrument", instrument),
			zap.String("price", sample.Price.String()),
			zap.Int64("volatility_bps", st.vol.Bps),
			zap.Int("samples", st.vol.Samples),
		)
	}
	return nil
}

func (s *Store) recompute(st *instrumentState) VolatilityState {
	window := st.history.tail(s.window)
	prices := make([]float64, len(window))
	for i, sample := range window {
		prices[i] = sample.Price.InexactFloat64()
	}
	return VolatilityState{
		Bps:        risk.VolatilityBps(prices, s.samplesPerYear, s.riskParams.DefaultVolBps),
		Samples:    len(window),
		ComputedAt: s.now(),
	}
}

// Read returns the current quote; it never fails. An unknown instrument
// reads as a zero quote that is flagged stale.
func (s *Store) Read(instrument string) Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.feeds[instrument]
	if !ok || st.history.len() == 0 {
		return Quote{Stale: true}
	}
	return Quote{
		Price:      st.latest.Price,
		Confidence: st.latest.Confidence,
		Timestamp:  st.latest.Timestamp,
		Stale:      s.now().Sub(st.latest.Timestamp) > s.maxPriceAge,
	}
}

// Volatility returns the derived volatility state; an instrument with no
// accepted samples reads as the conservative default.
func (s *Store) Volatility(instrument string) VolatilityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.feeds[instrument]
	if !ok {
		return VolatilityState{Bps: s.riskParams.DefaultVolBps}
	}
	return st.vol
}

// Lambda derives the current risk multiplier for an instrument.
func (s *Store) Lambda(instrument string) int64 {
	return risk.Lambda(s.Volatility(instrument).Bps, s.riskParams)
}

// History returns up to n most recent samples, oldest first.
func (s *Store) History(instrument string, n int) []PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.feeds[instrument]
	if !ok {
		return nil
	}
	return st.history.tail(n)
}

// RiskParams exposes the mapping parameters shared with the ledger.
func (s *Store) RiskParams() risk.Params {
	return s.riskParams
}
