package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one observation from a publisher. Immutable once recorded.
type PriceSample struct {
	Price      decimal.Decimal
	Confidence decimal.Decimal
	Timestamp  time.Time
}

// Quote is the read-side view of an instrument. Staleness is a flag the
// caller must check, never an error.
type Quote struct {
	Price      decimal.Decimal
	Confidence decimal.Decimal
	Timestamp  time.Time
	Stale      bool
}

// VolatilityState is derived from the sample history on every accepted
// update; it is never mutated independently.
type VolatilityState struct {
	Bps        int64
	Samples    int
	ComputedAt time.Time
}

// ring is a fixed-capacity circular buffer of samples. Eviction is FIFO by
// advancing the start index, no element shifting.
type ring struct {
	buf   []PriceSample
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]PriceSample, capacity)}
}

func (r *ring) push(s PriceSample) {
	if len(r.buf) == 0 {
		return
	}
	idx := (r.start + r.size) % len(r.buf)
	if r.size == len(r.buf) {
		r.buf[r.start] = s
		r.start = (r.start + 1) % len(r.buf)
		return
	}
	r.buf[idx] = s
	r.size++
}

func (r *ring) len() int {
	return r.size
}

// tail returns up to n most recent samples in chronological order.
func (r *ring) tail(n int) []PriceSample {
	if n < 0 {
		n = 0
	}
	if n > r.size {
		n = r.size
	}
	out := make([]PriceSample, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
