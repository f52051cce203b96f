package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	PriceUpdates  Counter
	PriceRejected Counter
	Deposits      Counter
	Borrows       Counter
	Repays        Counter
	Withdrawals   Counter
	Deleverages   Counter
	Liquidations  Counter
	BadDebtEvents Counter

	Lambda           Gauge
	VolatilityBps    Gauge
	TotalBorrowedUSD Gauge
	ReserveUSD       Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		PriceUpdates:  c,
		PriceRejected: c,
		Deposits:      c,
		Borrows:       c,
		Repays:        c,
		Withdrawals:   c,
		Deleverages:   c,
		Liquidations:  c,
		BadDebtEvents: c,

		Lambda:           g,
		VolatilityBps:    g,
		TotalBorrowedUSD: g,
		ReserveUSD:       g,
	}
}
