package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.PriceUpdates.Inc()
	prom.Metrics.PriceRejected.Inc()
	prom.Metrics.Deposits.Inc()
	prom.Metrics.Borrows.Inc()
	prom.Metrics.Repays.Inc()
	prom.Metrics.Withdrawals.Inc()
	prom.Metrics.Deleverages.Inc()
	prom.Metrics.Liquidations.Inc()
	prom.Metrics.BadDebtEvents.Inc()

	assertValue(t, prom.priceUpdates, 1)
	assertValue(t, prom.priceRejected, 1)
	assertValue(t, prom.deposits, 1)
	assertValue(t, prom.borrows, 1)
	assertValue(t, prom.repays, 1)
	assertValue(t, prom.withdrawals, 1)
	assertValue(t, prom.deleverages, 1)
	assertValue(t, prom.liquidations, 1)
	assertValue(t, prom.badDebtEvents, 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Lambda.Set(1050)
	prom.Metrics.VolatilityBps.Set(3000)
	prom.Metrics.TotalBorrowedUSD.Set(12500.5)
	prom.Metrics.ReserveUSD.Set(50)

	assertValue(t, prom.lambda, 1050)
	assertValue(t, prom.volatilityBps, 3000)
	assertValue(t, prom.totalBorrowed, 12500.5)
	assertValue(t, prom.reserve, 50)
}

func assertValue(t *testing.T, c prometheus.Collector, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(c); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
