package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "riskvault"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry

	priceUpdates  prometheus.Counter
	priceRejected prometheus.Counter
	deposits      prometheus.Counter
	borrows       prometheus.Counter
	repays        prometheus.Counter
	withdrawals   prometheus.Counter
	deleverages   prometheus.Counter
	liquidations  prometheus.Counter
	badDebtEvents prometheus.Counter

	lambda        prometheus.Gauge
	volatilityBps prometheus.Gauge
	totalBorrowed prometheus.Gauge
	reserve       prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}

	p := &Prometheus{
		registry:      registry,
		priceUpdates:  counter("price_updates_total", "Total number of accepted price samples."),
		priceRejected: counter("price_rejected_total", "Total number of rejected price samples."),
		deposits:      counter("deposits_total", "Total number of collateral deposits."),
		borrows:       counter("borrows_total", "Total number of committed borrows."),
		repays:        counter("repays_total", "Total number of repayments."),
		withdrawals:   counter("withdrawals_total", "Total number of collateral withdrawals."),
		deleverages:   counter("deleverages_total", "Total number of auto-deleverage actions."),
		liquidations:  counter("liquidations_total", "Total number of liquidations."),
		badDebtEvents: counter("bad_debt_events_total", "Total number of bad debt write-offs."),
		lambda:        gauge("lambda_permille", "Current risk multiplier in permille."),
		volatilityBps: gauge("volatility_bps", "Current annualized volatility in basis points."),
		totalBorrowed: gauge("total_borrowed_usd", "Outstanding principal across all vaults."),
		reserve:       gauge("reserve_usd", "Protocol reserve balance."),
	}
	registry.MustRegister(
		p.priceUpdates, p.priceRejected,
		p.deposits, p.borrows, p.repays, p.withdrawals,
		p.deleverages, p.liquidations, p.badDebtEvents,
		p.lambda, p.volatilityBps, p.totalBorrowed, p.reserve,
	)

	p.Metrics = &Metrics{
		PriceUpdates:  promCounter{p.priceUpdates},
		PriceRejected: promCounter{p.priceRejected},
		Deposits:      promCounter{p.deposits},
		Borrows:       promCounter{p.borrows},
		Repays:        promCounter{p.repays},
		Withdrawals:   promCounter{p.withdrawals},
		Deleverages:   promCounter{p.deleverages},
		Liquidations:  promCounter{p.liquidations},
		BadDebtEvents: promCounter{p.badDebtEvents},

		Lambda:           promGauge{p.lambda},
		VolatilityBps:    promGauge{p.volatilityBps},
		TotalBorrowedUSD: promGauge{p.totalBorrowed},
		ReserveUSD:       promGauge{p.reserve},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
