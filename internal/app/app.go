// Package app wires the daemon together: feed store, ledger, eligibility
// oracle, price transports, persistence, observability and the automation
// sweep.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"riskvault/internal/alerts"
	"riskvault/internal/config"
	"riskvault/internal/feed"
	"riskvault/internal/hermes"
	"riskvault/internal/ledger"
	"riskvault/internal/metering"
	"riskvault/internal/metrics"
	"riskvault/internal/oracle"
	"riskvault/internal/publisher"
	"riskvault/internal/risk"
	"riskvault/internal/server"
	"riskvault/internal/state"
	"riskvault/internal/state/sqlite"
	"riskvault/internal/timescale"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const eventQueueSize = 256

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	feeds    *feed.Store
	ledger   *ledger.Ledger
	stream   *hermes.Stream
	backfill *hermes.Client
	registry *publisher.Registry
	writer   *timescale.Writer
	prom     *metrics.Prometheus
	notifier *alerts.Notifier
	keeper   common.Address

	events     chan ledger.Event
	dropLogged bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	riskParams := risk.ParamsFromConfig(cfg.Risk)
	feeds := feed.NewStore(cfg.Feed, riskParams, log)

	eligibility, err := oracle.FromConfig(cfg.Oracle)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	book := ledger.New(ledger.ParamsFromConfig(cfg), feeds, eligibility, log)
	if cfg.Metering.Enabled {
		book.SetMeter(metering.NewValidator(cfg.Metering.ServiceID))
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		feeds:    feeds,
		ledger:   book,
		registry: publisher.NewRegistry(config.Addresses(cfg.Feed.Publishers)),
		writer:   writer,
		prom:     metrics.NewPrometheus(),
		notifier: alerts.NewNotifier(alerts.NewTelegram(cfg.Telegram, log), log),
		events:   make(chan ledger.Event, eventQueueSize),
	}
	if cfg.Hermes.Enabled {
		a.stream = hermes.NewStream(cfg.Hermes, feeds, log)
		a.backfill = hermes.NewClient(cfg.Hermes.HTTPURL, cfg.Hermes.Timeout, log)
	}
	if automation := config.Addresses(cfg.Ledger.Automation); len(automation) > 0 {
		a.keeper = automation[0]
	}
	book.SetSink(a)
	return a, nil
}

// Record implements the ledger event sink. Called with the ledger mutex held,
// so it only counts and hands the event to the journal goroutine.
func (a *App) Record(event ledger.Event) {
	switch event.Type {
	case ledger.EventDeposit:
		a.prom.Metrics.Deposits.Inc()
	case ledger.EventBorrow:
		a.prom.Metrics.Borrows.Inc()
	case ledger.EventRepay:
		a.prom.Metrics.Repays.Inc()
	case ledger.EventWithdraw:
		a.prom.Metrics.Withdrawals.Inc()
	case ledger.EventDeleverage:
		a.prom.Metrics.Deleverages.Inc()
	case ledger.EventLiquidation:
		a.prom.Metrics.Liquidations.Inc()
	case ledger.EventBadDebt:
		a.prom.Metrics.BadDebtEvents.Inc()
	}
	select {
	case a.events <- event:
	default:
		if !a.dropLogged && a.log != nil {
			a.dropLogged = true
			a.log.Warn("event queue full, journal entries dropped")
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	snapshot, ok, err := state.LoadLedgerSnapshot(ctx, a.store)
	if err != nil {
		return err
	}
	if ok {
		if err := a.ledger.Restore(snapshot); err != nil {
			return err
		}
		a.log.Info("ledger restored",
			zap.Int("vaults", a.ledger.Global().Vaults),
			zap.String("total_borrowed", a.ledger.Global().TotalBorrowed.String()),
		)
	}

	a.writer.Start(ctx)
	go a.eventLoop(ctx)

	if a.stream != nil {
		if err := hermes.Backfill(ctx, a.backfill, a.cfg.Hermes, a.feeds); err != nil {
			a.log.Warn("hermes backfill failed", zap.Error(err))
		}
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("hermes stream stopped", zap.Error(err))
			}
		}()
	}

	srv := server.New(a.ledger, a.feeds, a.registry, a.prom.Metrics, a.prom.Handler(), a.log)
	httpServer := &http.Server{Addr: a.cfg.Server.Listen, Handler: srv.Router()}
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", a.cfg.Server.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ticker := time.NewTicker(a.cfg.Ledger.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = httpServer.Shutdown(shutdownCtx)
			cancel()
			a.persist(context.Background())
			return ctx.Err()
		case err := <-serveErr:
			return err
		case <-ticker.C:
			a.sweep(ctx)
			a.persist(ctx)
		}
	}
}

// sweep runs one automation pass: deleverage every vault that needs it and
// liquidate the ones past the threshold, then refresh the gauges.
func (a *App) sweep(ctx context.Context) {
	if a.keeper != (common.Address{}) {
		for _, principal := range a.ledger.Principals() {
			err := a.ledger.AutoDeleverage(ctx, a.keeper, principal)
			switch {
			case err == nil:
			case errors.Is(err, ledger.ErrVaultClosed):
				// Written-off vault; nothing to do until a deposit reopens it.
			case errors.Is(err, ledger.ErrVaultLiquidatable):
				if _, err := a.ledger.Liquidate(ctx, a.keeper, principal); err != nil {
					a.log.Warn("sweep liquidation failed",
						zap.String("principal", principal.Hex()), zap.Error(err))
				}
			case errors.Is(err, ledger.ErrPriceStale):
				// One warning covers the pass; every vault shares the quote.
				a.log.Warn("sweep skipped, price stale")
				return
			default:
				a.log.Warn("sweep deleverage failed",
					zap.String("principal", principal.Hex()), zap.Error(err))
			}
		}
	}

	instrument := a.ledger.Instrument()
	vol := a.feeds.Volatility(instrument)
	global := a.ledger.Global()
	a.prom.Metrics.Lambda.Set(float64(a.feeds.Lambda(instrument)))
	a.prom.Metrics.VolatilityBps.Set(float64(vol.Bps))
	a.prom.Metrics.TotalBorrowedUSD.Set(global.TotalBorrowed.InexactFloat64())
	a.prom.Metrics.ReserveUSD.Set(global.Reserve.InexactFloat64())
	a.writer.EnqueueGauge(timescale.LedgerGauge{
		Time:          time.Now(),
		Instrument:    instrument,
		TotalBorrowed: global.TotalBorrowed.InexactFloat64(),
		Reserve:       global.Reserve.InexactFloat64(),
		Vaults:        global.Vaults,
		Lambda:        a.feeds.Lambda(instrument),
		VolatilityBps: vol.Bps,
	})
	quote := a.feeds.Read(instrument)
	if !quote.Stale {
		a.writer.EnqueuePrice(timescale.PriceSample{
			Time:       quote.Timestamp,
			Instrument: instrument,
			Price:      quote.Price.InexactFloat64(),
			Confidence: quote.Confidence.InexactFloat64(),
		})
	}
}

func (a *App) persist(ctx context.Context) {
	if err := state.SaveLedgerSnapshot(ctx, a.store, a.ledger.Snapshot()); err != nil {
		a.log.Warn("snapshot save failed", zap.Error(err))
	}
}

// eventLoop drains the sink queue: journal first, then analytics and alerts.
func (a *App) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.events:
			if _, err := state.AppendLedgerEvent(ctx, a.store, event); err != nil {
				a.log.Warn("journal append failed",
					zap.String("type", string(event.Type)), zap.Error(err))
			}
			a.writer.EnqueueEvent(toRiskEvent(event))
			a.notifier.Notify(event)
		}
	}
}

func toRiskEvent(event ledger.Event) timescale.RiskEvent {
	return timescale.RiskEvent{
		Time:          event.Time,
		Type:          string(event.Type),
		Principal:     event.Principal.Hex(),
		Instrument:    event.Instrument,
		Amount:        event.Amount.InexactFloat64(),
		InterestPaid:  event.InterestPaid.InexactFloat64(),
		PrincipalPaid: event.PrincipalPaid.InexactFloat64(),
		Lambda:        event.Lambda,
		BadDebt:       event.BadDebt.InexactFloat64(),
	}
}
