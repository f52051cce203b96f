// Package timescale ships price samples, committed ledger events and ledger
// gauges to a TimescaleDB for offline analysis. Writes are fire-and-forget
// behind bounded queues; a full queue drops and counts, never blocks the
// ledger path.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"riskvault/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type PriceSample struct {
	Time       time.Time
	Instrument string
	Price      float64
	Confidence float64
}

type RiskEvent struct {
	Time          time.Time
	Type          string
	Principal     string
	Instrument    string
	Amount        float64
	InterestPaid  float64
	PrincipalPaid float64
	Lambda        int64
	BadDebt       float64
}

type LedgerGauge struct {
	Time          time.Time
	Instrument    string
	TotalBorrowed float64
	Reserve       float64
	Vaults        int
	Lambda        int64
	VolatilityBps int64
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	prices    chan PriceSample
	events    chan RiskEvent
	gauges    chan LedgerGauge
	started   atomic.Bool
	dropPrice atomic.Uint64
	dropEvent atomic.Uint64
	dropGauge atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		prices: make(chan PriceSample, queueSize),
		events: make(chan RiskEvent, queueSize),
		gauges: make(chan LedgerGauge, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueuePrice(sample PriceSample) {
	if w == nil {
		return
	}
	select {
	case w.prices <- sample:
		return
	default:
		if w.dropPrice.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale price queue full")
		}
	}
}

func (w *Writer) EnqueueEvent(event RiskEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- event:
		return
	default:
		if w.dropEvent.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale event queue full")
		}
	}
}

func (w *Writer) EnqueueGauge(gauge LedgerGauge) {
	if w == nil {
		return
	}
	select {
	case w.gauges <- gauge:
		return
	default:
		if w.dropGauge.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale gauge queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-w.prices:
			w.writePrice(ctx, sample)
		case event := <-w.events:
			w.writeEvent(ctx, event)
		case gauge := <-w.gauges:
			w.writeGauge(ctx, gauge)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		instrument TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, instrument)
	)`, w.table("price_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		principal TEXT NOT NULL,
		instrument TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		interest_paid DOUBLE PRECISION NOT NULL,
		principal_paid DOUBLE PRECISION NOT NULL,
		lambda BIGINT NOT NULL,
		bad_debt DOUBLE PRECISION NOT NULL
	)`, w.table("risk_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		instrument TEXT NOT NULL,
		total_borrowed DOUBLE PRECISION NOT NULL,
		reserve DOUBLE PRECISION NOT NULL,
		vaults INTEGER NOT NULL,
		lambda BIGINT NOT NULL,
		volatility_bps BIGINT NOT NULL
	)`, w.table("ledger_gauges"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, name := range []string{"price_samples", "risk_events", "ledger_gauges"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writePrice(ctx context.Context, sample PriceSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, instrument, price, confidence)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (ts, instrument) DO UPDATE SET
		price = EXCLUDED.price,
		confidence = EXCLUDED.confidence`, w.table("price_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.Instrument,
		sample.Price,
		sample.Confidence,
	); err != nil && w.log != nil {
		w.log.Warn("timescale price upsert failed", zap.Error(err))
	}
}

func (w *Writer) writeEvent(ctx context.Context, event RiskEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, type, principal, instrument, amount, interest_paid, principal_paid, lambda, bad_debt
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, w.table("risk_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Type,
		event.Principal,
		event.Instrument,
		event.Amount,
		event.InterestPaid,
		event.PrincipalPaid,
		event.Lambda,
		event.BadDebt,
	); err != nil && w.log != nil {
		w.log.Warn("timescale event insert failed", zap.Error(err))
	}
}

func (w *Writer) writeGauge(ctx context.Context, gauge LedgerGauge) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, instrument, total_borrowed, reserve, vaults, lambda, volatility_bps
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("ledger_gauges"))
	if _, err := w.db.ExecContext(ctx, query,
		gauge.Time,
		gauge.Instrument,
		gauge.TotalBorrowed,
		gauge.Reserve,
		gauge.Vaults,
		gauge.Lambda,
		gauge.VolatilityBps,
	); err != nil && w.log != nil {
		w.log.Warn("timescale gauge insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
