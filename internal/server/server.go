// Package server exposes the read-only query surface and the signed price
// ingestion endpoint. Vault mutations never go through HTTP; they enter
// through the ledger API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"riskvault/internal/feed"
	"riskvault/internal/ledger"
	"riskvault/internal/metrics"
	"riskvault/internal/publisher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxEnvelopeBytes = 64 * 1024

type Server struct {
	ledger   *ledger.Ledger
	feeds    *feed.Store
	registry *publisher.Registry
	metrics  *metrics.Metrics
	promPage http.Handler
	log      *zap.Logger
}

func New(l *ledger.Ledger, feeds *feed.Store, registry *publisher.Registry, m *metrics.Metrics, promPage http.Handler, log *zap.Logger) *Server {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Server{
		ledger:   l,
		feeds:    feeds,
		registry: registry,
		metrics:  m,
		promPage: promPage,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	if s.promPage != nil {
		r.Method(http.MethodGet, "/metrics", s.promPage)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/price", s.handlePrice)
		r.Get("/lambda", s.handleLambda)
		r.Get("/history", s.handleHistory)
		r.Get("/ledger", s.handleLedger)
		r.Get("/vaults/{principal}", s.handleVault)
		r.Get("/vaults/{principal}/capacity", s.handleCapacity)
		r.Post("/prices", s.handlePublish)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type priceResponse struct {
	Instrument string `json:"instrument"`
	Price      string `json:"price"`
	Confidence string `json:"confidence"`
	Stale      bool   `json:"stale"`
	Timestamp  int64  `json:"timestamp_ms"`
}

func (s *Server) handlePrice(w http.ResponseWriter, _ *http.Request) {
	instrument := s.ledger.Instrument()
	quote := s.feeds.Read(instrument)
	writeJSON(w, http.StatusOK, priceResponse{
		Instrument: instrument,
		Price:      quote.Price.String(),
		Confidence: quote.Confidence.String(),
		Stale:      quote.Stale,
		Timestamp:  quote.Timestamp.UnixMilli(),
	})
}

type lambdaResponse struct {
	Instrument    string `json:"instrument"`
	Lambda        int64  `json:"lambda_permille"`
	VolatilityBps int64  `json:"volatility_bps"`
	Samples       int    `json:"samples"`
}

func (s *Server) handleLambda(w http.ResponseWriter, _ *http.Request) {
	instrument := s.ledger.Instrument()
	vol := s.feeds.Volatility(instrument)
	writeJSON(w, http.StatusOK, lambdaResponse{
		Instrument:    instrument,
		Lambda:        s.feeds.Lambda(instrument),
		VolatilityBps: vol.Bps,
		Samples:       vol.Samples,
	})
}

type historyPoint struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp_ms"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := 24
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	samples := s.feeds.History(s.ledger.Instrument(), n)
	out := make([]historyPoint, 0, len(samples))
	for _, sample := range samples {
		out = append(out, historyPoint{
			Price:     sample.Price.String(),
			Timestamp: sample.Timestamp.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type ledgerResponse struct {
	Instrument    string `json:"instrument"`
	TotalBorrowed string `json:"total_borrowed"`
	Reserve       string `json:"reserve"`
	Vaults        int    `json:"vaults"`
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	global := s.ledger.Global()
	writeJSON(w, http.StatusOK, ledgerResponse{
		Instrument:    s.ledger.Instrument(),
		TotalBorrowed: global.TotalBorrowed.String(),
		Reserve:       global.Reserve.String(),
		Vaults:        global.Vaults,
	})
}

type vaultResponse struct {
	Principal       string `json:"principal"`
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	AccruedInterest string `json:"accrued_interest"`
	LastLambda      int64  `json:"last_lambda"`
	Health          string `json:"health"`
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	principal, ok := parsePrincipal(w, r)
	if !ok {
		return
	}
	v := s.ledger.VaultOf(principal)
	writeJSON(w, http.StatusOK, vaultResponse{
		Principal:       principal.Hex(),
		Collateral:      v.Collateral.String(),
		Debt:            v.Debt.String(),
		AccruedInterest: v.AccruedInterest.String(),
		LastLambda:      v.LastLambda,
		Health:          v.Health.String(),
	})
}

type capacityResponse struct {
	Principal     string `json:"principal"`
	Lambda        int64  `json:"lambda_permille"`
	VolatilityBps int64  `json:"volatility_bps"`
	Price         string `json:"price"`
	PriceStale    bool   `json:"price_stale"`
	MaxBorrow     string `json:"max_borrow"`
	Available     string `json:"available"`
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	principal, ok := parsePrincipal(w, r)
	if !ok {
		return
	}
	view := s.ledger.Capacity(principal)
	writeJSON(w, http.StatusOK, capacityResponse{
		Principal:     principal.Hex(),
		Lambda:        view.Lambda,
		VolatilityBps: view.VolatilityBps,
		Price:         view.Price.String(),
		PriceStale:    view.PriceStale,
		MaxBorrow:     view.MaxBorrow.String(),
		Available:     view.Available.String(),
	})
}

// handlePublish ingests one signed price envelope. The body is the raw
// msgpack envelope, not JSON.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusNotFound, "publishing disabled")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	instrument, sample, err := s.registry.Verify(raw)
	if err != nil {
		s.metrics.PriceRejected.Inc()
		status := http.StatusBadRequest
		if errors.Is(err, publisher.ErrUnknownSigner) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	if err := s.feeds.Update(instrument, sample); err != nil {
		s.metrics.PriceRejected.Inc()
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.metrics.PriceUpdates.Inc()
	if s.log != nil {
		s.log.Debug("price published",
			zap.String("instrument", instrument),
			zap.String("price", sample.Price.String()),
		)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func parsePrincipal(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "principal")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid principal address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
