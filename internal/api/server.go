// Package api implements the HTTP surface: transfer-request submission and
// lookup, pre-flight risk checks, admin blocklist management, webhook
// ingest, and health probes. Routing uses gorilla/mux with per-route
// Methods() registration.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/api/ratelimit"
	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/audit"
	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/risk"
	"github.com/arcsign/compliance-relayer/internal/store"
	"github.com/arcsign/compliance-relayer/internal/webhook"
)

const version = "0.1.0"

// Config tunes the server's rate limiting and defaults.
type Config struct {
	EnableRateLimiting bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	DefaultPageLimit   int
	MaxPageLimit       int
}

// DefaultConfig sets pagination defaults (limit 1-100, default 20) and a
// conservative per-IP request budget for the public API.
func DefaultConfig() Config {
	return Config{
		EnableRateLimiting: true,
		RateLimitRequests:  60,
		RateLimitWindow:    time.Minute,
		DefaultPageLimit:   20,
		MaxPageLimit:       100,
	}
}

// Server wires the relayer's subsystems to HTTP handlers.
type Server struct {
	cfg     Config
	store   store.Store
	adapter chain.Adapter
	risk    *risk.Aggregator
	webhook *webhook.Ingest
	metrics metrics.Recorder
	audit   *audit.Logger
	log     *zap.Logger
	limiter *ratelimit.Limiter

	router *mux.Router
}

// New constructs a Server and builds its route table.
func New(cfg Config, st store.Store, adapter chain.Adapter, riskAgg *risk.Aggregator, wh *webhook.Ingest, rec metrics.Recorder, auditLog *audit.Logger, log *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		adapter: adapter,
		risk:    riskAgg,
		webhook: wh,
		metrics: rec,
		audit:   auditLog,
		log:     log,
		limiter: ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// Router returns the underlying http.Handler for use with http.Server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)
	if s.cfg.EnableRateLimiting {
		s.router.Use(s.rateLimitMiddleware)
	}

	s.router.HandleFunc("/transfer-requests", s.handleSubmitTransfer).Methods(http.MethodPost)
	s.router.HandleFunc("/transfer-requests", s.handleListTransfers).Methods(http.MethodGet)
	s.router.HandleFunc("/transfer-requests/{id}", s.handleGetTransfer).Methods(http.MethodGet)
	s.router.HandleFunc("/transfer-requests/{id}/retry", s.handleRetryTransfer).Methods(http.MethodPost)

	s.router.HandleFunc("/risk-check", s.handleRiskCheck).Methods(http.MethodPost)

	s.router.HandleFunc("/admin/blocklist", s.handleAddBlocklist).Methods(http.MethodPost)
	s.router.HandleFunc("/admin/blocklist/{address}", s.handleRemoveBlocklist).Methods(http.MethodDelete)
	s.router.HandleFunc("/admin/blocklist", s.handleListBlocklist).Methods(http.MethodGet)

	s.router.HandleFunc("/webhooks/{provider}", s.handleWebhook).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestID()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !s.limiter.Allow(key) {
			writeError(w, apperr.New(apperr.KindRateLimited, "rate limit exceeded"), s.limiter.RetryAfter(key))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err through apperr's Kind -> HTTP status table. retryAfter
// is only honored for rate-limit responses (0 means omit).
func writeError(w http.ResponseWriter, err error, retryAfter int) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)

	if kind == apperr.KindRateLimited || kind == apperr.KindExtRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		body := struct {
			Error      ErrorDetail `json:"error"`
			RetryAfter int         `json:"retry_after"`
		}{
			Error:      ErrorDetail{Type: string(kind), Message: err.Error()},
			RetryAfter: retryAfter,
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Type: string(kind), Message: err.Error()}})
}

func newRequestID() string { return uuid.NewString() }
