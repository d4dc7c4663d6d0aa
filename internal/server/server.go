package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/economy"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/metrics"
)

type contextKey string

const principalKey contextKey = "principal"

// Server is the HTTP API for the participation economy engine.
type Server struct {
	log     *slog.Logger
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	limiter *RateLimiter
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		router:  chi.NewRouter(),
		limiter: NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute/10+1),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	s.router.Use(s.metricsMiddleware)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Journal != nil {
			if err := s.cfg.Journal.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "journal unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	s.router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)

		r.Post("/activities", s.handleRecordActivity)
		r.Post("/activities/batch", s.handleBatchRecordActivities)
		r.Get("/activities/{id}", s.handleGetActivity)
		r.Get("/members/{address}/daily-points", s.handleDailyPoints)

		r.Post("/ledger/convert", s.handleConvert)
		r.Post("/ledger/stake", s.handleStake)
		r.Post("/ledger/unstake", s.handleUnstake)
		r.Post("/ledger/burn", s.handleBurn)
		r.Post("/ledger/penalty-burn", s.handlePenaltyBurn)
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/accounts/{address}/voting-weight", s.handleVotingWeight)
		r.Get("/supply", s.handleSupply)

		r.Post("/investors", s.handleAddInvestor)
		r.Get("/investors", s.handleListInvestors)
		r.Get("/investors/{address}", s.handleGetInvestor)

		r.Get("/revenue/split", s.handleGetSplit)
		r.Put("/revenue/split", s.handleSetSplit)
		r.Post("/revenue/deposit", s.handleDeposit)
		r.Post("/revenue/distribute", s.handleDistribute)
		r.Post("/revenue/buyback", s.handleBuyback)
		r.Post("/revenue/buyback-price", s.handleSetBuybackPrice)
		r.Post("/revenue/buyback-enabled", s.handleSetBuybackEnabled)
		r.Get("/revenue/totals", s.handleTotals)

		r.Get("/history/distributions", s.handleHistoryDistributions)
		r.Get("/history/members/{address}/activities", s.handleHistoryActivities)
	})
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.cfg.Logger.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.cfg.Logger.Info("server: stopping", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// authMiddleware resolves the bearer token to a principal. Unknown tokens
// are rejected before any handler runs; role checks happen inside the
// engine per operation.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		principal, ok := s.cfg.Tokens[token]
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func principalFrom(r *http.Request) Principal {
	p, _ := r.Context().Value(principalKey).(Principal)
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps engine errors onto HTTP statuses so callers can
// distinguish "retry with new id" from "insufficient funds" from "wait for
// the cap to reset".
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, economy.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, economy.ErrDuplicateActivity), errors.Is(err, economy.ErrDuplicateInvestor):
		status = http.StatusConflict
	case errors.Is(err, economy.ErrInsufficientBalance),
		errors.Is(err, economy.ErrStakeLocked),
		errors.Is(err, economy.ErrBelowMinimumConversion),
		errors.Is(err, economy.ErrNoStake),
		errors.Is(err, economy.ErrBuybackDisabled):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err.Error())
}
