// Package api exposes the HTTP surface: starting and inspecting backtests,
// managing strategies and conditions, and reading historic market data.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/backtest"
	"github.com/thewatergategroups/llama/internal/bars"
	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/strategy"
	"github.com/thewatergategroups/llama/pkg/marketdata/provider"
)

// Server wires the HTTP handlers to the stores and the backtester.
type Server struct {
	server     *http.Server
	logger     *logger.Logger
	backtester *backtest.Backtester
	runs       *backtest.RunStore
	strategies *strategy.Store
	history    *bars.History
	quotes     provider.Provider
}

// NewServer builds the router and the underlying http.Server. The quotes
// provider may be nil when no market data credentials are configured; the
// quote endpoint then reports the missing provider.
func NewServer(addr string, backtester *backtest.Backtester, runs *backtest.RunStore, strategies *strategy.Store, history *bars.History, quotes provider.Provider, log *logger.Logger) *Server {
	s := &Server{
		logger:     log,
		backtester: backtester,
		runs:       runs,
		strategies: strategies,
		history:    history,
		quotes:     quotes,
	}

	router := mux.NewRouter()
	router.Use(s.requestLogger)
	s.registerRoutes(router)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/backtest/start", s.handleBacktestStart).Methods(http.MethodPost)
	router.HandleFunc("/backtest/result", s.handleBacktestResult).Methods(http.MethodGet)
	router.HandleFunc("/backtest/result/stats", s.handleBacktestResultStats).Methods(http.MethodGet)
	router.HandleFunc("/backtest/results", s.handleBacktestResults).Methods(http.MethodGet)

	router.HandleFunc("/strategies", s.handleGetStrategies).Methods(http.MethodGet)
	router.HandleFunc("/strategies", s.handleDeleteStrategy).Methods(http.MethodDelete)
	router.HandleFunc("/strategies/create", s.handleCreateStrategy).Methods(http.MethodPost)
	router.HandleFunc("/strategies/update", s.handlePatchStrategy).Methods(http.MethodPatch)
	router.HandleFunc("/strategies/conditions", s.handleGetConditions).Methods(http.MethodGet)
	router.HandleFunc("/strategies/strategy/conditions/update", s.handlePatchStrategyCondition).Methods(http.MethodPatch)

	router.HandleFunc("/stocks/historic/data", s.handleHistoricData).Methods(http.MethodGet)
	router.HandleFunc("/stocks/assets/quote/latest", s.handleLatestQuote).Methods(http.MethodGet)
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug("request handled",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks serving requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", zap.String("addr", s.server.Addr))

	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
