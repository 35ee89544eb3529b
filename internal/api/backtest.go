package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/thewatergategroups/llama/internal/backtest"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// BacktestRequest is the body accepted by the backtest start endpoint.
type BacktestRequest struct {
	Symbols    []string `json:"symbols"`
	Strategies []string `json:"strategy_aliases"`
	Days       int      `json:"days"`
}

type backtestStartedResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) handleBacktestStart(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	def := backtest.Definition{
		Symbols:    req.Symbols,
		Strategies: req.Strategies,
		Days:       req.Days,
	}

	id, err := s.backtester.Start(r.Context(), def)
	if err != nil {
		writeError(w, err)

		return
	}

	// The replay outlives the request, so it gets its own context.
	go func() {
		_ = s.backtester.Execute(context.Background(), id, def.Days)
	}()

	writeJSON(w, http.StatusOK, backtestStartedResponse{ID: id})
}

func (s *Server) handleBacktestResult(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "backtest_id")
	if err != nil {
		writeError(w, err)

		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)

		return
	}
	if run.IsNone() {
		writeError(w, errors.Newf(errors.ErrCodeBacktestNotFound, "backtest %d does not exist", id))

		return
	}

	writeJSON(w, http.StatusOK, run.Unwrap())
}

func (s *Server) handleBacktestResultStats(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "backtest_id")
	if err != nil {
		writeError(w, err)

		return
	}

	stats, err := s.runs.GetStats(r.Context(), id)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBacktestResults(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context(), 0)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.Newf(errors.ErrCodeMissingParameter, "query parameter %s is required", name)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "query parameter %s must be an integer", name)
	}

	return value, nil
}
