package api

import (
	"net/http"
	"time"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

const defaultHistoricDays = 900

func (s *Server) handleHistoricData(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "query parameter symbol is required"))

		return
	}

	timeframe := types.TimeframeHour
	if raw := r.URL.Query().Get("timeframe"); raw != "" {
		timeframe = types.Timeframe(raw)
		if err := timeframe.Validate(); err != nil {
			writeError(w, err)

			return
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -defaultHistoricDays)
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "start_date must be RFC3339", err))

			return
		}
		start = parsed.UTC()
	}

	result, err := s.history.GetBars(r.Context(), []string{symbol}, timeframe, start, end)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, result.Bars)
}

func (s *Server) handleLatestQuote(w http.ResponseWriter, r *http.Request) {
	symbols := r.URL.Query()["symbols"]
	if len(symbols) == 0 {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "query parameter symbols is required"))

		return
	}
	if s.quotes == nil {
		writeError(w, errors.New(errors.ErrCodeInvalidProvider, "no market data provider configured"))

		return
	}

	quotes := make(map[string]types.Quote, len(symbols))
	for _, symbol := range symbols {
		quote, err := s.quotes.LatestQuote(r.Context(), symbol)
		if err != nil {
			writeError(w, err)

			return
		}
		quotes[symbol] = quote
	}

	writeJSON(w, http.StatusOK, quotes)
}
