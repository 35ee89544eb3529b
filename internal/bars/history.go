package bars

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// Fetcher retrieves bars from an upstream market data provider.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error)
}

// FetchFailure records one upstream fetch that failed during a fill pass.
// The range it covers stays missing in the store.
type FetchFailure struct {
	Symbol string          `json:"symbol"`
	Range  types.TimeRange `json:"range"`
	Err    error           `json:"-"`
}

// Result carries the bars served from the store after backfilling, plus any
// partial fetch failures encountered along the way.
type Result struct {
	Bars   []types.Bar
	Failed []FetchFailure
}

// History serves bar queries from the store, transparently backfilling any
// detected gaps from the upstream provider first. Repeated calls over a fully
// covered span perform no upstream fetches.
type History struct {
	store    *Store
	detector *Detector
	fetcher  Fetcher
	logger   *logger.Logger
}

// NewHistory wires a History over the given store and upstream fetcher.
func NewHistory(store *Store, fetcher Fetcher, logger *logger.Logger) *History {
	return &History{
		store:    store,
		detector: NewDetector(store),
		fetcher:  fetcher,
		logger:   logger,
	}
}

// GetBars returns every stored bar for the symbols in [start, end], filling
// missing ranges from upstream first. A failed fetch is logged and reported
// in the result rather than aborting the whole call, so other symbols still
// get served.
func (h *History) GetBars(ctx context.Context, symbols []string, timeframe types.Timeframe, start, end time.Time) (Result, error) {
	if len(symbols) == 0 {
		return Result{}, errors.New(errors.ErrCodeMissingParameter, "no symbols requested")
	}
	if err := timeframe.Validate(); err != nil {
		return Result{}, err
	}
	if end.Before(start) {
		return Result{}, errors.Newf(errors.ErrCodeInvalidTimeRange, "end %s before start %s", end, start)
	}

	var failed []FetchFailure
	for _, symbol := range symbols {
		ranges, err := h.detector.MissingRanges(ctx, symbol, timeframe, start, end)
		if err != nil {
			return Result{}, err
		}

		for _, r := range ranges {
			fetched, err := h.fetcher.FetchBars(ctx, symbol, timeframe, r.From, r.To)
			if err != nil {
				h.logger.Warn("upstream fetch failed",
					zap.String("symbol", symbol),
					zap.String("timeframe", string(timeframe)),
					zap.Time("from", r.From),
					zap.Time("to", r.To),
					zap.Error(err),
				)
				failed = append(failed, FetchFailure{Symbol: symbol, Range: r, Err: err})
				continue
			}

			if err := h.store.Upsert(ctx, fetched); err != nil {
				return Result{}, err
			}

			h.logger.Debug("backfilled bars",
				zap.String("symbol", symbol),
				zap.String("timeframe", string(timeframe)),
				zap.Int("count", len(fetched)),
			)
		}
	}

	stored, err := h.store.Query(ctx, symbols, timeframe, timeframe.Align(start), timeframe.Align(end))
	if err != nil {
		return Result{}, err
	}

	return Result{Bars: stored, Failed: failed}, nil
}
