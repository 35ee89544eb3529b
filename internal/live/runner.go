package live

import (
	"context"

	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/bars"
	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/strategy"
	"github.com/thewatergategroups/llama/internal/types"
)

const windowSize = 100

// BarSource delivers live bars, typically a Stream.
type BarSource interface {
	Bars() <-chan types.Bar
}

// Runner feeds incoming bars through every active strategy and persists them
// to the bar store. Strategy definitions are re-read per bar so edits made
// through the API apply without a restart.
type Runner struct {
	source     BarSource
	store      *bars.Store
	strategies *strategy.Store
	engine     *strategy.Engine
	trader     strategy.Trader
	logger     *logger.Logger
	windows    map[string][]types.Bar
}

// NewRunner wires a bar source to the engine and the trading account. quotes
// may be nil to price affordability checks off the incoming bars.
func NewRunner(source BarSource, store *bars.Store, strategies *strategy.Store, trader strategy.Trader, quotes strategy.QuoteSource, log *logger.Logger) *Runner {
	return &Runner{
		source:     source,
		store:      store,
		strategies: strategies,
		engine:     strategy.NewEngine(quotes, log),
		trader:     trader,
		logger:     log,
		windows:    make(map[string][]types.Bar),
	}
}

// Run consumes bars until the context is cancelled or the source closes.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case bar, ok := <-r.source.Bars():
			if !ok {
				return nil
			}
			r.handleBar(ctx, bar)
		}
	}
}

func (r *Runner) handleBar(ctx context.Context, bar types.Bar) {
	if err := r.store.Upsert(ctx, []types.Bar{bar}); err != nil {
		r.logger.Error("failed to persist live bar",
			zap.String("symbol", bar.Symbol),
			zap.Error(err))
	}

	defs, err := r.strategies.ListStrategies(ctx)
	if err != nil {
		r.logger.Error("failed to load strategies", zap.Error(err))

		return
	}

	window := r.windows[bar.Symbol]

	for _, def := range defs {
		if !def.Active {
			continue
		}

		strat, err := strategy.Resolve(def)
		if err != nil {
			r.logger.Error("failed to resolve strategy",
				zap.String("strategy", def.Alias),
				zap.Error(err))

			continue
		}

		decision, err := r.engine.Evaluate(ctx, strat, bar, r.trader, window)
		if err != nil {
			r.logger.Error("strategy evaluation failed",
				zap.String("strategy", def.Alias),
				zap.String("symbol", bar.Symbol),
				zap.Error(err))

			continue
		}

		if !decision.IsNone() {
			r.logger.Info("live trade placed",
				zap.String("strategy", def.Alias),
				zap.String("symbol", bar.Symbol),
				zap.String("side", string(decision.Side)),
				zap.Int64("quantity", decision.Quantity))
		}
	}

	window = append(window, bar)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	r.windows[bar.Symbol] = window
}
