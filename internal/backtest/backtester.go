package backtest

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/bars"
	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/strategy"
	"github.com/thewatergategroups/llama/internal/trader"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

const (
	// defaultWorkers bounds how many replays run concurrently.
	defaultWorkers = 4
	// defaultDays is the replay window when the request does not set one.
	defaultDays = 30
	// historicDays of daily bars are warmed before the test window so
	// strategies have context from before their first minute bar.
	historicDays = 60
	// liveEdgeLag keeps the window clear of bars upstream may not have
	// published yet.
	liveEdgeLag = 15 * time.Minute
	// windowSize bounds the rolling bar window handed to conditions.
	windowSize = 100
)

// Definition is a backtest request.
type Definition struct {
	Symbols    []string `json:"symbols"`
	Strategies []string `json:"strategies,omitempty"`
	Days       int      `json:"days_to_test_over,omitempty"`
}

// Backtester runs strategy replays over historical bars with a bounded
// worker pool and persists the outcome.
type Backtester struct {
	runs                *RunStore
	history             *bars.History
	strategies          *strategy.Store
	logger              *logger.Logger
	workers             int
	startingBuyingPower float64
}

// NewBacktester wires a Backtester over the given stores.
func NewBacktester(runs *RunStore, history *bars.History, strategies *strategy.Store, logger *logger.Logger) *Backtester {
	return &Backtester{
		runs:                runs,
		history:             history,
		strategies:          strategies,
		logger:              logger,
		workers:             defaultWorkers,
		startingBuyingPower: trader.DefaultBuyingPower,
	}
}

// WithWorkers overrides the replay worker pool size.
func (b *Backtester) WithWorkers(workers int) *Backtester {
	b.workers = workers

	return b
}

// WithStartingBuyingPower overrides the simulated account balance each
// replay starts with.
func (b *Backtester) WithStartingBuyingPower(buyingPower float64) *Backtester {
	b.startingBuyingPower = buyingPower

	return b
}

// Start validates the request, resolves its strategies, and claims the
// single in-progress run slot. It returns the new run's id; Execute performs
// the actual replay.
func (b *Backtester) Start(ctx context.Context, def Definition) (int64, error) {
	if len(def.Symbols) == 0 {
		return 0, errors.New(errors.ErrCodeBacktestNoSymbols, "at least one symbol is required")
	}

	defs, err := b.resolveDefinitions(ctx, def.Strategies)
	if err != nil {
		return 0, err
	}
	if len(defs) == 0 {
		return 0, errors.New(errors.ErrCodeStrategyNotFound, "no strategies available to test")
	}

	id, err := b.runs.CreateRun(ctx, def.Symbols, defs)
	if err != nil {
		return 0, err
	}

	b.logger.Info("backtest started",
		zap.Int64("run_id", id),
		zap.Strings("symbols", def.Symbols),
		zap.Int("strategies", len(defs)),
	)

	return id, nil
}

// Execute replays every (strategy, symbol) pair of the run over the test
// window and persists the aggregate result plus the full stats timeline.
// Any failure marks the run FAILED with an empty result.
func (b *Backtester) Execute(ctx context.Context, runID int64, days int) error {
	err := b.execute(ctx, runID, days)
	if err != nil {
		b.logger.Error("backtest failed", zap.Int64("run_id", runID), zap.Error(err))
		if failErr := b.runs.FailRun(ctx, runID); failErr != nil {
			b.logger.Error("failed to mark run as failed", zap.Int64("run_id", runID), zap.Error(failErr))
		}
	}

	return err
}

// Run starts and executes a backtest synchronously.
func (b *Backtester) Run(ctx context.Context, def Definition) (int64, error) {
	id, err := b.Start(ctx, def)
	if err != nil {
		return 0, err
	}

	return id, b.Execute(ctx, id, def.Days)
}

func (b *Backtester) execute(ctx context.Context, runID int64, days int) error {
	stored, err := b.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if stored.IsNone() {
		return errors.Newf(errors.ErrCodeBacktestNotFound, "backtest %d does not exist", runID)
	}
	run := stored.Unwrap()

	if days <= 0 {
		days = defaultDays
	}

	end := time.Now().UTC().Add(-liveEdgeLag)
	start := end.AddDate(0, 0, -days)

	// Warm the store. Fetch failures are tolerated here: the replay works
	// off whatever the store can serve.
	result, err := b.history.GetBars(ctx, run.Symbols, types.TimeframeMinute, start, end)
	if err != nil {
		return errors.Wrap(errors.ErrCodeReplayFailed, "failed to load test window bars", err)
	}

	if _, err := b.history.GetBars(ctx, run.Symbols, types.TimeframeDay, start.AddDate(0, 0, -historicDays), start); err != nil {
		return errors.Wrap(errors.ErrCodeReplayFailed, "failed to load historic daily bars", err)
	}

	bySymbol := groupBySymbol(result.Bars)

	strats := make([]*strategy.Strategy, 0, len(run.Strategies))
	for _, def := range run.Strategies {
		strat, err := strategy.Resolve(def)
		if err != nil {
			return err
		}
		// Replays run every requested strategy, including ones switched
		// off for live trading.
		strat.Active = true
		strats = append(strats, strat)
	}

	type task struct {
		strat  *strategy.Strategy
		symbol string
	}

	var tasks []task
	for _, strat := range strats {
		for _, symbol := range run.Symbols {
			tasks = append(tasks, task{strat: strat, symbol: symbol})
		}
	}

	traders := make([]*trader.MockTrader, len(tasks))
	aliases := make([]string, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.workers)

	for i, t := range tasks {
		group.Go(func() error {
			mock := trader.NewMockTrader(b.startingBuyingPower)
			if err := b.replay(groupCtx, t.strat, mock, bySymbol[t.symbol]); err != nil {
				return err
			}

			traders[i] = mock
			aliases[i] = t.strat.Alias

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	aggregate := make(map[string]types.AggregateResult)
	for i, mock := range traders {
		merged := aggregate[aliases[i]]
		merged.Merge(mock.Aggregate())
		aggregate[aliases[i]] = merged
	}

	if err := b.runs.CompleteRun(ctx, runID, aggregate); err != nil {
		return err
	}

	for _, mock := range traders {
		if err := b.runs.AppendStats(ctx, runID, mock.History()); err != nil {
			return err
		}
	}

	b.logger.Info("backtest completed",
		zap.Int64("run_id", runID),
		zap.Int("replays", len(tasks)),
	)

	return nil
}

// replay walks one symbol's bars in order, evaluating the strategy against
// each bar and settling the decision at that bar's close. The rolling window
// holds the bars seen before the current one.
func (b *Backtester) replay(ctx context.Context, strat *strategy.Strategy, mock *trader.MockTrader, series []types.Bar) error {
	engine := strategy.NewEngine(nil, b.logger)

	var window []types.Bar
	for _, bar := range series {
		if err := ctx.Err(); err != nil {
			return err
		}

		decision, err := engine.Evaluate(ctx, strat, bar, mock, window)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeReplayFailed, err, "replay of %s on %s failed", strat.Alias, bar.Symbol)
		}

		mock.PostTradeUpdate(bar.Symbol, decision.Side, decision.Quantity, bar.Close, bar.Timestamp)

		window = append(window, bar)
		if len(window) > windowSize {
			window = window[1:]
		}
	}

	return nil
}

func (b *Backtester) resolveDefinitions(ctx context.Context, aliases []string) ([]types.StrategyDefinition, error) {
	if len(aliases) == 0 {
		return b.strategies.ListStrategies(ctx)
	}

	defs := make([]types.StrategyDefinition, 0, len(aliases))
	for _, alias := range aliases {
		stored, err := b.strategies.GetStrategy(ctx, alias)
		if err != nil {
			return nil, err
		}
		if stored.IsNone() {
			return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %s does not exist", alias)
		}
		defs = append(defs, stored.Unwrap())
	}

	return defs, nil
}

func groupBySymbol(series []types.Bar) map[string][]types.Bar {
	grouped := make(map[string][]types.Bar)
	for _, bar := range series {
		grouped[bar.Symbol] = append(grouped[bar.Symbol], bar)
	}

	for symbol := range grouped {
		sort.Slice(grouped[symbol], func(i, j int) bool {
			return grouped[symbol][i].Timestamp.Before(grouped[symbol][j].Timestamp)
		})
	}

	return grouped
}
