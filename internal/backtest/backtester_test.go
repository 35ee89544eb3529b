package backtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/internal/bars"
	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/strategy"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// risingFetcher serves a steadily rising price series for every expected
// timestamp in the requested range.
type risingFetcher struct{}

func (risingFetcher) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	var series []types.Bar
	for i, ts := range bars.ExpectedTimestamps(timeframe, start, end) {
		price := 10 + float64(i)*0.01
		series = append(series, types.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      price - 0.01,
			High:      price + 0.01,
			Low:       price - 0.02,
			Close:     price,
			Volume:    100,
			VWAP:      price - 0.005,
		})
	}

	return series, nil
}

type BacktesterTestSuite struct {
	suite.Suite
	db         *sql.DB
	runs       *RunStore
	strategies *strategy.Store
	backtester *Backtester
	ctx        context.Context
}

func TestBacktesterSuite(t *testing.T) {
	suite.Run(t, new(BacktesterTestSuite))
}

func (suite *BacktesterTestSuite) SetupTest() {
	db, err := sql.Open("duckdb", ":memory:")
	suite.Require().NoError(err)
	suite.db = db
	suite.ctx = context.Background()

	log := logger.NewNopLogger()

	barStore := bars.NewStore(db, log)
	suite.Require().NoError(barStore.Initialize(suite.ctx))
	history := bars.NewHistory(barStore, risingFetcher{}, log)

	suite.strategies = strategy.NewStore(db, log)
	suite.Require().NoError(suite.strategies.Initialize(suite.ctx))

	suite.runs = NewRunStore(db, log)
	suite.Require().NoError(suite.runs.Initialize(suite.ctx))

	suite.backtester = NewBacktester(suite.runs, history, suite.strategies, log)
}

func (suite *BacktesterTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

// swingStrategy buys a single share and sells it as soon as it is
// profitable, which against a rising price series alternates buy/sell and
// banks profit every round trip.
func (suite *BacktesterTestSuite) seedSwingStrategy(alias string) {
	def := types.StrategyDefinition{
		Alias:  alias,
		Name:   "Swing",
		Active: true,
		Conditions: []types.ConditionSpec{
			{Name: "max_quantity_allowed", Group: types.ConditionGroupAnd, Active: true, Variables: map[string]float64{"max_quantity": 1}},
			{Name: "min_quantity_allowed", Group: types.ConditionGroupAnd, Active: true, Variables: map[string]float64{"min_quantity": 0}},
			{Name: "is_profitable", Group: types.ConditionGroupAnd, Active: true, Variables: map[string]float64{"unrealized_pl": 0}},
		},
	}
	suite.Require().NoError(suite.strategies.UpsertStrategy(suite.ctx, def))
}

func (suite *BacktesterTestSuite) TestStartRequiresSymbols() {
	_, err := suite.backtester.Start(suite.ctx, Definition{})
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestNoSymbols))
}

func (suite *BacktesterTestSuite) TestStartUnknownStrategy() {
	_, err := suite.backtester.Start(suite.ctx, Definition{Symbols: []string{"AAPL"}, Strategies: []string{"missing"}})
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (suite *BacktesterTestSuite) TestSecondStartRefusedWhileRunning() {
	suite.seedSwingStrategy("swing")

	_, err := suite.backtester.Start(suite.ctx, Definition{Symbols: []string{"AAPL"}, Strategies: []string{"swing"}})
	suite.Require().NoError(err)

	_, err = suite.backtester.Start(suite.ctx, Definition{Symbols: []string{"AAPL"}, Strategies: []string{"swing"}})
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestInProgress))
}

func (suite *BacktesterTestSuite) TestRisingMarketRunBanksProfit() {
	suite.seedSwingStrategy("swing")

	id, err := suite.backtester.Run(suite.ctx, Definition{
		Symbols:    []string{"AAPL"},
		Strategies: []string{"swing"},
		Days:       3,
	})
	suite.Require().NoError(err)

	run, err := suite.runs.GetRun(suite.ctx, id)
	suite.Require().NoError(err)
	got := run.Unwrap()
	suite.Equal(types.RunStatusCompleted, got.Status)

	result, ok := got.Result["swing"]
	suite.Require().True(ok)
	suite.Positive(result.Buys)
	suite.Positive(result.Sells)
	suite.InDelta(1000.0, result.StartingBuyingPower, 1e-9)
	// Every completed round trip sold at a higher price than it bought
	suite.Greater(result.Equity, result.StartingBuyingPower)
}

func (suite *BacktesterTestSuite) TestReplayRunsStrategySwitchedOffForLive() {
	// The stored Active flag only gates live trading. Naming the alias in
	// the request is the opt-in for a replay.
	def := types.StrategyDefinition{
		Alias:  "parked",
		Name:   "Parked",
		Active: false,
		Conditions: []types.ConditionSpec{
			{Name: "max_quantity_allowed", Group: types.ConditionGroupAnd, Active: true, Variables: map[string]float64{"max_quantity": 1}},
		},
	}
	suite.Require().NoError(suite.strategies.UpsertStrategy(suite.ctx, def))

	id, err := suite.backtester.Run(suite.ctx, Definition{
		Symbols:    []string{"AAPL"},
		Strategies: []string{"parked"},
		Days:       1,
	})
	suite.Require().NoError(err)

	run, err := suite.runs.GetRun(suite.ctx, id)
	suite.Require().NoError(err)
	got := run.Unwrap()
	suite.Equal(types.RunStatusCompleted, got.Status)
	suite.Positive(got.Result["parked"].Buys)
}

func (suite *BacktesterTestSuite) TestStatsTimelineIsDense() {
	suite.seedSwingStrategy("swing")

	id, err := suite.backtester.Run(suite.ctx, Definition{
		Symbols:    []string{"AAPL"},
		Strategies: []string{"swing"},
		Days:       3,
	})
	suite.Require().NoError(err)

	barStore := bars.NewStore(suite.db, logger.NewNopLogger())
	stored, err := barStore.Count(suite.ctx, "AAPL", types.TimeframeMinute)
	suite.Require().NoError(err)
	suite.Require().Positive(stored)

	stats, err := suite.runs.GetStats(suite.ctx, id)
	suite.NoError(err)
	// One snapshot per replayed bar
	suite.Equal(stored, int64(len(stats)))
}

func (suite *BacktesterTestSuite) TestAggregationMergesPerStrategy() {
	suite.seedSwingStrategy("swing_a")
	suite.seedSwingStrategy("swing_b")

	id, err := suite.backtester.Run(suite.ctx, Definition{
		Symbols:    []string{"AAPL", "MSFT"},
		Strategies: []string{"swing_a", "swing_b"},
		Days:       3,
	})
	suite.Require().NoError(err)

	run, err := suite.runs.GetRun(suite.ctx, id)
	suite.Require().NoError(err)
	result := run.Unwrap().Result
	suite.Require().Len(result, 2)

	for _, alias := range []string{"swing_a", "swing_b"} {
		merged, ok := result[alias]
		suite.Require().True(ok, "missing result for %s", alias)
		// Two replays (one per symbol) merged into one entry
		suite.InDelta(2000.0, merged.StartingBuyingPower, 1e-9)
		suite.Len(merged.Positions, 2)
	}
}

func (suite *BacktesterTestSuite) TestFailedRunMarkedFailed() {
	// An unknown condition only explodes at resolve time inside Execute
	def := types.StrategyDefinition{
		Alias:      "broken",
		Name:       "Broken",
		Active:     true,
		Conditions: []types.ConditionSpec{{Name: "max_quantity_allowed", Group: types.ConditionGroupAnd, Active: true}},
	}
	suite.Require().NoError(suite.strategies.UpsertStrategy(suite.ctx, def))

	id, err := suite.backtester.Start(suite.ctx, Definition{Symbols: []string{"AAPL"}, Strategies: []string{"broken"}})
	suite.Require().NoError(err)

	// Corrupt the stored strategies so Execute's resolve fails
	_, err = suite.db.Exec(`UPDATE backtests SET strategies = '[{"alias":"broken","name":"Broken","active":true,"conditions":[{"name":"bogus","type":"and"}]}]' WHERE id = ?`, id)
	suite.Require().NoError(err)

	suite.Error(suite.backtester.Execute(suite.ctx, id, 3))

	run, err := suite.runs.GetRun(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusFailed, run.Unwrap().Status)
}
