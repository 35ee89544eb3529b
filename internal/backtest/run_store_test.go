package backtest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

type RunStoreTestSuite struct {
	suite.Suite
	db    *sql.DB
	store *RunStore
	ctx   context.Context
}

func TestRunStoreSuite(t *testing.T) {
	suite.Run(t, new(RunStoreTestSuite))
}

func (suite *RunStoreTestSuite) SetupTest() {
	db, err := sql.Open("duckdb", ":memory:")
	suite.Require().NoError(err)
	suite.db = db
	suite.ctx = context.Background()
	suite.store = NewRunStore(db, logger.NewNopLogger())
	suite.Require().NoError(suite.store.Initialize(suite.ctx))
}

func (suite *RunStoreTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *RunStoreTestSuite) defs() []types.StrategyDefinition {
	return []types.StrategyDefinition{{Alias: "vwap", Name: "Vwap", Active: true}}
}

func (suite *RunStoreTestSuite) TestCreateRun() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.NoError(err)
	suite.Positive(id)

	run, err := suite.store.GetRun(suite.ctx, id)
	suite.NoError(err)
	suite.Require().True(run.IsSome())
	suite.Equal(types.RunStatusInProgress, run.Unwrap().Status)
	suite.Equal([]string{"AAPL"}, run.Unwrap().Symbols)
	suite.Len(run.Unwrap().Strategies, 1)
}

func (suite *RunStoreTestSuite) TestSecondRunRefusedWhileInProgress() {
	_, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)

	_, err = suite.store.CreateRun(suite.ctx, []string{"MSFT"}, suite.defs())
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestInProgress))
}

func (suite *RunStoreTestSuite) TestCompletedRunReleasesSlot() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)
	suite.Require().NoError(suite.store.CompleteRun(suite.ctx, id, map[string]types.AggregateResult{}))

	_, err = suite.store.CreateRun(suite.ctx, []string{"MSFT"}, suite.defs())
	suite.NoError(err)
}

func (suite *RunStoreTestSuite) TestFailedRunReleasesSlot() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)
	suite.Require().NoError(suite.store.FailRun(suite.ctx, id))

	run, err := suite.store.GetRun(suite.ctx, id)
	suite.NoError(err)
	suite.Equal(types.RunStatusFailed, run.Unwrap().Status)

	_, err = suite.store.CreateRun(suite.ctx, []string{"MSFT"}, suite.defs())
	suite.NoError(err)
}

func (suite *RunStoreTestSuite) TestFailStaleRuns() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)

	stale, err := suite.store.FailStaleRuns(suite.ctx)
	suite.NoError(err)
	suite.Equal(int64(1), stale)

	run, err := suite.store.GetRun(suite.ctx, id)
	suite.NoError(err)
	suite.Equal(types.RunStatusFailed, run.Unwrap().Status)

	stale, err = suite.store.FailStaleRuns(suite.ctx)
	suite.NoError(err)
	suite.Zero(stale)
}

func (suite *RunStoreTestSuite) TestConcurrentCreateAdmitsExactlyOne() {
	const (
		attempts = 16
		rounds   = 30
	)

	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		outcomes := make(chan outcome, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
				outcomes <- outcome{id: id, err: err}
			}()
		}
		wg.Wait()
		close(outcomes)

		var succeeded, refused int
		var winner int64
		for out := range outcomes {
			switch {
			case out.err == nil:
				succeeded++
				winner = out.id
			case errors.HasCode(out.err, errors.ErrCodeBacktestInProgress):
				refused++
			default:
				suite.FailNow("unexpected error", out.err)
			}
		}

		suite.Equal(1, succeeded, "round %d", round)
		suite.Equal(attempts-1, refused, "round %d", round)

		var inProgress int
		row := suite.db.QueryRowContext(suite.ctx,
			"SELECT count(*) FROM backtests WHERE status = ?", string(types.RunStatusInProgress))
		suite.Require().NoError(row.Scan(&inProgress))
		suite.Equal(1, inProgress, "round %d", round)

		suite.Require().NoError(suite.store.FailRun(suite.ctx, winner))
	}
}

type outcome struct {
	id  int64
	err error
}

func (suite *RunStoreTestSuite) TestCompleteRunStoresResult() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)

	result := map[string]types.AggregateResult{
		"vwap": {StartingBuyingPower: 1000, Equity: 1010, Buys: 2, Sells: 1},
	}
	suite.Require().NoError(suite.store.CompleteRun(suite.ctx, id, result))

	run, err := suite.store.GetRun(suite.ctx, id)
	suite.Require().NoError(err)
	got := run.Unwrap()
	suite.Equal(types.RunStatusCompleted, got.Status)
	suite.InDelta(1010.0, got.Result["vwap"].Equity, 1e-9)
	suite.Equal(int64(2), got.Result["vwap"].Buys)
}

func (suite *RunStoreTestSuite) TestSetStatusMissingRun() {
	err := suite.store.FailRun(suite.ctx, 999)
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestNotFound))
}

func (suite *RunStoreTestSuite) TestGetRunMissing() {
	run, err := suite.store.GetRun(suite.ctx, 999)
	suite.NoError(err)
	suite.True(run.IsNone())
}

func (suite *RunStoreTestSuite) TestLatestRun() {
	first, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)
	suite.Require().NoError(suite.store.CompleteRun(suite.ctx, first, nil))

	second, err := suite.store.CreateRun(suite.ctx, []string{"MSFT"}, suite.defs())
	suite.Require().NoError(err)

	latest, err := suite.store.LatestRun(suite.ctx)
	suite.NoError(err)
	suite.Equal(second, latest.Unwrap().ID)
}

func (suite *RunStoreTestSuite) TestListRuns() {
	for i := 0; i < 3; i++ {
		id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
		suite.Require().NoError(err)
		suite.Require().NoError(suite.store.CompleteRun(suite.ctx, id, nil))
	}

	runs, err := suite.store.ListRuns(suite.ctx, 2)
	suite.NoError(err)
	suite.Len(runs, 2)
	suite.Greater(runs[0].ID, runs[1].ID)
}

func (suite *RunStoreTestSuite) TestAppendStatsPersistsMoreThanOneChunk() {
	id, err := suite.store.CreateRun(suite.ctx, []string{"AAPL"}, suite.defs())
	suite.Require().NoError(err)

	base := time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC)
	snapshots := make([]types.TraderStats, statChunkSize+25)
	for i := range snapshots {
		snapshots[i] = types.TraderStats{
			Positions:           map[string]types.Position{"AAPL": {Symbol: "AAPL", Quantity: 1}},
			BuyingPower:         900,
			StartingBuyingPower: 1000,
			Equity:              1000 + float64(i),
			Timestamp:           base.Add(time.Duration(i) * time.Minute),
		}
	}
	suite.Require().NoError(suite.store.AppendStats(suite.ctx, id, snapshots))

	stats, err := suite.store.GetStats(suite.ctx, id)
	suite.NoError(err)
	suite.Len(stats, statChunkSize+25)
	// Chronological order
	suite.Equal(base, stats[0].Timestamp)
	suite.InDelta(1000.0, stats[0].Equity, 1e-9)
	suite.Equal(int64(1), stats[0].Positions["AAPL"].Quantity)
}
