package bars

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// fakeFetcher serves bars for every expected timestamp in the requested
// range and records each call.
type fakeFetcher struct {
	calls   []types.TimeRange
	failFor map[string]error
}

func (f *fakeFetcher) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	f.calls = append(f.calls, types.TimeRange{From: start, To: end})
	if err, ok := f.failFor[symbol]; ok {
		return nil, err
	}

	var bars []types.Bar
	for _, ts := range ExpectedTimestamps(timeframe, start, end) {
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1,
		})
	}

	return bars, nil
}

type HistoryTestSuite struct {
	suite.Suite
	db      *sql.DB
	store   *Store
	fetcher *fakeFetcher
	history *History
	ctx     context.Context
}

func TestHistorySuite(t *testing.T) {
	suite.Run(t, new(HistoryTestSuite))
}

func (suite *HistoryTestSuite) SetupTest() {
	db, err := sql.Open("duckdb", ":memory:")
	suite.Require().NoError(err)
	suite.db = db
	suite.ctx = context.Background()
	suite.store = NewStore(db, logger.NewNopLogger())
	suite.Require().NoError(suite.store.Initialize(suite.ctx))
	suite.fetcher = &fakeFetcher{failFor: map[string]error{}}
	suite.history = NewHistory(suite.store, suite.fetcher, logger.NewNopLogger())
}

func (suite *HistoryTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

// 2024-03-11 is a Monday.
func (suite *HistoryTestSuite) window() (time.Time, time.Time) {
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	return day, day.Add(24*time.Hour - time.Minute)
}

func (suite *HistoryTestSuite) TestGetBarsFillsEmptyStore() {
	start, end := suite.window()

	result, err := suite.history.GetBars(suite.ctx, []string{"AAPL"}, types.TimeframeMinute, start, end)
	suite.NoError(err)
	suite.Empty(result.Failed)
	suite.Len(result.Bars, 7*60)
	suite.Len(suite.fetcher.calls, 1)
}

func (suite *HistoryTestSuite) TestSecondCallFetchesNothing() {
	start, end := suite.window()

	_, err := suite.history.GetBars(suite.ctx, []string{"AAPL"}, types.TimeframeMinute, start, end)
	suite.Require().NoError(err)
	firstCalls := len(suite.fetcher.calls)

	result, err := suite.history.GetBars(suite.ctx, []string{"AAPL"}, types.TimeframeMinute, start, end)
	suite.NoError(err)
	suite.Len(result.Bars, 7*60)
	suite.Len(suite.fetcher.calls, firstCalls)
}

func (suite *HistoryTestSuite) TestFailedSymbolDoesNotAbortOthers() {
	start, end := suite.window()
	suite.fetcher.failFor["BAD"] = errors.New(errors.ErrCodeMarketDataFetchFailed, "upstream down")

	result, err := suite.history.GetBars(suite.ctx, []string{"BAD", "AAPL"}, types.TimeframeMinute, start, end)
	suite.NoError(err)
	suite.Require().Len(result.Failed, 1)
	suite.Equal("BAD", result.Failed[0].Symbol)
	// AAPL still served in full
	suite.Len(result.Bars, 7*60)
}

func (suite *HistoryTestSuite) TestFailedRangeStaysMissing() {
	start, end := suite.window()
	suite.fetcher.failFor["BAD"] = errors.New(errors.ErrCodeMarketDataFetchFailed, "upstream down")

	_, err := suite.history.GetBars(suite.ctx, []string{"BAD"}, types.TimeframeMinute, start, end)
	suite.Require().NoError(err)

	detector := NewDetector(suite.store)
	ranges, err := detector.MissingRanges(suite.ctx, "BAD", types.TimeframeMinute, start, end)
	suite.NoError(err)
	suite.Len(ranges, 1)
}

func (suite *HistoryTestSuite) TestGetBarsValidation() {
	start, end := suite.window()

	_, err := suite.history.GetBars(suite.ctx, nil, types.TimeframeMinute, start, end)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))

	_, err = suite.history.GetBars(suite.ctx, []string{"AAPL"}, types.Timeframe("bogus"), start, end)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))

	_, err = suite.history.GetBars(suite.ctx, []string{"AAPL"}, types.TimeframeMinute, end, start)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTimeRange))
}
