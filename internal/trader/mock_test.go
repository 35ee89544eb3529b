package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/internal/types"
)

type MockTraderTestSuite struct {
	suite.Suite
	trader *MockTrader
	now    time.Time
}

func TestMockTraderSuite(t *testing.T) {
	suite.Run(t, new(MockTraderTestSuite))
}

func (suite *MockTraderTestSuite) SetupTest() {
	suite.trader = NewMockTrader(DefaultBuyingPower)
	suite.now = time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC)
}

func (suite *MockTraderTestSuite) TestInitialState() {
	suite.Equal(float64(DefaultBuyingPower), suite.trader.BuyingPower())

	agg := suite.trader.Aggregate()
	suite.Equal(float64(DefaultBuyingPower), agg.StartingBuyingPower)
	suite.Equal(float64(DefaultBuyingPower), agg.Equity)
	suite.Zero(agg.Buys)
	suite.Zero(agg.Sells)
}

func (suite *MockTraderTestSuite) TestBuyMovesCashIntoPosition() {
	suite.trader.PostTradeUpdate("AAPL", types.SideBuy, 2, 100, suite.now)

	suite.InDelta(800.0, suite.trader.BuyingPower(), 1e-9)

	pos := suite.trader.GetPosition("AAPL")
	suite.Equal(int64(2), pos.Quantity)
	suite.InDelta(100.0, pos.AvgEntryPrice, 1e-9)

	agg := suite.trader.Aggregate()
	// Buys counts shares, not orders
	suite.Equal(int64(2), agg.Buys)
	suite.Equal(int64(2), agg.TotalPositionsHeld)
	// Equity unchanged by a fair-priced fill
	suite.InDelta(1000.0, agg.Equity, 1e-9)
}

func (suite *MockTraderTestSuite) TestBuySellRoundTripBanksProfit() {
	suite.trader.PostTradeUpdate("AAPL", types.SideBuy, 1, 100, suite.now)
	suite.trader.PostTradeUpdate("AAPL", types.SideSell, 1, 110, suite.now.Add(time.Minute))

	suite.InDelta(1010.0, suite.trader.BuyingPower(), 1e-9)

	agg := suite.trader.Aggregate()
	suite.Equal(int64(1), agg.Buys)
	suite.Equal(int64(1), agg.Sells)
	suite.Equal(int64(0), agg.TotalPositionsHeld)
	suite.InDelta(1010.0, agg.Equity, 1e-9)
}

func (suite *MockTraderTestSuite) TestNoneSideStillSnapshots() {
	suite.trader.PostTradeUpdate("AAPL", types.SideNone, 0, 100, suite.now)
	suite.trader.PostTradeUpdate("AAPL", types.SideNone, 0, 101, suite.now.Add(time.Minute))

	history := suite.trader.History()
	suite.Len(history, 2)
	suite.Equal(suite.now, history[0].Timestamp)
	suite.Equal(suite.now.Add(time.Minute), history[1].Timestamp)
}

func (suite *MockTraderTestSuite) TestNoneSideMarksOpenPositionToMarket() {
	suite.trader.PostTradeUpdate("AAPL", types.SideBuy, 1, 100, suite.now)
	suite.trader.PostTradeUpdate("AAPL", types.SideNone, 0, 120, suite.now.Add(time.Minute))

	pos := suite.trader.GetPosition("AAPL")
	suite.InDelta(120.0, pos.CurrentPrice, 1e-9)
	suite.InDelta(120.0, pos.MarketValue, 1e-9)
	suite.InDelta(20.0, pos.UnrealizedPL, 1e-9)
	suite.InDelta(20.0, pos.UnrealizedPLPC, 1e-9)

	agg := suite.trader.Aggregate()
	// 900 cash + 120 market value
	suite.InDelta(1020.0, agg.Equity, 1e-9)
}

func (suite *MockTraderTestSuite) TestSnapshotsAreImmutable() {
	suite.trader.PostTradeUpdate("AAPL", types.SideBuy, 1, 100, suite.now)
	suite.trader.PostTradeUpdate("AAPL", types.SideBuy, 1, 200, suite.now.Add(time.Minute))

	history := suite.trader.History()
	suite.Require().Len(history, 2)
	// The first snapshot still reflects the state after the first fill
	suite.Equal(int64(1), history[0].Positions["AAPL"].Quantity)
	suite.Equal(int64(2), history[1].Positions["AAPL"].Quantity)
}

func (suite *MockTraderTestSuite) TestPlaceOrderCreatesPositionRow() {
	err := suite.trader.PlaceOrder(context.Background(), "AAPL", types.SideBuy, 1)
	suite.NoError(err)

	agg := suite.trader.Aggregate()
	_, ok := agg.Positions["AAPL"]
	suite.True(ok)
	suite.Equal(int64(0), agg.TotalPositionsHeld)
}
