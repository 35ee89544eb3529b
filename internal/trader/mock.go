// Package trader implements the accounts strategies trade through: a
// simulated in-memory account for replays and an Alpaca-backed gateway for
// live trading.
package trader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thewatergategroups/llama/internal/types"
)

// DefaultBuyingPower is the simulated account's starting balance.
const DefaultBuyingPower = 1000

// MockTrader simulates an account during a replay. Orders fill instantly at
// the price passed to PostTradeUpdate and every update appends a snapshot,
// producing one stats row per bar.
type MockTrader struct {
	mu      sync.Mutex
	stats   types.TraderStats
	history []types.TraderStats
}

// NewMockTrader creates a simulated account with the given starting balance.
func NewMockTrader(startingBuyingPower float64) *MockTrader {
	return &MockTrader{
		stats: types.TraderStats{
			Positions:           make(map[string]types.Position),
			BuyingPower:         startingBuyingPower,
			StartingBuyingPower: startingBuyingPower,
			Equity:              startingBuyingPower,
		},
	}
}

// GetPosition implements strategy.Trader. An unheld symbol returns a zero
// valued position.
func (t *MockTrader) GetPosition(symbol string) types.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.position(symbol)
}

func (t *MockTrader) position(symbol string) types.Position {
	pos, ok := t.stats.Positions[symbol]
	if !ok {
		pos = types.NewPosition(symbol)
		t.stats.Positions[symbol] = pos
	}

	return pos
}

// PlaceOrder implements strategy.Trader. The simulated account has no order
// book; it just ensures the position row exists. The actual fill is applied
// by PostTradeUpdate with the bar's price.
func (t *MockTrader) PlaceOrder(ctx context.Context, symbol string, side types.Side, quantity int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.position(symbol)

	return nil
}

// BuyingPower implements strategy.Trader.
func (t *MockTrader) BuyingPower() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats.BuyingPower
}

// PostTradeUpdate settles a decision against the given price and records a
// snapshot. It must be called for every bar, with a none side when no trade
// was taken, so the snapshot timeline stays dense.
func (t *MockTrader) PostTradeUpdate(symbol string, side types.Side, quantity int64, price float64, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := t.position(symbol)
	notional := decimal.NewFromInt(quantity).Mul(decimal.NewFromFloat(price))
	buyingPower := decimal.NewFromFloat(t.stats.BuyingPower)

	switch side {
	case types.SideBuy:
		t.stats.BuyingPower = buyingPower.Sub(notional).InexactFloat64()
		t.stats.Buys += quantity
		pos.ApplyFill(types.SideBuy, quantity, price)
	case types.SideSell:
		t.stats.BuyingPower = buyingPower.Add(notional).InexactFloat64()
		t.stats.Sells += quantity
		pos.ApplyFill(types.SideSell, quantity, price)
	default:
		pos.MarkToMarket(price)
	}

	t.stats.Positions[symbol] = pos

	equity := decimal.NewFromFloat(t.stats.BuyingPower)
	for _, p := range t.stats.Positions {
		equity = equity.Add(decimal.NewFromFloat(p.MarketValue))
	}
	t.stats.Equity = equity.InexactFloat64()

	snapshot := t.stats.Clone()
	snapshot.Timestamp = timestamp
	t.history = append(t.history, snapshot)
}

// History returns the recorded snapshot timeline.
func (t *MockTrader) History() []types.TraderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TraderStats, len(t.history))
	copy(out, t.history)

	return out
}

// Aggregate summarizes the account's final state.
func (t *MockTrader) Aggregate() types.AggregateResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	positions := make(map[string]types.Position, len(t.stats.Positions))

	var held int64
	for symbol, pos := range t.stats.Positions {
		positions[symbol] = pos
		held += pos.Quantity
	}

	return types.AggregateResult{
		StartingBuyingPower: t.stats.StartingBuyingPower,
		BuyingPower:         t.stats.BuyingPower,
		Equity:              t.stats.Equity,
		Buys:                t.stats.Buys,
		Sells:               t.stats.Sells,
		TotalPositionsHeld:  held,
		Positions:           positions,
	}
}
