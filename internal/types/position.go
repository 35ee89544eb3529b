package types

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	// SideNone indicates no trade should be taken.
	SideNone Side = ""
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Decision is the outcome of evaluating a strategy against a bar.
// The zero value means "do nothing".
type Decision struct {
	Side     Side  `json:"side"`
	Quantity int64 `json:"quantity"`
}

// IsNone reports whether the decision carries no trade.
func (d Decision) IsNone() bool {
	return d.Side == SideNone
}

// Position tracks a symbol's holdings and derived profit figures.
type Position struct {
	Symbol            string  `json:"symbol"`
	Quantity          int64   `json:"qty"`
	QuantityAvailable int64   `json:"qty_available"`
	AvgEntryPrice     float64 `json:"avg_entry_price"`
	CostBasis         float64 `json:"cost_basis"`
	CurrentPrice      float64 `json:"current_price"`
	MarketValue       float64 `json:"market_value"`
	UnrealizedPL      float64 `json:"unrealized_pl"`
	UnrealizedPLPC    float64 `json:"unrealized_plpc"`
}

// NewPosition returns an empty position for the given symbol.
func NewPosition(symbol string) Position {
	return Position{Symbol: symbol}
}

// ApplyFill folds an executed order into the position and recomputes the
// derived fields. The cost basis is rebuilt from quantity times average
// entry price, so flattening a position resets it for the next entry. A flat
// position after the fill reports zero profit figures.
func (p *Position) ApplyFill(side Side, quantity int64, price float64) {
	qty := decimal.NewFromInt(quantity)
	px := decimal.NewFromFloat(price)
	costBasis := decimal.NewFromInt(p.Quantity).Mul(decimal.NewFromFloat(p.AvgEntryPrice))
	newQty := decimal.NewFromInt(p.Quantity)

	switch side {
	case SideBuy:
		costBasis = costBasis.Add(qty.Mul(px))
		newQty = newQty.Add(qty)
	case SideSell:
		costBasis = costBasis.Sub(qty.Mul(px))
		newQty = newQty.Sub(qty)
	default:
		return
	}

	avgDivisor := newQty
	if newQty.IsZero() {
		avgDivisor = decimal.NewFromInt(1)
	}

	p.Quantity = newQty.IntPart()
	p.QuantityAvailable = newQty.IntPart()
	p.CostBasis = costBasis.InexactFloat64()
	p.AvgEntryPrice = costBasis.Div(avgDivisor).InexactFloat64()

	if newQty.IsZero() {
		p.UnrealizedPL = 0
		p.UnrealizedPLPC = 0
	}

	p.MarkToMarket(price)
}

// MarkToMarket refreshes the price dependent fields against the given price.
// Held positions get their unrealized figures recomputed too, so profit
// conditions see current numbers between fills.
func (p *Position) MarkToMarket(price float64) {
	px := decimal.NewFromFloat(price)
	qty := decimal.NewFromInt(p.Quantity)

	p.CurrentPrice = price
	p.MarketValue = qty.Mul(px).InexactFloat64()

	if p.Quantity == 0 {
		return
	}

	costBasis := decimal.NewFromFloat(p.CostBasis)
	totalPL := px.Mul(qty).Sub(costBasis)

	divisor := costBasis
	if divisor.IsZero() {
		divisor = decimal.NewFromInt(1)
	}

	p.UnrealizedPL = totalPL.InexactFloat64()
	p.UnrealizedPLPC = totalPL.Div(divisor).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
