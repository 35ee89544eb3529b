package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
)

// Trader is the account surface the engine trades through.
type Trader interface {
	// GetPosition returns the trader's position in the symbol, zero valued
	// when none is held.
	GetPosition(symbol string) types.Position
	// PlaceOrder submits a market order.
	PlaceOrder(ctx context.Context, symbol string, side types.Side, quantity int64) error
	// BuyingPower returns the funds currently available for purchases.
	BuyingPower() float64
}

// QuoteSource prices the affordability guard before a buy. When nil the
// engine falls back to the evaluated bar's close, which is what a replay
// over historical bars wants.
type QuoteSource interface {
	LatestQuote(ctx context.Context, symbol string) (types.Quote, error)
}

// Engine evaluates strategies against incoming bars and places the resulting
// orders with the trader.
type Engine struct {
	quotes QuoteSource
	logger *logger.Logger
}

// NewEngine creates an engine. quotes may be nil for bar-priced evaluation.
func NewEngine(quotes QuoteSource, logger *logger.Logger) *Engine {
	return &Engine{
		quotes: quotes,
		logger: logger,
	}
}

// Evaluate runs one strategy against one bar. Buys are checked before sells
// and a satisfied buy side is dropped when the trader cannot afford the ask
// plus a two percent buffer. The returned decision is zero valued when no
// trade was taken.
func (e *Engine) Evaluate(ctx context.Context, strat *Strategy, bar types.Bar, trader Trader, window []types.Bar) (types.Decision, error) {
	if !strat.Active {
		return types.Decision{}, nil
	}

	position := trader.GetPosition(bar.Symbol)
	quantityAvailable := position.QuantityAvailable

	buy, err := strat.sideSatisfied(types.SideBuy, bar, position, window)
	if err != nil {
		return types.Decision{}, err
	}

	if buy {
		askPrice, err := e.askPrice(ctx, bar)
		if err != nil {
			return types.Decision{}, err
		}

		if trader.BuyingPower() < askPrice+0.02*askPrice {
			e.logger.Info("insufficient buying power",
				zap.String("strategy", strat.Alias),
				zap.String("symbol", bar.Symbol),
				zap.Float64("buying_power", trader.BuyingPower()),
				zap.Float64("ask_price", askPrice),
			)

			return types.Decision{}, nil
		}

		quantity := int64(1)
		if quantityAvailable < 0 {
			quantity = -quantityAvailable
		}

		if err := trader.PlaceOrder(ctx, bar.Symbol, types.SideBuy, quantity); err != nil {
			return types.Decision{}, err
		}

		e.logger.Info("buying",
			zap.String("strategy", strat.Alias),
			zap.String("symbol", bar.Symbol),
			zap.Int64("quantity", quantity),
		)

		return types.Decision{Side: types.SideBuy, Quantity: quantity}, nil
	}

	sell, err := strat.sideSatisfied(types.SideSell, bar, position, window)
	if err != nil {
		return types.Decision{}, err
	}

	if sell {
		quantity := int64(1)
		if quantityAvailable > 0 {
			quantity = quantityAvailable
		}

		if err := trader.PlaceOrder(ctx, bar.Symbol, types.SideSell, quantity); err != nil {
			return types.Decision{}, err
		}

		e.logger.Info("selling",
			zap.String("strategy", strat.Alias),
			zap.String("symbol", bar.Symbol),
			zap.Int64("quantity", quantity),
		)

		return types.Decision{Side: types.SideSell, Quantity: quantity}, nil
	}

	return types.Decision{}, nil
}

func (e *Engine) askPrice(ctx context.Context, bar types.Bar) (float64, error) {
	if e.quotes == nil {
		return bar.Close, nil
	}

	quote, err := e.quotes.LatestQuote(ctx, bar.Symbol)
	if err != nil {
		return 0, err
	}

	return quote.AskPrice, nil
}
