package trader

import (
	"context"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// AlpacaTrader trades a real Alpaca account. It satisfies the same interface
// as the simulated trader so strategies cannot tell the two apart.
type AlpacaTrader struct {
	client *alpaca.Client
	logger *logger.Logger
}

// NewAlpacaTrader creates a trading gateway against the given Alpaca
// endpoint. Use the paper trading base URL for dry runs.
func NewAlpacaTrader(apiKey, apiSecret, baseURL string, logger *logger.Logger) (*AlpacaTrader, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "alpaca api key and secret are required")
	}

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	return &AlpacaTrader{
		client: client,
		logger: logger,
	}, nil
}

// GetPosition implements strategy.Trader. Symbols with no open position, or
// lookups that fail upstream, report a zero valued position so condition
// evaluation can proceed.
func (t *AlpacaTrader) GetPosition(symbol string) types.Position {
	raw, err := t.client.GetPosition(symbol)
	if err != nil {
		t.logger.Debug("no position available", zap.String("symbol", symbol), zap.Error(err))

		return types.NewPosition(symbol)
	}

	return types.Position{
		Symbol:            symbol,
		Quantity:          raw.Qty.IntPart(),
		QuantityAvailable: raw.QtyAvailable.IntPart(),
		AvgEntryPrice:     raw.AvgEntryPrice.InexactFloat64(),
		CostBasis:         raw.CostBasis.InexactFloat64(),
		CurrentPrice:      derefDecimal(raw.CurrentPrice),
		MarketValue:       derefDecimal(raw.MarketValue),
		UnrealizedPL:      derefDecimal(raw.UnrealizedPL),
		UnrealizedPLPC:    derefDecimal(raw.UnrealizedPLPC) * 100,
	}
}

// PlaceOrder implements strategy.Trader by submitting a good-till-cancelled
// market order.
func (t *AlpacaTrader) PlaceOrder(ctx context.Context, symbol string, side types.Side, quantity int64) error {
	qty := decimal.NewFromInt(quantity)

	orderSide := alpaca.Buy
	if side == types.SideSell {
		orderSide = alpaca.Sell
	}

	order, err := t.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        orderSide,
		Type:        alpaca.Market,
		TimeInForce: alpaca.GTC,
	})
	if err != nil {
		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to place %s order for %s", side, symbol)
	}

	t.logger.Info("order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity),
		zap.String("order_id", order.ID),
	)

	return nil
}

// BuyingPower implements strategy.Trader. An account lookup failure reports
// zero, which suppresses buys rather than risking an uncovered order.
func (t *AlpacaTrader) BuyingPower() float64 {
	account, err := t.client.GetAccount()
	if err != nil {
		t.logger.Error("failed to fetch account", zap.Error(err))

		return 0
	}

	return account.BuyingPower.InexactFloat64()
}

func derefDecimal(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}

	return d.InexactFloat64()
}
