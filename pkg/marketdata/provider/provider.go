// Package provider implements upstream market data clients sharing a common
// interface for historical bars and latest quotes.
package provider

import (
	"context"
	"time"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	ProviderAlpaca  ProviderType = "alpaca"
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// Provider fetches historical bars and latest quotes from an upstream venue.
type Provider interface {
	// FetchBars downloads bars for the symbol between start and end inclusive.
	FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error)
	// LatestQuote returns the most recent top-of-book quote for the symbol.
	LatestQuote(ctx context.Context, symbol string) (types.Quote, error)
}

// Config carries the credentials needed to construct a provider.
type Config struct {
	Type            ProviderType `yaml:"type" validate:"required,oneof=alpaca polygon binance"`
	AlpacaAPIKey    string       `yaml:"alpaca_api_key" validate:"required_if=Type alpaca"`
	AlpacaAPISecret string       `yaml:"alpaca_api_secret" validate:"required_if=Type alpaca"`
	PolygonAPIKey   string       `yaml:"polygon_api_key" validate:"required_if=Type polygon"`
	BinanceAPIKey   string       `yaml:"binance_api_key"`
	BinanceSecret   string       `yaml:"binance_secret"`
}

// NewProvider creates a market data provider based on the configured type.
func NewProvider(config Config) (Provider, error) {
	switch config.Type {
	case ProviderAlpaca:
		return NewAlpacaClient(config.AlpacaAPIKey, config.AlpacaAPISecret)
	case ProviderPolygon:
		return NewPolygonClient(config.PolygonAPIKey)
	case ProviderBinance:
		return NewBinanceClient(config.BinanceAPIKey, config.BinanceSecret)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", config.Type)
	}
}
