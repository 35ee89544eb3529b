package provider

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// AlpacaClient implements Provider on top of the Alpaca market data API.
type AlpacaClient struct {
	client *marketdata.Client
}

// NewAlpacaClient creates an Alpaca-backed provider.
func NewAlpacaClient(apiKey, apiSecret string) (Provider, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "alpaca api key and secret are required")
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &AlpacaClient{client: client}, nil
}

// FetchBars implements Provider.
func (c *AlpacaClient) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	tf, err := alpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s bars for %s", timeframe, symbol)
	}

	bars := make([]types.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, types.Bar{
			Symbol:     symbol,
			Timeframe:  timeframe,
			Timestamp:  b.Timestamp.UTC(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     float64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}

	return bars, nil
}

// LatestQuote implements Provider.
func (c *AlpacaClient) LatestQuote(ctx context.Context, symbol string) (types.Quote, error) {
	quote, err := c.client.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return types.Quote{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch latest quote for %s", symbol)
	}

	return types.Quote{
		Symbol:    symbol,
		AskPrice:  quote.AskPrice,
		BidPrice:  quote.BidPrice,
		Timestamp: quote.Timestamp.UTC(),
	}, nil
}

func alpacaTimeFrame(timeframe types.Timeframe) (marketdata.TimeFrame, error) {
	switch timeframe {
	case types.TimeframeMinute:
		return marketdata.OneMin, nil
	case types.TimeframeHour:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case types.TimeframeDay:
		return marketdata.OneDay, nil
	case types.TimeframeWeek:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case types.TimeframeMonth:
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	default:
		return marketdata.TimeFrame{}, errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe: %s", timeframe)
	}
}
