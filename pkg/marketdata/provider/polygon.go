package provider

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// PolygonClient implements Provider on top of the Polygon aggregates API.
type PolygonClient struct {
	client *polygon.Client
}

// NewPolygonClient creates a Polygon-backed provider.
func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	return &PolygonClient{client: polygon.New(apiKey)}, nil
}

// FetchBars implements Provider.
func (c *PolygonClient) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	timespan, multiplier, err := polygonTimespan(timeframe)
	if err != nil {
		return nil, err
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := c.client.ListAggs(ctx, params)

	var bars []types.Bar
	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.Bar{
			Symbol:     symbol,
			Timeframe:  timeframe,
			Timestamp:  time.Time(agg.Timestamp).UTC(),
			Open:       agg.Open,
			High:       agg.High,
			Low:        agg.Low,
			Close:      agg.Close,
			Volume:     agg.Volume,
			TradeCount: int64(agg.Transactions),
			VWAP:       agg.VWAP,
		})
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, iter.Err(), "error iterating polygon aggregates for %s", symbol)
	}

	return bars, nil
}

// LatestQuote implements Provider.
func (c *PolygonClient) LatestQuote(ctx context.Context, symbol string) (types.Quote, error) {
	resp, err := c.client.GetLastQuote(ctx, &models.GetLastQuoteParams{Ticker: symbol})
	if err != nil {
		return types.Quote{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch last quote for %s", symbol)
	}

	return types.Quote{
		Symbol:    symbol,
		AskPrice:  resp.Results.AskPrice,
		BidPrice:  resp.Results.BidPrice,
		Timestamp: time.Time(resp.Results.ParticipantTimestamp).UTC(),
	}, nil
}

func polygonTimespan(timeframe types.Timeframe) (models.Timespan, int, error) {
	switch timeframe {
	case types.TimeframeMinute:
		return models.Minute, 1, nil
	case types.TimeframeHour:
		return models.Hour, 1, nil
	case types.TimeframeDay:
		return models.Day, 1, nil
	case types.TimeframeWeek:
		return models.Week, 1, nil
	case types.TimeframeMonth:
		return models.Month, 1, nil
	default:
		return "", 0, errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe: %s", timeframe)
	}
}
