package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/thewatergategroups/llama/internal/indicator"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// BinanceClient implements Provider on top of the Binance klines API.
type BinanceClient struct {
	client *binance.Client
}

// NewBinanceClient creates a Binance-backed provider. Public kline data does
// not require credentials, so empty keys are accepted.
func NewBinanceClient(apiKey, secretKey string) (Provider, error) {
	return &BinanceClient{client: binance.NewClient(apiKey, secretKey)}, nil
}

// FetchBars implements Provider.
func (c *BinanceClient) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	interval, err := binanceInterval(timeframe)
	if err != nil {
		return nil, err
	}

	klines, err := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s klines for %s", interval, symbol)
	}

	bars := make([]types.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(symbol, timeframe, k)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}

	// Klines carry no venue VWAP, so derive one for the VWAP conditions.
	indicator.FillVWAP(bars)

	return bars, nil
}

// LatestQuote implements Provider.
func (c *BinanceClient) LatestQuote(ctx context.Context, symbol string) (types.Quote, error) {
	tickers, err := c.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return types.Quote{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch book ticker for %s", symbol)
	}
	if len(tickers) == 0 {
		return types.Quote{}, errors.Newf(errors.ErrCodeDataNotFound, "no book ticker returned for %s", symbol)
	}

	ask, err := strconv.ParseFloat(tickers[0].AskPrice, 64)
	if err != nil {
		return types.Quote{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse ask price", err)
	}

	bid, err := strconv.ParseFloat(tickers[0].BidPrice, 64)
	if err != nil {
		return types.Quote{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse bid price", err)
	}

	return types.Quote{
		Symbol:    symbol,
		AskPrice:  ask,
		BidPrice:  bid,
		Timestamp: time.Now().UTC(),
	}, nil
}

func klineToBar(symbol string, timeframe types.Timeframe, k *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse open price", err)
	}

	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse high price", err)
	}

	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse low price", err)
	}

	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse close price", err)
	}

	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse volume", err)
	}

	return types.Bar{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Timestamp:  time.UnixMilli(k.OpenTime).UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		TradeCount: k.TradeNum,
	}, nil
}

func binanceInterval(timeframe types.Timeframe) (string, error) {
	switch timeframe {
	case types.TimeframeMinute:
		return "1m", nil
	case types.TimeframeHour:
		return "1h", nil
	case types.TimeframeDay:
		return "1d", nil
	case types.TimeframeWeek:
		return "1w", nil
	case types.TimeframeMonth:
		return "1M", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe: %s", timeframe)
	}
}
