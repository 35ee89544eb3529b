package types

import "time"

// Bar represents a single OHLCV candle for a symbol at a given timeframe.
type Bar struct {
	Symbol     string    `json:"symbol" validate:"required"`
	Timeframe  Timeframe `json:"timeframe" validate:"required"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// TimeRange is a half-open style timestamp span, inclusive at both ends,
// describing a contiguous run of expected bar timestamps.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Quote is the latest top-of-book snapshot for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	AskPrice  float64   `json:"ask_price"`
	BidPrice  float64   `json:"bid_price"`
	Timestamp time.Time `json:"timestamp"`
}
