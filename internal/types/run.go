package types

import "time"

// RunStatus is the lifecycle state of a backtest run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
)

// BacktestRun is a persisted backtest record.
type BacktestRun struct {
	ID         int64                      `json:"id"`
	Symbols    []string                   `json:"symbols"`
	Strategies []StrategyDefinition       `json:"strategies,omitempty"`
	Result     map[string]AggregateResult `json:"result,omitempty"`
	Status     RunStatus                  `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// BacktestStat is one persisted snapshot row belonging to a run's timeline.
type BacktestStat struct {
	ID                  int64               `json:"id"`
	BacktestID          int64               `json:"backtest_id"`
	Positions           map[string]Position `json:"positions"`
	BuyingPower         float64             `json:"buying_power"`
	Equity              float64             `json:"equity"`
	StartingBuyingPower float64             `json:"starting_buying_power"`
	Buys                int64               `json:"buys"`
	Sells               int64               `json:"sells"`
	Timestamp           time.Time           `json:"timestamp"`
}
