package types

import "time"

// TraderStats is a point-in-time snapshot of a trader's account state.
// A replay produces one snapshot per bar, forming a dense equity timeline.
type TraderStats struct {
	Positions           map[string]Position `json:"positions"`
	BuyingPower         float64             `json:"buying_power"`
	StartingBuyingPower float64             `json:"starting_buying_power"`
	Equity              float64             `json:"equity"`
	Buys                int64               `json:"buys"`
	Sells               int64               `json:"sells"`
	Timestamp           time.Time           `json:"timestamp"`
}

// Clone returns a deep copy of the snapshot so later mutations of the live
// positions map cannot alter recorded history.
func (s TraderStats) Clone() TraderStats {
	out := s
	out.Positions = make(map[string]Position, len(s.Positions))
	for symbol, pos := range s.Positions {
		out.Positions[symbol] = pos
	}

	return out
}

// AggregateResult summarizes one or more finished replays for a strategy.
type AggregateResult struct {
	StartingBuyingPower float64             `json:"starting_buying_power"`
	BuyingPower         float64             `json:"buying_power"`
	Equity              float64             `json:"equity"`
	Buys                int64               `json:"buys"`
	Sells               int64               `json:"sells"`
	TotalPositionsHeld  int64               `json:"total_positions_held"`
	Positions           map[string]Position `json:"positions"`
}

// Merge folds another result into this one: scalar fields accumulate and
// the position maps union, with the other side winning on symbol collisions.
func (r *AggregateResult) Merge(other AggregateResult) {
	r.StartingBuyingPower += other.StartingBuyingPower
	r.BuyingPower += other.BuyingPower
	r.Equity += other.Equity
	r.Buys += other.Buys
	r.Sells += other.Sells
	r.TotalPositionsHeld += other.TotalPositionsHeld

	if r.Positions == nil {
		r.Positions = make(map[string]Position, len(other.Positions))
	}
	for symbol, pos := range other.Positions {
		r.Positions[symbol] = pos
	}
}
