// Package strategy implements parameterized trading strategies built from
// reusable conditions, and the engine that turns a bar plus account state
// into a trade decision.
package strategy

import (
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// Kind identifies the predicate a condition evaluates. Each kind reads its
// own subset of Params; everything is dispatched through Condition.Evaluate.
type Kind string

const (
	// KindMaxQuantity passes while the available quantity is below MaxQuantity.
	KindMaxQuantity Kind = "max_quantity"
	// KindMinQuantity passes while the available quantity is above MinQuantity.
	KindMinQuantity Kind = "min_quantity"
	// KindTakeProfit passes when the unrealized profit percentage reaches UnrealizedPLPC.
	KindTakeProfit Kind = "take_profit"
	// KindStopLoss passes when the unrealized profit percentage drops to UnrealizedPLPC.
	KindStopLoss Kind = "stop_loss"
	// KindProfitable passes when the unrealized profit exceeds UnrealizedPL.
	KindProfitable Kind = "profitable"
	// KindVwapSlope passes when the relative VWAP slope against the previous
	// bar exceeds SlopeThreshold.
	KindVwapSlope Kind = "vwap_slope"
	// KindVwapCrossAbove passes when the close trades above the VWAP.
	KindVwapCrossAbove Kind = "vwap_cross_above"
	// KindVwapCrossBelow passes when the close trades below the VWAP.
	KindVwapCrossBelow Kind = "vwap_cross_below"
	// KindReversionBelowVwap passes when the close deviates below the VWAP
	// by more than DeviationThreshold.
	KindReversionBelowVwap Kind = "reversion_below_vwap"
	// KindReversionAboveVwap passes when the close deviates above the VWAP
	// by more than DeviationThreshold.
	KindReversionAboveVwap Kind = "reversion_above_vwap"
)

// Params holds every tunable a condition kind can read. Only the fields a
// kind documents are consulted; the rest are ignored.
type Params struct {
	MaxQuantity        int64   `json:"max_quantity,omitempty"`
	MinQuantity        int64   `json:"min_quantity,omitempty"`
	UnrealizedPL       float64 `json:"unrealized_pl,omitempty"`
	UnrealizedPLPC     float64 `json:"unrealized_plpc,omitempty"`
	SlopeThreshold     float64 `json:"vwap_slope_threshold,omitempty"`
	DeviationThreshold float64 `json:"deviation_threshold,omitempty"`
}

// Variables flattens the params into the generic key/value form used for
// persistence and the API surface.
func (p Params) Variables() map[string]float64 {
	return map[string]float64{
		"max_quantity":         float64(p.MaxQuantity),
		"min_quantity":         float64(p.MinQuantity),
		"unrealized_pl":        p.UnrealizedPL,
		"unrealized_plpc":      p.UnrealizedPLPC,
		"vwap_slope_threshold": p.SlopeThreshold,
		"deviation_threshold":  p.DeviationThreshold,
	}
}

// ApplyVariables overrides only the params named in the map; unknown keys
// are ignored so stored overrides stay forward compatible.
func (p *Params) ApplyVariables(variables map[string]float64) {
	for key, value := range variables {
		switch key {
		case "max_quantity":
			p.MaxQuantity = int64(value)
		case "min_quantity":
			p.MinQuantity = int64(value)
		case "unrealized_pl":
			p.UnrealizedPL = value
		case "unrealized_plpc":
			p.UnrealizedPLPC = value
		case "vwap_slope_threshold":
			p.SlopeThreshold = value
		case "deviation_threshold":
			p.DeviationThreshold = value
		}
	}
}

// Condition is one predicate contributing to a strategy's trade decision on
// a given side. AND conditions must all pass; any OR condition passing is
// sufficient on its own.
type Condition struct {
	Name   string               `json:"name"`
	Kind   Kind                 `json:"kind"`
	Side   types.Side           `json:"side"`
	Group  types.ConditionGroup `json:"type"`
	Active bool                 `json:"active"`
	Params Params               `json:"variables"`
}

// Evaluate runs the condition's predicate against the current bar, the
// trader's position in the bar's symbol, and the rolling window of bars seen
// before this one.
func (c Condition) Evaluate(bar types.Bar, position types.Position, window []types.Bar) (bool, error) {
	switch c.Kind {
	case KindMaxQuantity:
		return position.QuantityAvailable < c.Params.MaxQuantity, nil
	case KindMinQuantity:
		return position.QuantityAvailable > c.Params.MinQuantity, nil
	case KindTakeProfit:
		return position.UnrealizedPLPC >= c.Params.UnrealizedPLPC, nil
	case KindStopLoss:
		return position.UnrealizedPLPC <= c.Params.UnrealizedPLPC, nil
	case KindProfitable:
		return position.UnrealizedPL > c.Params.UnrealizedPL, nil
	case KindVwapSlope:
		return vwapSlope(bar, window) > c.Params.SlopeThreshold, nil
	case KindVwapCrossAbove:
		return bar.VWAP < bar.Close, nil
	case KindVwapCrossBelow:
		return bar.VWAP > bar.Close, nil
	case KindReversionBelowVwap:
		return bar.Close < bar.VWAP*(1-c.Params.DeviationThreshold), nil
	case KindReversionAboveVwap:
		return bar.Close > bar.VWAP*(1+c.Params.DeviationThreshold), nil
	default:
		return false, errors.Newf(errors.ErrCodeConditionNotFound, "unknown condition kind: %s", c.Kind)
	}
}

// Spec converts the condition into its persistable attachment form.
func (c Condition) Spec() types.ConditionSpec {
	return types.ConditionSpec{
		Name:      c.Name,
		Group:     c.Group,
		Active:    c.Active,
		Variables: c.Params.Variables(),
	}
}

// vwapSlope returns the relative VWAP change between the last windowed bar
// and the current one. Without a previous bar there is no slope.
func vwapSlope(bar types.Bar, window []types.Bar) float64 {
	if len(window) == 0 {
		return 0
	}

	previous := window[len(window)-1].VWAP
	if previous <= 0 {
		return 0
	}

	return (bar.VWAP - previous) / previous
}
