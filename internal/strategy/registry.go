package strategy

import (
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// BaseConditions returns the account-state guards attached to every strategy:
// position caps on both sides plus take-profit and stop-loss exits.
func BaseConditions() []Condition {
	return []Condition{
		{
			Name:   "max_quantity_allowed",
			Kind:   KindMaxQuantity,
			Side:   types.SideBuy,
			Group:  types.ConditionGroupAnd,
			Active: true,
			Params: Params{MaxQuantity: 5},
		},
		{
			Name:   "take_profit",
			Kind:   KindTakeProfit,
			Side:   types.SideBuy,
			Group:  types.ConditionGroupOr,
			Active: true,
			Params: Params{UnrealizedPLPC: 2},
		},
		{
			Name:   "min_quantity_allowed",
			Kind:   KindMinQuantity,
			Side:   types.SideSell,
			Group:  types.ConditionGroupAnd,
			Active: true,
			Params: Params{MinQuantity: 0},
		},
		{
			Name:   "is_profitable",
			Kind:   KindProfitable,
			Side:   types.SideSell,
			Group:  types.ConditionGroupAnd,
			Active: true,
			Params: Params{UnrealizedPL: 0},
		},
		{
			Name:   "stop_loss",
			Kind:   KindStopLoss,
			Side:   types.SideSell,
			Group:  types.ConditionGroupOr,
			Active: true,
			Params: Params{UnrealizedPLPC: -10},
		},
	}
}

// VwapConditions returns the VWAP-derived entry and exit signals.
func VwapConditions() []Condition {
	return []Condition{
		{
			Name:   "positive_vwap_slope",
			Kind:   KindVwapSlope,
			Side:   types.SideBuy,
			Group:  types.ConditionGroupAnd,
			Active: true,
			Params: Params{SlopeThreshold: 0.005},
		},
		{
			Name:   "positive_vwap_crossover",
			Kind:   KindVwapCrossAbove,
			Side:   types.SideBuy,
			Group:  types.ConditionGroupAnd,
			Active: true,
		},
		{
			Name:   "negative_vwap_crossover",
			Kind:   KindVwapCrossBelow,
			Side:   types.SideSell,
			Group:  types.ConditionGroupAnd,
			Active: true,
		},
		{
			Name:   "vwap_reversion_buy",
			Kind:   KindReversionBelowVwap,
			Side:   types.SideBuy,
			Group:  types.ConditionGroupAnd,
			Active: false,
			Params: Params{DeviationThreshold: 0.001},
		},
		{
			Name:   "vwap_reversion_sell",
			Kind:   KindReversionAboveVwap,
			Side:   types.SideSell,
			Group:  types.ConditionGroupAnd,
			Active: false,
			Params: Params{DeviationThreshold: 0.001},
		},
	}
}

// AllConditions returns every registered condition keyed by name.
func AllConditions() map[string]Condition {
	all := make(map[string]Condition)
	for _, cond := range append(BaseConditions(), VwapConditions()...) {
		all[cond.Name] = cond
	}

	return all
}

// LookupCondition resolves a registered condition by name.
func LookupCondition(name string) (Condition, error) {
	cond, ok := AllConditions()[name]
	if !ok {
		return Condition{}, errors.Newf(errors.ErrCodeConditionNotFound, "condition %s is not registered", name)
	}

	return cond, nil
}

// DefaultStrategies returns the built-in strategy definitions used to seed
// the store on first start.
func DefaultStrategies() []types.StrategyDefinition {
	base := make([]types.ConditionSpec, 0, len(BaseConditions()))
	for _, cond := range BaseConditions() {
		base = append(base, cond.Spec())
	}

	vwap := make([]types.ConditionSpec, 0, len(VwapConditions()))
	for _, cond := range VwapConditions() {
		vwap = append(vwap, cond.Spec())
	}

	return []types.StrategyDefinition{
		{
			Alias:      "bs",
			Name:       "Base",
			Active:     false,
			Conditions: base,
		},
		{
			Alias:      "vwap",
			Name:       "Vwap",
			Active:     true,
			Conditions: append(base, vwap...),
		},
	}
}
