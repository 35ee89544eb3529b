package types

// ConditionGroup determines how a condition combines with its siblings on the
// same side: every active AND condition must pass, while any single active OR
// condition passing is sufficient on its own.
type ConditionGroup string

const (
	ConditionGroupAnd ConditionGroup = "and"
	ConditionGroupOr  ConditionGroup = "or"
)

// ConditionSpec attaches a named condition to a strategy with per-strategy
// overrides for its variables, grouping, and activation.
type ConditionSpec struct {
	Name      string             `json:"name" validate:"required"`
	Group     ConditionGroup     `json:"type" validate:"required,oneof=and or"`
	Active    bool               `json:"active"`
	Variables map[string]float64 `json:"variables,omitempty"`
}

// StrategyDefinition is the persisted, parameterizable description of a
// strategy: an alias, its display name, and the conditions it is built from.
type StrategyDefinition struct {
	Alias      string          `json:"alias" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	Active     bool            `json:"active"`
	Conditions []ConditionSpec `json:"conditions,omitempty"`
}

// ConditionDefinition is the persisted description of a reusable condition
// with its side and default variables.
type ConditionDefinition struct {
	Name             string             `json:"name" validate:"required"`
	Side             Side               `json:"side" validate:"required,oneof=buy sell"`
	DefaultVariables map[string]float64 `json:"default_variables,omitempty"`
}
