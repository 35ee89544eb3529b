package strategy

import (
	"github.com/thewatergategroups/llama/internal/types"
)

// Strategy is a resolved, runnable strategy: a definition whose condition
// specs have been bound to registered condition kinds with overrides applied.
type Strategy struct {
	Alias      string
	Name       string
	Active     bool
	Conditions []Condition

	buckets map[types.Side]map[types.ConditionGroup][]Condition
}

// NewStrategy builds a Strategy from already resolved conditions.
func NewStrategy(alias, name string, active bool, conditions []Condition) *Strategy {
	buckets := map[types.Side]map[types.ConditionGroup][]Condition{
		types.SideBuy: {
			types.ConditionGroupAnd: nil,
			types.ConditionGroupOr:  nil,
		},
		types.SideSell: {
			types.ConditionGroupAnd: nil,
			types.ConditionGroupOr:  nil,
		},
	}
	for _, cond := range conditions {
		buckets[cond.Side][cond.Group] = append(buckets[cond.Side][cond.Group], cond)
	}

	return &Strategy{
		Alias:      alias,
		Name:       name,
		Active:     active,
		Conditions: conditions,
		buckets:    buckets,
	}
}

// Resolve binds a stored definition to the condition registry, applying the
// per-strategy variable overrides, grouping, and activation flags.
func Resolve(def types.StrategyDefinition) (*Strategy, error) {
	conditions := make([]Condition, 0, len(def.Conditions))
	for _, spec := range def.Conditions {
		cond, err := LookupCondition(spec.Name)
		if err != nil {
			return nil, err
		}

		cond.Group = spec.Group
		cond.Active = spec.Active
		cond.Params.ApplyVariables(spec.Variables)
		conditions = append(conditions, cond)
	}

	return NewStrategy(def.Alias, def.Name, def.Active, conditions), nil
}

// Definition converts the strategy back into its persistable form.
func (s *Strategy) Definition() types.StrategyDefinition {
	specs := make([]types.ConditionSpec, 0, len(s.Conditions))
	for _, cond := range s.Conditions {
		specs = append(specs, cond.Spec())
	}

	return types.StrategyDefinition{
		Alias:      s.Alias,
		Name:       s.Name,
		Active:     s.Active,
		Conditions: specs,
	}
}

// sideSatisfied evaluates one side's conditions: every active AND condition
// must pass (vacuously true with none active), or any single active OR
// condition passing decides the side on its own.
func (s *Strategy) sideSatisfied(side types.Side, bar types.Bar, position types.Position, window []types.Bar) (bool, error) {
	allAnd := true
	for _, cond := range s.buckets[side][types.ConditionGroupAnd] {
		if !cond.Active {
			continue
		}

		pass, err := cond.Evaluate(bar, position, window)
		if err != nil {
			return false, err
		}
		if !pass {
			allAnd = false
			break
		}
	}

	if allAnd {
		return true, nil
	}

	for _, cond := range s.buckets[side][types.ConditionGroupOr] {
		if !cond.Active {
			continue
		}

		pass, err := cond.Evaluate(bar, position, window)
		if err != nil {
			return false, err
		}
		if pass {
			return true, nil
		}
	}

	return false, nil
}
