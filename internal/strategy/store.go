package strategy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
)

// Store persists strategy and condition definitions.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewStore wraps an open DuckDB handle. Call Initialize before first use.
func NewStore(db *sql.DB, logger *logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Initialize creates the strategy tables if they do not exist.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			alias TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT false
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create strategies table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conditions (
			name TEXT PRIMARY KEY,
			side TEXT NOT NULL,
			default_variables TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conditions table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategy_conditions (
			strategy_alias TEXT NOT NULL,
			condition_name TEXT NOT NULL,
			cond_group TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			variables TEXT,
			PRIMARY KEY (strategy_alias, condition_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create strategy_conditions table: %w", err)
	}

	return nil
}

// Seed inserts the built-in strategies and registered conditions, leaving
// rows that already exist untouched so operator edits survive restarts.
func (s *Store) Seed(ctx context.Context) error {
	for _, cond := range AllConditions() {
		variables, err := json.Marshal(cond.Params.Variables())
		if err != nil {
			return fmt.Errorf("failed to marshal condition variables: %w", err)
		}

		insertQuery := s.sq.
			Insert("conditions").
			Columns("name", "side", "default_variables").
			Values(cond.Name, string(cond.Side), string(variables)).
			Suffix("ON CONFLICT (name) DO NOTHING").
			RunWith(s.db)

		if _, err := insertQuery.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to seed condition %s: %w", cond.Name, err)
		}
	}

	for _, def := range DefaultStrategies() {
		insertQuery := s.sq.
			Insert("strategies").
			Columns("alias", "name", "active").
			Values(def.Alias, def.Name, def.Active).
			Suffix("ON CONFLICT (alias) DO NOTHING").
			RunWith(s.db)

		if _, err := insertQuery.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to seed strategy %s: %w", def.Alias, err)
		}

		for _, spec := range def.Conditions {
			if err := s.seedStrategyCondition(ctx, def.Alias, spec); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Store) seedStrategyCondition(ctx context.Context, alias string, spec types.ConditionSpec) error {
	variables, err := json.Marshal(spec.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal condition variables: %w", err)
	}

	insertQuery := s.sq.
		Insert("strategy_conditions").
		Columns("strategy_alias", "condition_name", "cond_group", "active", "variables").
		Values(alias, spec.Name, string(spec.Group), spec.Active, string(variables)).
		Suffix("ON CONFLICT (strategy_alias, condition_name) DO NOTHING").
		RunWith(s.db)

	if _, err := insertQuery.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to seed strategy condition %s/%s: %w", alias, spec.Name, err)
	}

	return nil
}

// ListStrategies returns every stored strategy with its conditions.
func (s *Store) ListStrategies(ctx context.Context) ([]types.StrategyDefinition, error) {
	query := s.sq.
		Select("alias", "name", "active").
		From("strategies").
		OrderBy("alias ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var defs []types.StrategyDefinition
	for rows.Next() {
		var def types.StrategyDefinition
		if err := rows.Scan(&def.Alias, &def.Name, &def.Active); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategies: %w", err)
	}

	for i := range defs {
		conditions, err := s.strategyConditions(ctx, defs[i].Alias)
		if err != nil {
			return nil, err
		}
		defs[i].Conditions = conditions
	}

	return defs, nil
}

// GetStrategy returns one strategy by alias, or None when it is not stored.
func (s *Store) GetStrategy(ctx context.Context, alias string) (optional.Option[types.StrategyDefinition], error) {
	query := s.sq.
		Select("alias", "name", "active").
		From("strategies").
		Where(squirrel.Eq{"alias": alias}).
		RunWith(s.db)

	var def types.StrategyDefinition
	err := query.QueryRowContext(ctx).Scan(&def.Alias, &def.Name, &def.Active)
	if err == sql.ErrNoRows {
		return optional.None[types.StrategyDefinition](), nil
	}
	if err != nil {
		return optional.None[types.StrategyDefinition](), fmt.Errorf("failed to query strategy: %w", err)
	}

	conditions, err := s.strategyConditions(ctx, alias)
	if err != nil {
		return optional.None[types.StrategyDefinition](), err
	}
	def.Conditions = conditions

	return optional.Some(def), nil
}

func (s *Store) strategyConditions(ctx context.Context, alias string) ([]types.ConditionSpec, error) {
	query := s.sq.
		Select("condition_name", "cond_group", "active", "variables").
		From("strategy_conditions").
		Where(squirrel.Eq{"strategy_alias": alias}).
		OrderBy("condition_name ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy conditions: %w", err)
	}
	defer rows.Close()

	var specs []types.ConditionSpec
	for rows.Next() {
		var spec types.ConditionSpec
		var group string
		var variables sql.NullString
		if err := rows.Scan(&spec.Name, &group, &spec.Active, &variables); err != nil {
			return nil, fmt.Errorf("failed to scan strategy condition: %w", err)
		}
		spec.Group = types.ConditionGroup(group)
		if variables.Valid && variables.String != "" {
			if err := json.Unmarshal([]byte(variables.String), &spec.Variables); err != nil {
				return nil, fmt.Errorf("failed to unmarshal condition variables: %w", err)
			}
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategy conditions: %w", err)
	}

	return specs, nil
}

// UpsertStrategy writes a strategy row and replaces its condition attachments.
func (s *Store) UpsertStrategy(ctx context.Context, def types.StrategyDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	insertQuery := s.sq.
		Insert("strategies").
		Columns("alias", "name", "active").
		Values(def.Alias, def.Name, def.Active).
		Suffix("ON CONFLICT (alias) DO UPDATE SET name = excluded.name, active = excluded.active").
		RunWith(tx)

	if _, err := insertQuery.ExecContext(ctx); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to upsert strategy: %w", err)
	}

	// Upsert each attachment in place and then drop the leftovers. Deleting
	// everything and re-inserting the same keys inside one transaction trips
	// DuckDB's ART index, which rejects the re-insert as a duplicate key.
	kept := make([]string, 0, len(def.Conditions))
	for _, spec := range def.Conditions {
		variables, err := json.Marshal(spec.Variables)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal condition variables: %w", err)
		}

		condQuery := s.sq.
			Insert("strategy_conditions").
			Columns("strategy_alias", "condition_name", "cond_group", "active", "variables").
			Values(def.Alias, spec.Name, string(spec.Group), spec.Active, string(variables)).
			Suffix(`ON CONFLICT (strategy_alias, condition_name) DO UPDATE SET
				cond_group = excluded.cond_group,
				active = excluded.active,
				variables = excluded.variables`).
			RunWith(tx)

		if _, err := condQuery.ExecContext(ctx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert strategy condition: %w", err)
		}
		kept = append(kept, spec.Name)
	}

	deleteQuery := s.sq.
		Delete("strategy_conditions").
		Where(squirrel.Eq{"strategy_alias": def.Alias}).
		RunWith(tx)
	if len(kept) > 0 {
		deleteQuery = deleteQuery.Where(squirrel.NotEq{"condition_name": kept})
	}

	if _, err := deleteQuery.ExecContext(ctx); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prune strategy conditions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SetStrategyActive flips a strategy's activation flag.
func (s *Store) SetStrategyActive(ctx context.Context, alias string, active bool) error {
	query := s.sq.
		Update("strategies").
		Set("active", active).
		Where(squirrel.Eq{"alias": alias}).
		RunWith(s.db)

	result, err := query.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update strategy: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("strategy %s does not exist", alias)
	}

	return nil
}

// UpsertStrategyCondition writes one condition attachment on a strategy.
func (s *Store) UpsertStrategyCondition(ctx context.Context, alias string, spec types.ConditionSpec) error {
	variables, err := json.Marshal(spec.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal condition variables: %w", err)
	}

	insertQuery := s.sq.
		Insert("strategy_conditions").
		Columns("strategy_alias", "condition_name", "cond_group", "active", "variables").
		Values(alias, spec.Name, string(spec.Group), spec.Active, string(variables)).
		Suffix(`ON CONFLICT (strategy_alias, condition_name) DO UPDATE SET
			cond_group = excluded.cond_group,
			active = excluded.active,
			variables = excluded.variables`).
		RunWith(s.db)

	if _, err := insertQuery.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert strategy condition: %w", err)
	}

	return nil
}

// DeleteStrategy removes a strategy and its condition attachments.
func (s *Store) DeleteStrategy(ctx context.Context, alias string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	deleteConditions := s.sq.
		Delete("strategy_conditions").
		Where(squirrel.Eq{"strategy_alias": alias}).
		RunWith(tx)

	if _, err := deleteConditions.ExecContext(ctx); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete strategy conditions: %w", err)
	}

	deleteStrategy := s.sq.
		Delete("strategies").
		Where(squirrel.Eq{"alias": alias}).
		RunWith(tx)

	if _, err := deleteStrategy.ExecContext(ctx); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete strategy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListConditions returns every stored condition definition.
func (s *Store) ListConditions(ctx context.Context) ([]types.ConditionDefinition, error) {
	query := s.sq.
		Select("name", "side", "default_variables").
		From("conditions").
		OrderBy("name ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	var defs []types.ConditionDefinition
	for rows.Next() {
		var def types.ConditionDefinition
		var side string
		var variables sql.NullString
		if err := rows.Scan(&def.Name, &side, &variables); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		def.Side = types.Side(side)
		if variables.Valid && variables.String != "" {
			if err := json.Unmarshal([]byte(variables.String), &def.DefaultVariables); err != nil {
				return nil, fmt.Errorf("failed to unmarshal default variables: %w", err)
			}
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}

	return defs, nil
}
