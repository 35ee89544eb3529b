// Package backtest orchestrates strategy replays over historical bars and
// persists run records and their stats timelines.
package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

// statChunkSize bounds how many stat rows go into one insert transaction.
const statChunkSize = 100

// RunStore persists backtest runs and their snapshot timelines.
type RunStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	// createMu serializes CreateRun. DuckDB snapshot isolation lets two
	// concurrent transactions both pass the NOT EXISTS check, so the SQL
	// guard alone is not enough.
	createMu sync.Mutex
}

// NewRunStore wraps an open DuckDB handle. Call Initialize before first use.
func NewRunStore(db *sql.DB, logger *logger.Logger) *RunStore {
	return &RunStore{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Initialize creates the run tables if they do not exist.
func (s *RunStore) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE SEQUENCE IF NOT EXISTS backtest_id_seq`)
	if err != nil {
		return fmt.Errorf("failed to create backtest sequence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE SEQUENCE IF NOT EXISTS backtest_stat_id_seq`)
	if err != nil {
		return fmt.Errorf("failed to create backtest stat sequence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS backtests (
			id BIGINT PRIMARY KEY DEFAULT nextval('backtest_id_seq'),
			symbols TEXT NOT NULL,
			strategies TEXT,
			result TEXT,
			status TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create backtests table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS backtest_stats (
			id BIGINT PRIMARY KEY DEFAULT nextval('backtest_stat_id_seq'),
			backtest_id BIGINT NOT NULL,
			positions TEXT,
			buying_power DOUBLE,
			equity DOUBLE,
			starting_buying_power DOUBLE,
			buys BIGINT,
			sells BIGINT,
			timestamp TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create backtest_stats table: %w", err)
	}

	return nil
}

// CreateRun inserts a new IN_PROGRESS run, refusing when one already exists.
// The check and insert happen in a single statement, and CreateRun itself is
// serialized: under DuckDB snapshot isolation two concurrent transactions
// could otherwise both pass the NOT EXISTS check and both insert.
func (s *RunStore) CreateRun(ctx context.Context, symbols []string, strategies []types.StrategyDefinition) (int64, error) {
	symbolsJSON, err := json.Marshal(symbols)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal symbols: %w", err)
	}

	strategiesJSON, err := json.Marshal(strategies)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal strategies: %w", err)
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// DuckDB cannot infer parameter types inside INSERT ... SELECT, so the
	// placeholders carry explicit casts.
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO backtests (id, symbols, strategies, status, timestamp)
		SELECT nextval('backtest_id_seq'), ?::TEXT, ?::TEXT, ?::TEXT, ?::TIMESTAMP
		WHERE NOT EXISTS (SELECT 1 FROM backtests WHERE status = ?::TEXT)
		RETURNING id
	`, string(symbolsJSON), string(strategiesJSON), string(types.RunStatusInProgress),
		time.Now().UTC(), string(types.RunStatusInProgress)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errors.New(errors.ErrCodeBacktestInProgress, "a backtest is already in progress")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create backtest run: %w", err)
	}

	return id, nil
}

// CompleteRun marks a run COMPLETED and stores its aggregate result.
func (s *RunStore) CompleteRun(ctx context.Context, id int64, result map[string]types.AggregateResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return s.setStatus(ctx, id, types.RunStatusCompleted, string(resultJSON))
}

// FailRun marks a run FAILED with an empty result.
func (s *RunStore) FailRun(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, types.RunStatusFailed, "{}")
}

// FailStaleRuns marks every IN_PROGRESS run as FAILED. A run only stays
// IN_PROGRESS across process restarts when the previous process died
// mid-backtest, so this runs once at startup to release the slot.
func (s *RunStore) FailStaleRuns(ctx context.Context) (int64, error) {
	query := s.sq.
		Update("backtests").
		Set("status", string(types.RunStatusFailed)).
		Where(squirrel.Eq{"status": string(types.RunStatusInProgress)}).
		RunWith(s.db)

	result, err := query.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale runs: %w", err)
	}
	return result.RowsAffected()
}

func (s *RunStore) setStatus(ctx context.Context, id int64, status types.RunStatus, resultJSON string) error {
	query := s.sq.
		Update("backtests").
		Set("status", string(status)).
		Set("result", resultJSON).
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	result, err := query.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrCodeBacktestNotFound, "backtest %d does not exist", id)
	}

	return nil
}

// GetRun returns one run by id.
func (s *RunStore) GetRun(ctx context.Context, id int64) (optional.Option[types.BacktestRun], error) {
	query := s.sq.
		Select("id", "symbols", "strategies", "result", "status", "timestamp").
		From("backtests").
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	run, err := scanRun(query.QueryRowContext(ctx))
	if err == sql.ErrNoRows {
		return optional.None[types.BacktestRun](), nil
	}
	if err != nil {
		return optional.None[types.BacktestRun](), err
	}

	return optional.Some(run), nil
}

// LatestRun returns the most recently started run.
func (s *RunStore) LatestRun(ctx context.Context) (optional.Option[types.BacktestRun], error) {
	query := s.sq.
		Select("id", "symbols", "strategies", "result", "status", "timestamp").
		From("backtests").
		OrderBy("id DESC").
		Limit(1).
		RunWith(s.db)

	run, err := scanRun(query.QueryRowContext(ctx))
	if err == sql.ErrNoRows {
		return optional.None[types.BacktestRun](), nil
	}
	if err != nil {
		return optional.None[types.BacktestRun](), err
	}

	return optional.Some(run), nil
}

// ListRuns returns runs newest first, up to limit.
func (s *RunStore) ListRuns(ctx context.Context, limit uint64) ([]types.BacktestRun, error) {
	if limit == 0 {
		limit = 50
	}

	query := s.sq.
		Select("id", "symbols", "strategies", "result", "status", "timestamp").
		From("backtests").
		OrderBy("id DESC").
		Limit(limit).
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []types.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// AppendStats persists snapshots for a run in bounded chunks.
func (s *RunStore) AppendStats(ctx context.Context, runID int64, snapshots []types.TraderStats) error {
	for start := 0; start < len(snapshots); start += statChunkSize {
		end := start + statChunkSize
		if end > len(snapshots) {
			end = len(snapshots)
		}

		if err := s.appendStatsChunk(ctx, runID, snapshots[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *RunStore) appendStatsChunk(ctx context.Context, runID int64, snapshots []types.TraderStats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, snapshot := range snapshots {
		positionsJSON, err := json.Marshal(snapshot.Positions)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal positions: %w", err)
		}

		insertQuery := s.sq.
			Insert("backtest_stats").
			Columns("backtest_id", "positions", "buying_power", "equity", "starting_buying_power", "buys", "sells", "timestamp").
			Values(runID, string(positionsJSON), snapshot.BuyingPower, snapshot.Equity,
				snapshot.StartingBuyingPower, snapshot.Buys, snapshot.Sells, snapshot.Timestamp.UTC()).
			RunWith(tx)

		if _, err := insertQuery.ExecContext(ctx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert stat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetStats returns a run's snapshot timeline in chronological order.
func (s *RunStore) GetStats(ctx context.Context, runID int64) ([]types.BacktestStat, error) {
	query := s.sq.
		Select("id", "backtest_id", "positions", "buying_power", "equity", "starting_buying_power", "buys", "sells", "timestamp").
		From("backtest_stats").
		Where(squirrel.Eq{"backtest_id": runID}).
		OrderBy("timestamp ASC", "id ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []types.BacktestStat
	for rows.Next() {
		var stat types.BacktestStat
		var positionsJSON sql.NullString
		err := rows.Scan(&stat.ID, &stat.BacktestID, &positionsJSON, &stat.BuyingPower,
			&stat.Equity, &stat.StartingBuyingPower, &stat.Buys, &stat.Sells, &stat.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		if positionsJSON.Valid && positionsJSON.String != "" {
			if err := json.Unmarshal([]byte(positionsJSON.String), &stat.Positions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
			}
		}
		stat.Timestamp = stat.Timestamp.UTC()
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats: %w", err)
	}

	return stats, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (types.BacktestRun, error) {
	var run types.BacktestRun
	var symbolsJSON string
	var strategiesJSON, resultJSON sql.NullString
	var status string

	err := row.Scan(&run.ID, &symbolsJSON, &strategiesJSON, &resultJSON, &status, &run.Timestamp)
	if err != nil {
		return types.BacktestRun{}, err
	}

	run.Status = types.RunStatus(status)
	run.Timestamp = run.Timestamp.UTC()

	if err := json.Unmarshal([]byte(symbolsJSON), &run.Symbols); err != nil {
		return types.BacktestRun{}, fmt.Errorf("failed to unmarshal symbols: %w", err)
	}
	if strategiesJSON.Valid && strategiesJSON.String != "" {
		if err := json.Unmarshal([]byte(strategiesJSON.String), &run.Strategies); err != nil {
			return types.BacktestRun{}, fmt.Errorf("failed to unmarshal strategies: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &run.Result); err != nil {
			return types.BacktestRun{}, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return run, nil
}
