// Package bars persists OHLCV candles in DuckDB and reconciles the stored
// series against an upstream market data provider, backfilling gaps on demand.
package bars

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/types"
)

// Store persists bars keyed by (symbol, timeframe, timestamp).
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

// Initialize creates the bars table if it does not exist.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			trade_count BIGINT,
			vwap DOUBLE,
			PRIMARY KEY (symbol, timeframe, timestamp)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}

	return nil
}

// Upsert inserts bars, replacing any existing row sharing the same key.
// Re-inserting identical bars is a no-op for readers, which keeps backfills
// idempotent.
func (s *Store) Upsert(ctx context.Context, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, bar := range bars {
		insertQuery := s.sq.
			Insert("bars").
			Columns(
				"symbol", "timeframe", "timestamp", "open", "high", "low", "close",
				"volume", "trade_count", "vwap",
			).
			Values(
				bar.Symbol, string(bar.Timeframe), bar.Timestamp.UTC(), bar.Open, bar.High,
				bar.Low, bar.Close, bar.Volume, bar.TradeCount, bar.VWAP,
			).
			Suffix(`ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				trade_count = excluded.trade_count,
				vwap = excluded.vwap`).
			RunWith(tx)

		if _, err := insertQuery.ExecContext(ctx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Query returns all stored bars for the given symbols and timeframe within
// [start, end], ordered by timestamp then symbol.
func (s *Store) Query(ctx context.Context, symbols []string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	query := s.sq.
		Select("symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume", "trade_count", "vwap").
		From("bars").
		Where(squirrel.Eq{"symbol": symbols}).
		Where(squirrel.Eq{"timeframe": string(timeframe)}).
		Where(squirrel.GtOrEq{"timestamp": start.UTC()}).
		Where(squirrel.LtOrEq{"timestamp": end.UTC()}).
		OrderBy("timestamp ASC", "symbol ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var bar types.Bar
		var tf string
		err := rows.Scan(
			&bar.Symbol, &tf, &bar.Timestamp, &bar.Open, &bar.High, &bar.Low,
			&bar.Close, &bar.Volume, &bar.TradeCount, &bar.VWAP,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Timeframe = types.Timeframe(tf)
		bar.Timestamp = bar.Timestamp.UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars: %w", err)
	}

	return bars, nil
}

// Timestamps returns the set of stored bar timestamps for one symbol and
// timeframe within [start, end], keyed by Unix seconds.
func (s *Store) Timestamps(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) (map[int64]struct{}, error) {
	query := s.sq.
		Select("timestamp").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		Where(squirrel.Eq{"timeframe": string(timeframe)}).
		Where(squirrel.GtOrEq{"timestamp": start.UTC()}).
		Where(squirrel.LtOrEq{"timestamp": end.UTC()}).
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query bar timestamps: %w", err)
	}
	defer rows.Close()

	existing := make(map[int64]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		existing[ts.UTC().Unix()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timestamps: %w", err)
	}

	return existing, nil
}

// Count returns the number of stored bars for a symbol and timeframe.
func (s *Store) Count(ctx context.Context, symbol string, timeframe types.Timeframe) (int64, error) {
	query := s.sq.
		Select("COUNT(*)").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		Where(squirrel.Eq{"timeframe": string(timeframe)}).
		RunWith(s.db)

	var count int64
	if err := query.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}

	return count, nil
}
