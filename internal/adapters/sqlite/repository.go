package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"radiustrend/internal/domain"
	"radiustrend/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.KlineRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/radius_trend.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS klines (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	);
	CREATE INDEX IF NOT EXISTS idx_klines_symbol_interval_open_time ON klines (symbol, interval, open_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// SaveKlines persists a batch of klines inside one transaction.
// Rows with the same symbol/interval/open time are replaced, so re-fetching
// an overlapping range is idempotent.
func (r *Repository) SaveKlines(ctx context.Context, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback() // No-op after a successful commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO klines (symbol, interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare kline insert: %w: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, k := range klines {
		if _, err := stmt.ExecContext(ctx, k.Symbol, k.Interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			return fmt.Errorf("failed to insert kline at %s: %w: %w", k.OpenTime, ports.ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit kline batch: %w: %w", ports.ErrQueryFailed, err)
	}

	r.logger.Debug(ctx, "Saved klines", map[string]interface{}{"count": len(klines)})
	return nil
}

// FindBySymbolInterval retrieves up to limit of the most recent klines for a
// symbol and interval, ordered oldest first. limit <= 0 returns everything.
func (r *Repository) FindBySymbolInterval(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	query := `
		SELECT symbol, interval, open_time, close_time, open, high, low, close, volume
		FROM klines
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC`
	args := []interface{}{symbol, interval}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var klines []*domain.Kline
	for rows.Next() {
		k := &domain.Kline{IsFinal: true} // Stored klines are always closed bars
		if err := rows.Scan(&k.Symbol, &k.Interval, &k.OpenTime, &k.CloseTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan kline row: %w: %w", ports.ErrQueryFailed, err)
		}
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kline rows: %w: %w", ports.ErrQueryFailed, err)
	}

	// The query returns newest first so LIMIT keeps the most recent rows;
	// callers expect oldest first.
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}

	return klines, nil
}

// CountBySymbolInterval returns the number of stored klines for a symbol and interval.
func (r *Repository) CountBySymbolInterval(ctx context.Context, symbol, interval string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM klines WHERE symbol = ? AND interval = ?",
		symbol, interval).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count klines: %w: %w", ports.ErrQueryFailed, err)
	}
	return count, nil
}

// PruneKlines deletes all but the keep most recent klines for a symbol and
// interval. keep <= 0 is a no-op.
func (r *Repository) PruneKlines(ctx context.Context, symbol, interval string, keep int) error {
	if keep <= 0 {
		return nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM klines
		WHERE symbol = ? AND interval = ? AND open_time NOT IN (
			SELECT open_time FROM klines
			WHERE symbol = ? AND interval = ?
			ORDER BY open_time DESC
			LIMIT ?
		)`, symbol, interval, symbol, interval, keep)
	if err != nil {
		return fmt.Errorf("failed to prune klines: %w: %w", ports.ErrQueryFailed, err)
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		r.logger.Debug(ctx, "Pruned klines", map[string]interface{}{"symbol": symbol, "interval": interval, "deleted": deleted, "kept": keep})
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	r.logger.Info(context.Background(), "Closing database connection")
	return r.db.Close()
}
