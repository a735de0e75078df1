package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.ExecutionJournal interface using SQLite.
// It keeps one row per order id, upserted on every state transition, so an
// operator can inspect the last-known state of any execution this process
// has handled. The backend remains the system of record.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal creates a new SQLite execution journal.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("%w: journal DB path is empty", ports.ErrConfigurationError)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory '%s': %w", dir, err)
		}
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database at '%s': %w", cfg.DBPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal database at '%s': %w", cfg.DBPath, err)
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	cfg.Logger.Info(context.Background(), "Execution journal opened", map[string]interface{}{"path": cfg.DBPath})
	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS executions (
		order_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		size INTEGER NOT NULL,
		target_price REAL DEFAULT NULL,
		filled_price REAL DEFAULT NULL,
		filled_size INTEGER NOT NULL DEFAULT 0,
		commission REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		broker_order_id TEXT DEFAULT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
	CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions (symbol);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Record persists the current state of the execution record, replacing any
// previously journaled state for the same order id.
func (j *Journal) Record(ctx context.Context, rec *domain.ExecutionRecord) error {
	const query = `
	INSERT INTO executions (
		order_id, symbol, action, size, target_price, filled_price,
		filled_size, commission, status, broker_order_id, retry_count,
		last_error, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET
		filled_price = excluded.filled_price,
		filled_size = excluded.filled_size,
		commission = excluded.commission,
		status = excluded.status,
		broker_order_id = excluded.broker_order_id,
		retry_count = excluded.retry_count,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	var targetPrice, filledPrice sql.NullFloat64
	if rec.TargetPrice != nil {
		targetPrice = sql.NullFloat64{Float64: *rec.TargetPrice, Valid: true}
	}
	if rec.FilledPrice != nil {
		filledPrice = sql.NullFloat64{Float64: *rec.FilledPrice, Valid: true}
	}
	var brokerOrderID, lastError sql.NullString
	if rec.BrokerOrderID != "" {
		brokerOrderID = sql.NullString{String: rec.BrokerOrderID, Valid: true}
	}
	if rec.LastError != "" {
		lastError = sql.NullString{String: rec.LastError, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, query,
		rec.OrderID, rec.Symbol, string(rec.Action), rec.Size, targetPrice,
		filledPrice, rec.FilledSize, rec.Commission, string(rec.Status),
		brokerOrderID, rec.RetryCount, lastError, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to journal execution %s: %w", rec.OrderID, err)
	}
	return nil
}

// Status returns the last journaled status for an order id, or false when
// the order has never been journaled.
func (j *Journal) Status(ctx context.Context, orderID string) (domain.ExecutionStatus, bool, error) {
	var status string
	err := j.db.QueryRowContext(ctx, "SELECT status FROM executions WHERE order_id = ?", orderID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query journaled execution %s: %w", orderID, err)
	}
	return domain.ExecutionStatus(status), true, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
