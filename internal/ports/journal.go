package ports

import (
	"context"

	"quanttrader/internal/domain"
)

// ExecutionJournal records execution state transitions to local storage for
// diagnostics. It is an audit trail only; the backend remains the system of
// record and the trader runs fine without a journal.
type ExecutionJournal interface {
	// Record persists the current state of the execution record, replacing
	// any previously journaled state for the same order id.
	Record(ctx context.Context, rec *domain.ExecutionRecord) error

	// Close releases the underlying storage.
	Close() error
}
