package ports

import (
	"context"

	"quanttrader/internal/domain"
)

// SyncResponse is the backend acknowledgement for sync-style calls.
type SyncResponse struct {
	Success bool `json:"success"`
}

// CleanupResponse is the backend acknowledgement for stale-position cleanup.
type CleanupResponse struct {
	Success      bool    `json:"success"`
	DeletedCount int     `json:"deleted_count"`
	Timestamp    float64 `json:"timestamp"`
}

// BackendClient defines the interface to the trade-signal backend.
// All durable state lives behind this interface; the trader core only holds
// a best-effort in-memory view that is rebuildable from broker-side truth.
//
// Status-update and execution payloads are open maps rather than fixed
// structs: the backend accepts arbitrary advisory fields and the tracker
// merges broker-specific fields into execution reports.
type BackendClient interface {
	// GetPendingSignals fetches up to limit unfulfilled trade signals for the
	// authenticated user.
	GetPendingSignals(ctx context.Context, limit int, includeSubmitted bool) ([]*domain.TradeSignal, error)

	// UpdateSignalStatus posts a status update for one signal
	// (e.g. submitted with the broker order id, retry_pending with the last
	// error, failed when retries are exhausted).
	UpdateSignalStatus(ctx context.Context, orderID string, payload map[string]interface{}) error

	// CreateExecution reports a realized (or attempted) execution outcome.
	CreateExecution(ctx context.Context, execution map[string]interface{}) error

	// SyncPositions pushes the full current position set in one batch.
	SyncPositions(ctx context.Context, positions []map[string]interface{}) (*SyncResponse, error)

	// SyncAccount pushes the current account snapshot.
	SyncAccount(ctx context.Context, account map[string]interface{}) (*SyncResponse, error)

	// StorePositionSnapshot stores a dated portfolio snapshot document.
	StorePositionSnapshot(ctx context.Context, snapshot map[string]interface{}) (*SyncResponse, error)

	// CleanupStalePositions asks the backend to delete any position whose
	// symbol is not in currentSymbols, scoped to accountID when non-empty.
	CleanupStalePositions(ctx context.Context, currentSymbols []string, accountID string) (*CleanupResponse, error)
}
