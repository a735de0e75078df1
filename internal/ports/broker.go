package ports

import (
	"context"

	"quanttrader/internal/domain"
)

// Broker defines the interface for a trading venue integration. The trader
// uses this abstraction so that different brokers (simulated, real brokerage
// APIs) can be plugged in without changing the core execution engine.
//
// Brokers may support only a subset of the query capabilities. Unsupported
// queries return an explicit empty result, never an error, so callers do not
// need to distinguish "no data" from "not implemented".
type Broker interface {
	// PlaceOrder submits the signal to the venue and returns the broker-side
	// order id. It fails on invalid signal fields or venue rejection;
	// permanent rejections are wrapped with ErrOrderRejected.
	PlaceOrder(ctx context.Context, signal *domain.TradeSignal) (string, error)

	// QueryPositions returns the current holdings keyed by broker symbol.
	// Empty map if the broker does not support position queries.
	QueryPositions(ctx context.Context) (map[string]domain.BrokerPosition, error)

	// QueryAccount returns the current account balances.
	// Nil if the broker does not support account queries.
	QueryAccount(ctx context.Context) (*domain.BrokerAccount, error)

	// GetExecutionStatus returns broker-reported execution statuses keyed by
	// broker order id. Empty map if the broker does not support status
	// polling; push-based implementations may serve this from cached
	// callback data.
	GetExecutionStatus(ctx context.Context) (map[string]domain.BrokerExecution, error)

	// GetAccountInfo identifies the trading account behind this broker.
	GetAccountInfo() domain.AccountInfo

	// Close releases any held connection or session. Idempotent.
	Close() error
}
