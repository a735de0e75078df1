package broker

import (
	"context"
	"fmt"
	"sync"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"
)

const simulatedDefaultFillPrice = 100.0

// Simulated is a broker adapter that does not touch any real trading venue.
// It accepts orders, assigns fake broker order ids, and reports every placed
// order as fully filled on the next execution-status poll, so the whole
// execution lifecycle can be exercised safely end to end.
//
// Position and account queries are unsupported and return empty results.
type Simulated struct {
	logger ports.Logger

	mu      sync.Mutex
	seq     int64
	working map[string]domain.BrokerExecution // broker order id -> fill to report
	closed  bool
}

// NewSimulated creates a new simulated broker.
func NewSimulated(log ports.Logger) *Simulated {
	return &Simulated{
		logger:  log,
		working: make(map[string]domain.BrokerExecution),
	}
}

// PlaceOrder validates the signal, logs it, and returns a fake broker order
// id. The order is remembered and reported as filled on the next
// GetExecutionStatus call.
func (b *Simulated) PlaceOrder(ctx context.Context, sig *domain.TradeSignal) (string, error) {
	if sig.Symbol == "" || sig.Size <= 0 {
		return "", fmt.Errorf("%w: symbol=%q size=%d", ports.ErrOrderRejected, sig.Symbol, sig.Size)
	}
	if sig.Action != domain.Buy && sig.Action != domain.Sell {
		return "", fmt.Errorf("%w: invalid action %q", ports.ErrOrderRejected, sig.Action)
	}

	fillPrice := simulatedDefaultFillPrice
	if sig.Price != nil {
		fillPrice = *sig.Price
	}

	b.mu.Lock()
	b.seq++
	brokerOrderID := fmt.Sprintf("SIM-%d", b.seq)
	b.working[brokerOrderID] = domain.BrokerExecution{
		Status:     "filled",
		FilledSize: sig.Size,
		AvgPrice:   fillPrice,
	}
	b.mu.Unlock()

	b.logger.Info(ctx, "SIMULATED place_order", map[string]interface{}{
		"order_id":        sig.OrderID,
		"symbol":          sig.Symbol,
		"action":          sig.Action,
		"size":            sig.Size,
		"broker_order_id": brokerOrderID,
	})
	return brokerOrderID, nil
}

// QueryPositions is unsupported for the simulated broker.
func (b *Simulated) QueryPositions(ctx context.Context) (map[string]domain.BrokerPosition, error) {
	return map[string]domain.BrokerPosition{}, nil
}

// QueryAccount is unsupported for the simulated broker.
func (b *Simulated) QueryAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	return nil, nil
}

// GetExecutionStatus reports every order placed since the previous call as
// fully filled, then forgets it.
func (b *Simulated) GetExecutionStatus(ctx context.Context) (map[string]domain.BrokerExecution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]domain.BrokerExecution, len(b.working))
	for id, exec := range b.working {
		out[id] = exec
	}
	b.working = make(map[string]domain.BrokerExecution)
	return out, nil
}

// GetAccountInfo identifies the simulated account.
func (b *Simulated) GetAccountInfo() domain.AccountInfo {
	return domain.AccountInfo{
		AccountID:   "SIM-ACCOUNT",
		Broker:      "simulated",
		AccountType: "stock",
	}
}

// Close is idempotent; the simulated broker holds no connection.
func (b *Simulated) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.logger.Info(context.Background(), "SIMULATED broker closed")
	}
	return nil
}
