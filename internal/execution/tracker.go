// Package execution owns the order execution lifecycle: it drives each trade
// signal from submission through to a terminal status, keeps retry
// bookkeeping for transient broker failures, and reconciles broker-reported
// fills with the backend of record.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quanttrader/internal/domain"
	"quanttrader/internal/metrics"
	"quanttrader/internal/ports"
)

// Tracker tracks order execution lifecycle from submission to completion.
//
// It owns two co-maintained maps: the pending table keyed by order id, and a
// reverse index from broker order id back to order id. Both are updated
// under one lock so they can never diverge. A record leaves the pending
// table exactly once, when it reaches a terminal status; the backend retains
// the permanent record.
type Tracker struct {
	backend ports.BackendClient
	broker  ports.Broker
	journal ports.ExecutionJournal // optional
	logger  ports.Logger
	metrics *metrics.Metrics // optional

	maxRetries int
	retryDelay time.Duration
	now        func() time.Time

	mu            sync.Mutex
	pending       map[string]*domain.ExecutionRecord // order_id -> record
	brokerToOrder map[string]string                  // broker_order_id -> order_id
}

// Config holds the tracker's dependencies and retry policy.
type Config struct {
	Backend ports.BackendClient
	Broker  ports.Broker
	Journal ports.ExecutionJournal // optional local audit trail
	Logger  ports.Logger
	Metrics *metrics.Metrics // optional instrumentation

	// MaxRetries caps submission retries; once retry_count exceeds it the
	// record transitions to the failed terminal status.
	MaxRetries int
	// RetryDelay is the minimum time between submission attempts for a
	// record in retry_pending.
	RetryDelay time.Duration
}

// New creates a new execution tracker.
func New(cfg Config) (*Tracker, error) {
	if cfg.Backend == nil || cfg.Broker == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for execution tracker")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MaxRetries cannot be negative")
	}

	return &Tracker{
		backend:       cfg.Backend,
		broker:        cfg.Broker,
		journal:       cfg.Journal,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		now:           time.Now,
		pending:       make(map[string]*domain.ExecutionRecord),
		brokerToOrder: make(map[string]string),
	}, nil
}

// SubmitOrder submits a signal to the broker and starts tracking its
// lifecycle. Returns true when the broker accepted the order.
//
// Broker failures never propagate: a transient failure marks the record
// retry_pending and leaves it in the pending table for a later attempt; a
// permanent rejection, or exhausting the retry budget, fails the record
// terminally. The backend is told about every transition as advisory state.
func (t *Tracker) SubmitOrder(ctx context.Context, sig *domain.TradeSignal) bool {
	if sig.OrderID == "" {
		// Malformed signal: rejected before entering the state machine,
		// never recorded, never retried.
		t.logger.Error(ctx, ports.ErrMissingOrderID, "Signal rejected", map[string]interface{}{"symbol": sig.Symbol})
		return false
	}

	t.mu.Lock()
	rec, exists := t.pending[sig.OrderID]
	if !exists {
		rec = domain.NewExecutionRecord(sig)
	}
	t.mu.Unlock()

	// Honor the retry delay between attempts for a record already waiting.
	if exists && rec.Status == domain.StatusRetryPending && t.retryDelay > 0 {
		if t.now().Sub(rec.UpdatedAt) < t.retryDelay {
			t.logger.Debug(ctx, "Skipping resubmission within retry delay", map[string]interface{}{"order_id": sig.OrderID})
			return false
		}
	}

	brokerOrderID, err := t.broker.PlaceOrder(ctx, sig)
	if err == nil && brokerOrderID == "" {
		err = fmt.Errorf("%w: broker returned empty order id", ports.ErrOrderPlacementFailed)
	}
	if err != nil {
		t.handleSubmitFailure(ctx, rec, err)
		return false
	}

	now := t.now().UTC()
	t.mu.Lock()
	rec.BrokerOrderID = brokerOrderID
	rec.Status = domain.StatusSubmitted
	rec.UpdatedAt = now
	t.pending[rec.OrderID] = rec
	t.brokerToOrder[brokerOrderID] = rec.OrderID
	pendingCount := len(t.pending)
	t.mu.Unlock()

	t.journalRecord(ctx, rec)
	if t.metrics != nil {
		t.metrics.OrdersSubmitted.Inc()
		t.metrics.PendingExecutions.Set(float64(pendingCount))
	}

	if err := t.backend.UpdateSignalStatus(ctx, rec.OrderID, map[string]interface{}{
		"status":       string(domain.StatusSubmitted),
		"qmt_order_id": brokerOrderID,
		"submitted_at": domain.UnixSeconds(now),
	}); err != nil {
		// In-memory state stays authoritative for this process lifetime;
		// the next reconciliation pass heals the backend from broker truth.
		t.logger.Error(ctx, err, "Failed to report submitted status", map[string]interface{}{"order_id": rec.OrderID})
	}

	t.logger.Info(ctx, "Order submitted", map[string]interface{}{
		"order_id":        rec.OrderID,
		"broker_order_id": brokerOrderID,
	})
	return true
}

// handleSubmitFailure routes a placement failure to retry_pending or, when
// the failure is permanent or the retry budget is exhausted, to failed.
func (t *Tracker) handleSubmitFailure(ctx context.Context, rec *domain.ExecutionRecord, cause error) {
	now := t.now().UTC()

	t.mu.Lock()
	rec.RetryCount++
	rec.LastError = cause.Error()
	rec.UpdatedAt = now

	terminal := ports.IsPermanentOrderError(cause) || rec.RetryCount > t.maxRetries
	if terminal {
		rec.Status = domain.StatusFailed
		delete(t.pending, rec.OrderID)
		if rec.BrokerOrderID != "" {
			delete(t.brokerToOrder, rec.BrokerOrderID)
		}
	} else {
		rec.Status = domain.StatusRetryPending
		t.pending[rec.OrderID] = rec
	}
	pendingCount := len(t.pending)
	t.mu.Unlock()

	t.journalRecord(ctx, rec)
	if t.metrics != nil {
		t.metrics.PendingExecutions.Set(float64(pendingCount))
		if terminal {
			t.metrics.SubmitFailures.Inc()
		} else {
			t.metrics.SubmitRetries.Inc()
		}
	}

	update := map[string]interface{}{
		"status":      string(rec.Status),
		"retry_count": rec.RetryCount,
		"last_error":  rec.LastError,
		"updated_at":  domain.UnixSeconds(now),
	}
	if err := t.backend.UpdateSignalStatus(ctx, rec.OrderID, update); err != nil {
		t.logger.Error(ctx, err, "Failed to report submission failure", map[string]interface{}{"order_id": rec.OrderID})
	}

	t.logger.Error(ctx, cause, "Order submission failed", map[string]interface{}{
		"order_id":    rec.OrderID,
		"status":      rec.Status,
		"retry_count": rec.RetryCount,
	})
}

// PollExecutionStatus queries the broker for execution status updates and
// reconciles every tracked order it reports. Broker order ids unknown to
// this tracker (e.g. orders placed outside this process) are skipped.
// Backend reporting failures are logged per order and never abort the poll
// of the remaining orders.
func (t *Tracker) PollExecutionStatus(ctx context.Context) {
	brokerExecutions, err := t.broker.GetExecutionStatus(ctx)
	if err != nil {
		t.logger.Error(ctx, err, "Failed to poll broker execution status")
		return
	}

	for brokerOrderID, brokerExec := range brokerExecutions {
		t.mu.Lock()
		orderID, ok := t.brokerToOrder[brokerOrderID]
		if !ok {
			t.mu.Unlock()
			continue
		}
		rec, ok := t.pending[orderID]
		if !ok {
			t.mu.Unlock()
			continue
		}

		newStatus := domain.MapBrokerStatus(brokerExec.Status)
		rec.Status = newStatus
		rec.FilledSize = brokerExec.FilledSize
		if rec.FilledSize > rec.Size {
			t.logger.Warn(ctx, "Broker reported fill above order size, clamping", map[string]interface{}{
				"order_id":    orderID,
				"filled_size": brokerExec.FilledSize,
				"size":        rec.Size,
			})
			rec.FilledSize = rec.Size
		}
		if brokerExec.AvgPrice > 0 {
			price := brokerExec.AvgPrice
			rec.FilledPrice = &price
		}
		rec.UpdatedAt = t.now().UTC()
		t.mu.Unlock()

		t.reportExecution(ctx, rec, brokerExec)

		if newStatus.IsTerminal() {
			t.completeExecution(ctx, orderID)
		}
	}
}

// reportExecution sends the reconciled execution and a signal status update
// to the backend. Best-effort: failures are logged and the poll continues.
func (t *Tracker) reportExecution(ctx context.Context, rec *domain.ExecutionRecord, brokerExec domain.BrokerExecution) {
	report := rec.Document()
	// Merge broker-specific fields not already present in the report.
	for key, value := range brokerExec.Extra {
		if _, present := report[key]; !present {
			report[key] = value
		}
	}

	if err := t.backend.CreateExecution(ctx, report); err != nil {
		t.logger.Error(ctx, err, "Failed to report execution", map[string]interface{}{"order_id": rec.OrderID})
	} else if t.metrics != nil {
		t.metrics.ExecutionsReported.Inc()
	}

	update := map[string]interface{}{
		"status":     string(rec.Status),
		"filled_qty": rec.FilledSize,
		"updated_at": domain.UnixSeconds(rec.UpdatedAt),
	}
	if rec.FilledPrice != nil {
		update["avg_price"] = *rec.FilledPrice
	}
	if rec.Status.IsTerminal() {
		update["executed_at"] = domain.UnixSeconds(rec.UpdatedAt)
	}
	if err := t.backend.UpdateSignalStatus(ctx, rec.OrderID, update); err != nil {
		t.logger.Error(ctx, err, "Failed to update signal status", map[string]interface{}{"order_id": rec.OrderID})
	}

	t.journalRecord(ctx, rec)
}

// completeExecution removes a terminal record from the pending table and its
// reverse-index entry. A later poll referencing the same broker order id is
// a no-op.
func (t *Tracker) completeExecution(ctx context.Context, orderID string) {
	t.mu.Lock()
	rec, ok := t.pending[orderID]
	if ok {
		delete(t.pending, orderID)
		if rec.BrokerOrderID != "" {
			delete(t.brokerToOrder, rec.BrokerOrderID)
		}
	}
	pendingCount := len(t.pending)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.PendingExecutions.Set(float64(pendingCount))
	}
	if ok {
		t.logger.Info(ctx, "Execution completed", map[string]interface{}{
			"order_id": orderID,
			"status":   rec.Status,
		})
	}
}

func (t *Tracker) journalRecord(ctx context.Context, rec *domain.ExecutionRecord) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Record(ctx, rec); err != nil {
		t.logger.Warn(ctx, "Failed to journal execution", map[string]interface{}{
			"order_id": rec.OrderID,
			"error":    err.Error(),
		})
	}
}

// PendingCount returns the number of executions still being tracked.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Status returns the tracked status for an order id, or false when the
// order is not in the pending table.
func (t *Tracker) Status(orderID string) (domain.ExecutionStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.pending[orderID]
	if !ok {
		return "", false
	}
	return rec.Status, true
}
