package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"
)

// Mock implementations

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type signalUpdate struct {
	orderID string
	payload map[string]interface{}
}

type mockBackend struct {
	signalUpdates []signalUpdate
	executions    []map[string]interface{}

	updateErr    error
	executionErr error
}

func (m *mockBackend) GetPendingSignals(ctx context.Context, limit int, includeSubmitted bool) ([]*domain.TradeSignal, error) {
	return nil, nil
}

func (m *mockBackend) UpdateSignalStatus(ctx context.Context, orderID string, payload map[string]interface{}) error {
	m.signalUpdates = append(m.signalUpdates, signalUpdate{orderID: orderID, payload: payload})
	return m.updateErr
}

func (m *mockBackend) CreateExecution(ctx context.Context, execution map[string]interface{}) error {
	m.executions = append(m.executions, execution)
	return m.executionErr
}

func (m *mockBackend) SyncPositions(ctx context.Context, positions []map[string]interface{}) (*ports.SyncResponse, error) {
	return &ports.SyncResponse{Success: true}, nil
}

func (m *mockBackend) SyncAccount(ctx context.Context, account map[string]interface{}) (*ports.SyncResponse, error) {
	return &ports.SyncResponse{Success: true}, nil
}

func (m *mockBackend) StorePositionSnapshot(ctx context.Context, snapshot map[string]interface{}) (*ports.SyncResponse, error) {
	return &ports.SyncResponse{Success: true}, nil
}

func (m *mockBackend) CleanupStalePositions(ctx context.Context, currentSymbols []string, accountID string) (*ports.CleanupResponse, error) {
	return &ports.CleanupResponse{Success: true}, nil
}

type mockBroker struct {
	placeCalls int
	placeErr   error
	execStatus map[string]domain.BrokerExecution
	closed     int
}

func (m *mockBroker) PlaceOrder(ctx context.Context, sig *domain.TradeSignal) (string, error) {
	m.placeCalls++
	if m.placeErr != nil {
		return "", m.placeErr
	}
	return "BROKER_" + sig.OrderID, nil
}

func (m *mockBroker) QueryPositions(ctx context.Context) (map[string]domain.BrokerPosition, error) {
	return map[string]domain.BrokerPosition{}, nil
}

func (m *mockBroker) QueryAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	return nil, nil
}

func (m *mockBroker) GetExecutionStatus(ctx context.Context) (map[string]domain.BrokerExecution, error) {
	return m.execStatus, nil
}

func (m *mockBroker) GetAccountInfo() domain.AccountInfo {
	return domain.AccountInfo{AccountID: "TEST_ACCOUNT_1", Broker: "test_broker"}
}

func (m *mockBroker) Close() error {
	m.closed++
	return nil
}

func newTestTracker(t *testing.T, backend *mockBackend, broker *mockBroker) *Tracker {
	t.Helper()
	tracker, err := New(Config{
		Backend:    backend,
		Broker:     broker,
		Logger:     &mockLogger{},
		MaxRetries: 3,
	})
	require.NoError(t, err)
	return tracker
}

func testSignal(orderID string) *domain.TradeSignal {
	price := 10.0
	return &domain.TradeSignal{
		OrderID: orderID,
		Symbol:  "000001",
		Action:  domain.Buy,
		Size:    100,
		Price:   &price,
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)

	ok := tracker.SubmitOrder(context.Background(), testSignal("O1"))

	assert.True(t, ok)
	assert.Equal(t, 1, broker.placeCalls)
	assert.Equal(t, 1, tracker.PendingCount())

	// No execution is reported on submission, only a status update.
	assert.Empty(t, backend.executions)
	require.Len(t, backend.signalUpdates, 1)
	update := backend.signalUpdates[0]
	assert.Equal(t, "O1", update.orderID)
	assert.Equal(t, "submitted", update.payload["status"])
	assert.Equal(t, "BROKER_O1", update.payload["qmt_order_id"])
	assert.Contains(t, update.payload, "submitted_at")

	status, tracked := tracker.Status("O1")
	assert.True(t, tracked)
	assert.Equal(t, domain.StatusSubmitted, status)
}

func TestSubmitOrderMissingOrderID(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)

	ok := tracker.SubmitOrder(context.Background(), testSignal(""))

	assert.False(t, ok)
	assert.Zero(t, broker.placeCalls)
	assert.Zero(t, tracker.PendingCount())
	assert.Empty(t, backend.signalUpdates)
}

func TestSubmitOrderTransientFailureIncrementsRetryCount(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{placeErr: errors.New("venue busy")}
	tracker := newTestTracker(t, backend, broker)

	sig := testSignal("O2")

	for attempt := 1; attempt <= 3; attempt++ {
		ok := tracker.SubmitOrder(context.Background(), sig)
		assert.False(t, ok)
		// The record stays in the pending table awaiting resubmission.
		assert.Equal(t, 1, tracker.PendingCount())

		update := backend.signalUpdates[len(backend.signalUpdates)-1]
		assert.Equal(t, "O2", update.orderID)
		assert.Equal(t, "retry_pending", update.payload["status"])
		assert.Equal(t, attempt, update.payload["retry_count"])
		assert.Contains(t, update.payload["last_error"], "venue busy")
	}

	// Exceeding MaxRetries transitions the record to failed and purges it.
	ok := tracker.SubmitOrder(context.Background(), sig)
	assert.False(t, ok)
	assert.Zero(t, tracker.PendingCount())

	update := backend.signalUpdates[len(backend.signalUpdates)-1]
	assert.Equal(t, "failed", update.payload["status"])
	assert.Equal(t, 4, update.payload["retry_count"])
}

func TestSubmitOrderPermanentRejectionFailsImmediately(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{placeErr: fmt.Errorf("%w: bad symbol", ports.ErrOrderRejected)}
	tracker := newTestTracker(t, backend, broker)

	ok := tracker.SubmitOrder(context.Background(), testSignal("O3"))

	assert.False(t, ok)
	assert.Zero(t, tracker.PendingCount())
	require.Len(t, backend.signalUpdates, 1)
	assert.Equal(t, "failed", backend.signalUpdates[0].payload["status"])
	assert.Equal(t, 1, backend.signalUpdates[0].payload["retry_count"])
}

func TestSubmitOrderHonorsRetryDelay(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{placeErr: errors.New("venue busy")}
	tracker, err := New(Config{
		Backend:    backend,
		Broker:     broker,
		Logger:     &mockLogger{},
		MaxRetries: 3,
		RetryDelay: time.Hour,
	})
	require.NoError(t, err)

	sig := testSignal("O4")
	tracker.SubmitOrder(context.Background(), sig)
	assert.Equal(t, 1, broker.placeCalls)

	// Resubmitting within the retry delay must not reach the broker.
	ok := tracker.SubmitOrder(context.Background(), sig)
	assert.False(t, ok)
	assert.Equal(t, 1, broker.placeCalls)

	// Once the delay has elapsed the broker is called again.
	tracker.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	tracker.SubmitOrder(context.Background(), sig)
	assert.Equal(t, 2, broker.placeCalls)
}

func TestPollExecutionStatusReportsFillAndPurges(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)

	require.True(t, tracker.SubmitOrder(context.Background(), testSignal("O1")))

	broker.execStatus = map[string]domain.BrokerExecution{
		"BROKER_O1": {Status: "filled", FilledSize: 100, AvgPrice: 10.05, Extra: map[string]interface{}{"venue_status": "FILLED"}},
	}
	tracker.PollExecutionStatus(context.Background())

	require.Len(t, backend.executions, 1)
	report := backend.executions[0]
	assert.Equal(t, "O1", report["order_id"])
	assert.Equal(t, "filled", report["status"])
	assert.Equal(t, int64(100), report["filled_size"])
	assert.Equal(t, 10.05, report["filled_price"])
	// Broker-specific fields are merged when not already present.
	assert.Equal(t, "FILLED", report["venue_status"])

	update := backend.signalUpdates[len(backend.signalUpdates)-1]
	assert.Equal(t, "filled", update.payload["status"])
	assert.Equal(t, int64(100), update.payload["filled_qty"])
	assert.Equal(t, 10.05, update.payload["avg_price"])
	assert.Contains(t, update.payload, "executed_at")

	assert.Zero(t, tracker.PendingCount())

	// A second poll referencing the same broker order id has no effect.
	tracker.PollExecutionStatus(context.Background())
	assert.Len(t, backend.executions, 1)
}

func TestPollExecutionStatusMapping(t *testing.T) {
	cases := []struct {
		brokerStatus string
		want         domain.ExecutionStatus
		terminal     bool
	}{
		{"filled", domain.StatusFilled, true},
		{"complete", domain.StatusFilled, true},
		{"partial", domain.StatusPartialFilled, false},
		{"partially_filled", domain.StatusPartialFilled, false},
		{"rejected", domain.StatusRejected, true},
		{"failed", domain.StatusRejected, true},
		{"cancelled", domain.StatusCancelled, true},
		{"canceled", domain.StatusCancelled, true},
		{"working", domain.StatusSubmitted, false},
	}

	for _, tc := range cases {
		t.Run(tc.brokerStatus, func(t *testing.T) {
			backend := &mockBackend{}
			broker := &mockBroker{}
			tracker := newTestTracker(t, backend, broker)
			require.True(t, tracker.SubmitOrder(context.Background(), testSignal("O1")))

			broker.execStatus = map[string]domain.BrokerExecution{
				"BROKER_O1": {Status: tc.brokerStatus, FilledSize: 50, AvgPrice: 10.0},
			}
			tracker.PollExecutionStatus(context.Background())

			require.NotEmpty(t, backend.executions)
			assert.Equal(t, string(tc.want), backend.executions[0]["status"])
			if tc.terminal {
				assert.Zero(t, tracker.PendingCount())
			} else {
				assert.Equal(t, 1, tracker.PendingCount())
				status, _ := tracker.Status("O1")
				assert.Equal(t, tc.want, status)
			}
		})
	}
}

func TestPollExecutionStatusPartialThenFull(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)
	require.True(t, tracker.SubmitOrder(context.Background(), testSignal("O1")))

	broker.execStatus = map[string]domain.BrokerExecution{
		"BROKER_O1": {Status: "partial", FilledSize: 40, AvgPrice: 10.0},
	}
	tracker.PollExecutionStatus(context.Background())
	assert.Equal(t, 1, tracker.PendingCount())

	broker.execStatus = map[string]domain.BrokerExecution{
		"BROKER_O1": {Status: "filled", FilledSize: 100, AvgPrice: 10.02},
	}
	tracker.PollExecutionStatus(context.Background())
	assert.Zero(t, tracker.PendingCount())
	assert.Len(t, backend.executions, 2)
}

func TestPollExecutionStatusSkipsUnknownBrokerOrder(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{execStatus: map[string]domain.BrokerExecution{
		"EXTERNAL_ORDER": {Status: "filled", FilledSize: 10, AvgPrice: 1.0},
	}}
	tracker := newTestTracker(t, backend, broker)

	tracker.PollExecutionStatus(context.Background())

	assert.Empty(t, backend.executions)
	assert.Empty(t, backend.signalUpdates)
}

func TestPollExecutionStatusClampsOverfill(t *testing.T) {
	backend := &mockBackend{}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)
	require.True(t, tracker.SubmitOrder(context.Background(), testSignal("O1")))

	broker.execStatus = map[string]domain.BrokerExecution{
		"BROKER_O1": {Status: "filled", FilledSize: 250, AvgPrice: 10.0},
	}
	tracker.PollExecutionStatus(context.Background())

	require.Len(t, backend.executions, 1)
	assert.Equal(t, int64(100), backend.executions[0]["filled_size"])
}

func TestPollExecutionStatusContinuesOnBackendError(t *testing.T) {
	backend := &mockBackend{executionErr: errors.New("backend down")}
	broker := &mockBroker{}
	tracker := newTestTracker(t, backend, broker)
	require.True(t, tracker.SubmitOrder(context.Background(), testSignal("A")))
	require.True(t, tracker.SubmitOrder(context.Background(), testSignal("B")))

	broker.execStatus = map[string]domain.BrokerExecution{
		"BROKER_A": {Status: "filled", FilledSize: 100, AvgPrice: 10.0},
		"BROKER_B": {Status: "filled", FilledSize: 100, AvgPrice: 10.0},
	}
	tracker.PollExecutionStatus(context.Background())

	// Both orders were attempted despite the reporting failures, and both
	// reached terminal state locally.
	assert.Len(t, backend.executions, 2)
	assert.Zero(t, tracker.PendingCount())
}
