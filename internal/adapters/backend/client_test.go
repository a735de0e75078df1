package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Token: "test-token", Logger: &mockLogger{}})
	require.NoError(t, err)
	return client, server
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost", Token: "t"})
	assert.Error(t, err)

	_, err = New(Config{Token: "t", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{BaseURL: "http://localhost", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestGetPendingSignals(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"order_id":"O1","symbol":"000001","action":"BUY","size":100,"price":12.5}]}`))
	}))

	signals, err := client.GetPendingSignals(context.Background(), 50, false)

	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "/trader/signals", gotPath)
	assert.Contains(t, gotQuery, "limit=50")
	assert.Contains(t, gotQuery, "include_submitted=false")

	require.Len(t, signals, 1)
	assert.Equal(t, "O1", signals[0].OrderID)
	assert.Equal(t, domain.Buy, signals[0].Action)
	assert.Equal(t, int64(100), signals[0].Size)
	require.NotNil(t, signals[0].Price)
	assert.Equal(t, 12.5, *signals[0].Price)
}

func TestUpdateSignalStatus(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true}`))
	}))

	err := client.UpdateSignalStatus(context.Background(), "O1", map[string]interface{}{
		"status":       "submitted",
		"qmt_order_id": "BROKER_O1",
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/trader/signals/O1/status", gotPath)
	assert.Equal(t, "submitted", gotBody["status"])
	assert.Equal(t, "BROKER_O1", gotBody["qmt_order_id"])
}

func TestCreateExecution(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true}`))
	}))

	err := client.CreateExecution(context.Background(), map[string]interface{}{
		"order_id": "O1",
		"status":   "filled",
	})

	require.NoError(t, err)
	assert.Equal(t, "/trader/executions", gotPath)
	assert.Equal(t, "O1", gotBody["order_id"])
}

func TestSyncPositions(t *testing.T) {
	var gotBody []map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trader/positions/sync", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true}`))
	}))

	resp, err := client.SyncPositions(context.Background(), []map[string]interface{}{
		{"symbol": "002050", "quantity": 100},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, gotBody, 1)
	assert.Equal(t, "002050", gotBody[0]["symbol"])
}

func TestCleanupStalePositions(t *testing.T) {
	var gotMethod string
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		assert.Equal(t, "/trader/positions/cleanup", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"deleted_count":2,"timestamp":1700000000.0}`))
	}))

	resp, err := client.CleanupStalePositions(context.Background(), []string{"002050", "600036"}, "ACC_1")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.DeletedCount)
	assert.Equal(t, []interface{}{"002050", "600036"}, gotBody["current_symbols"])
	assert.Equal(t, "ACC_1", gotBody["securities_account_id"])
}

func TestCleanupStalePositionsEmptySet(t *testing.T) {
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"deleted_count":0}`))
	}))

	_, err := client.CleanupStalePositions(context.Background(), nil, "")

	require.NoError(t, err)
	// nil symbols still serialize as an empty list, never as null.
	assert.Equal(t, []interface{}{}, gotBody["current_symbols"])
	assert.Nil(t, gotBody["securities_account_id"])
}

func TestNonSuccessStatusWrapsSentinel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.GetPendingSignals(context.Background(), 50, false)

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrBackendStatus)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "unauthorized")
}
