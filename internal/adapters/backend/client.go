package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"
)

const requestTimeout = 10 * time.Second

// Client implements the ports.BackendClient interface against the trader
// REST API. Every request carries the bearer token; non-2xx responses are
// returned as errors wrapping ports.ErrBackendStatus and are not retried at
// this layer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration for the backend client.
type Config struct {
	BaseURL string
	Token   string
	Logger  ports.Logger
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for backend client")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: backend base URL is empty", ports.ErrConfigurationError)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: backend API token is empty", ports.ErrConfigurationError)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     cfg.Logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w: %d %s", method, path, ports.ErrBackendStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response of %s %s: %w", method, path, err)
		}
	}
	return nil
}

// GetPendingSignals fetches pending trade signals for the current user.
// Only signals belonging to the authenticated user are returned (enforced by
// the backend using the token).
func (c *Client) GetPendingSignals(ctx context.Context, limit int, includeSubmitted bool) ([]*domain.TradeSignal, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("include_submitted", strconv.FormatBool(includeSubmitted))

	var resp struct {
		Data []*domain.TradeSignal `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/trader/signals", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateSignalStatus updates the status of a trade signal.
func (c *Client) UpdateSignalStatus(ctx context.Context, orderID string, payload map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/trader/signals/"+url.PathEscape(orderID)+"/status", nil, payload, nil)
}

// CreateExecution reports a trade execution back to the backend. The backend
// attaches the user id based on the token and updates the corresponding
// signal entry when appropriate.
func (c *Client) CreateExecution(ctx context.Context, execution map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/trader/executions", nil, execution, nil)
}

// SyncPositions pushes the full current position set in one batch.
func (c *Client) SyncPositions(ctx context.Context, positions []map[string]interface{}) (*ports.SyncResponse, error) {
	var resp ports.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/trader/positions/sync", nil, positions, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncAccount pushes the current account snapshot.
func (c *Client) SyncAccount(ctx context.Context, account map[string]interface{}) (*ports.SyncResponse, error) {
	var resp ports.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/trader/account/sync", nil, account, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StorePositionSnapshot stores a dated portfolio snapshot document.
func (c *Client) StorePositionSnapshot(ctx context.Context, snapshot map[string]interface{}) (*ports.SyncResponse, error) {
	var resp ports.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/trader/positions/snapshot", nil, snapshot, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CleanupStalePositions asks the backend to delete positions no longer held
// at the broker. An empty symbol list deletes all positions for the account.
func (c *Client) CleanupStalePositions(ctx context.Context, currentSymbols []string, accountID string) (*ports.CleanupResponse, error) {
	if currentSymbols == nil {
		currentSymbols = []string{}
	}
	body := map[string]interface{}{
		"current_symbols": currentSymbols,
	}
	if accountID != "" {
		body["securities_account_id"] = accountID
	} else {
		body["securities_account_id"] = nil
	}

	var resp ports.CleanupResponse
	if err := c.do(ctx, http.MethodDelete, "/trader/positions/cleanup", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
