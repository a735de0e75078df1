package domain

import (
	"strings"
	"time"
)

// ExecutionStatus represents the lifecycle state of a tracked order.
// The string values match the status vocabulary of the backend system.
type ExecutionStatus string

const (
	StatusPending       ExecutionStatus = "pending"
	StatusSubmitted     ExecutionStatus = "submitted"
	StatusFilled        ExecutionStatus = "filled"
	StatusPartialFilled ExecutionStatus = "partial_filled"
	StatusRejected      ExecutionStatus = "rejected"
	StatusCancelled     ExecutionStatus = "cancelled"
	StatusFailed        ExecutionStatus = "failed"
	StatusRetryPending  ExecutionStatus = "retry_pending"
)

// IsTerminal reports whether no further transition can occur from the status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// MapBrokerStatus translates a broker-reported status string into the
// internal status vocabulary. Unrecognised strings mean the order is still
// working at the venue, so they map to submitted.
func MapBrokerStatus(brokerStatus string) ExecutionStatus {
	switch strings.ToLower(brokerStatus) {
	case "filled", "complete":
		return StatusFilled
	case "partial", "partially_filled":
		return StatusPartialFilled
	case "rejected", "failed":
		return StatusRejected
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusSubmitted
	}
}

// ExecutionRecord tracks the lifecycle of one signal's execution, from
// submission through to a terminal status. Records are owned exclusively by
// the execution tracker's pending table; BrokerOrderID is set if and only if
// the record has reached submitted or later.
type ExecutionRecord struct {
	OrderID       string
	Symbol        string
	Action        OrderAction
	Size          int64
	TargetPrice   *float64
	FilledPrice   *float64
	FilledSize    int64
	Commission    float64
	Status        ExecutionStatus
	BrokerOrderID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RetryCount    int
	LastError     string
}

// NewExecutionRecord creates a pending record for a signal.
func NewExecutionRecord(sig *TradeSignal) *ExecutionRecord {
	now := time.Now().UTC()
	return &ExecutionRecord{
		OrderID:     sig.OrderID,
		Symbol:      sig.Symbol,
		Action:      sig.Action,
		Size:        sig.Size,
		TargetPrice: sig.Price,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Document renders the record as a backend execution report payload.
func (r *ExecutionRecord) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"order_id":        r.OrderID,
		"symbol":          r.Symbol,
		"action":          string(r.Action),
		"size":            r.Size,
		"filled_size":     r.FilledSize,
		"commission":      r.Commission,
		"status":          string(r.Status),
		"broker_order_id": r.BrokerOrderID,
		"timestamp":       UnixSeconds(r.UpdatedAt),
	}
	if r.TargetPrice != nil {
		doc["target_price"] = *r.TargetPrice
	}
	if r.FilledPrice != nil {
		doc["filled_price"] = *r.FilledPrice
	}
	return doc
}

// UnixSeconds converts a time to the epoch-seconds float representation the
// backend expects for timestamp fields.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
