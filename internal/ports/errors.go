package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core never pattern-matches error text.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker errors
	ErrBrokerUnavailable    = errors.New("broker is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// ErrOrderRejected marks a permanent placement failure (invalid signal
	// fields or venue hard-reject). Unlike transient placement failures it is
	// not worth retrying; the tracker fails the record immediately.
	ErrOrderRejected = errors.New("order rejected by venue")

	// Signal errors
	ErrMissingOrderID = errors.New("signal missing order_id")

	// Backend errors
	ErrBackendStatus = errors.New("backend returned non-2xx status")
)

// IsPermanentOrderError reports whether a placement failure should be treated
// as terminal rather than retried.
func IsPermanentOrderError(err error) bool {
	return errors.Is(err, ErrOrderRejected)
}
