// Package app contains the poll loop driver: the single scheduling
// authority that ties signal polling, order dispatch, execution-status
// polling, and position sync into one cadence.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quanttrader/config"
	"quanttrader/internal/domain"
	"quanttrader/internal/execution"
	"quanttrader/internal/metrics"
	"quanttrader/internal/ports"
	"quanttrader/internal/positions"
)

const legacyDefaultFillPrice = 100.0

// TraderService runs the polling loop. One iteration fetches pending
// signals, routes each to the execution tracker, polls the broker for fill
// updates, and (on its own throttle) reconciles positions and account state.
// Iterations are sequential; the stop flag is observed only at iteration
// boundaries, so an in-flight cycle always completes.
type TraderService struct {
	cfg        *config.Config
	logger     ports.Logger
	backend    ports.BackendClient
	broker     ports.Broker
	tracker    *execution.Tracker
	reconciler *positions.Reconciler
	metrics    *metrics.Metrics // optional

	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewTraderService creates the poll loop driver.
func NewTraderService(
	cfg *config.Config,
	logger ports.Logger,
	backend ports.BackendClient,
	broker ports.Broker,
	tracker *execution.Tracker,
	reconciler *positions.Reconciler,
	m *metrics.Metrics,
) (*TraderService, error) {
	if cfg == nil || logger == nil || backend == nil || broker == nil {
		return nil, fmt.Errorf("missing required dependencies for trader service")
	}
	if cfg.ExecutionTrackingEnabled && tracker == nil {
		return nil, fmt.Errorf("execution tracking enabled but no tracker provided")
	}
	if cfg.PositionSyncEnabled && reconciler == nil {
		return nil, fmt.Errorf("position sync enabled but no reconciler provided")
	}

	return &TraderService{
		cfg:        cfg,
		logger:     logger,
		backend:    backend,
		broker:     broker,
		tracker:    tracker,
		reconciler: reconciler,
		metrics:    m,
		stopCh:     make(chan struct{}),
	}, nil
}

// Stop requests a graceful shutdown. The current iteration completes before
// the loop exits. Safe to call more than once and from signal handlers.
func (s *TraderService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run executes the polling loop until Stop is called or ctx is cancelled.
// The broker is closed exactly once on the way out.
func (s *TraderService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Trader started", map[string]interface{}{
		"api":           s.cfg.APIBaseURL,
		"poll_interval": s.cfg.PollInterval.String(),
		"broker":        s.cfg.Broker,
		"tracking":      s.cfg.ExecutionTrackingEnabled,
		"position_sync": s.cfg.PositionSyncEnabled,
	})

	defer s.closeBroker(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.Info(ctx, "Trader stopped")
			return nil
		case <-ctx.Done():
			s.logger.Info(ctx, "Trader context cancelled")
			return ctx.Err()
		default:
		}

		s.runCycle(ctx)

		select {
		case <-s.stopCh:
			s.logger.Info(ctx, "Trader stopped")
			return nil
		case <-ctx.Done():
			s.logger.Info(ctx, "Trader context cancelled")
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// runCycle performs one loop iteration. Every failure is contained here: a
// bad cycle is logged and the loop carries on.
func (s *TraderService) runCycle(ctx context.Context) {
	if s.cfg.PositionSyncEnabled {
		s.reconciler.SyncPositions(ctx, false)
		s.reconciler.SyncAccount(ctx, false)
		summary := s.reconciler.PortfolioSummary()
		s.logger.Debug(ctx, "Portfolio summary", map[string]interface{}{
			"positions": summary.TotalPositions,
			"value":     summary.TotalValue,
			"pnl":       summary.TotalPnl,
			"pnl_pct":   summary.TotalPnlPct,
		})
	}

	signals, err := s.backend.GetPendingSignals(ctx, s.cfg.SignalLimit, false)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch pending signals")
		return
	}
	if len(signals) > 0 {
		s.logger.Info(ctx, "Fetched pending signals", map[string]interface{}{"count": len(signals)})
	} else {
		s.logger.Debug(ctx, "No pending signals found")
	}

	// Dispatch in backend-defined order; do not re-sort.
	for _, sig := range signals {
		if sig.OrderID == "" {
			s.logger.Warn(ctx, "Skip signal without order_id", map[string]interface{}{"symbol": sig.Symbol})
			continue
		}
		if s.metrics != nil {
			s.metrics.SignalsProcessed.Inc()
		}
		if s.cfg.ExecutionTrackingEnabled {
			s.tracker.SubmitOrder(ctx, sig)
		} else {
			s.handleSignalLegacy(ctx, sig)
		}
	}

	if s.cfg.ExecutionTrackingEnabled {
		s.tracker.PollExecutionStatus(ctx)
	}
}

// handleSignalLegacy is the pre-tracking dispatch path, kept for backward
// compatibility: submit, mark submitted, and immediately report a synthetic
// full fill. Any failure marks the signal retry_pending with the error text.
func (s *TraderService) handleSignalLegacy(ctx context.Context, sig *domain.TradeSignal) {
	brokerOrderID, err := s.broker.PlaceOrder(ctx, sig)
	if err != nil {
		s.markRetryPending(ctx, sig.OrderID, err)
		return
	}

	if err := s.backend.UpdateSignalStatus(ctx, sig.OrderID, map[string]interface{}{
		"status":       string(domain.StatusSubmitted),
		"qmt_order_id": brokerOrderID,
	}); err != nil {
		s.markRetryPending(ctx, sig.OrderID, err)
		return
	}

	filledPrice := legacyDefaultFillPrice
	if sig.Price != nil {
		filledPrice = *sig.Price
	}

	execReport := map[string]interface{}{
		"order_id":              sig.OrderID,
		"symbol":                sig.Symbol,
		"action":                string(sig.Action),
		"size":                  sig.Size,
		"filled_price":          filledPrice,
		"filled_size":           sig.Size,
		"commission":            0.0,
		"status":                string(domain.StatusFilled),
		"mode":                  "live",
		"qmt_order_id":          brokerOrderID,
		"securities_account_id": sig.SecuritiesAccountID,
		"account_id":            sig.AccountID,
		"strategy":              sig.Strategy,
		"strategy_name":         sig.StrategyName,
	}
	if sig.Price != nil {
		execReport["target_price"] = *sig.Price
	}
	broker := sig.Broker
	if broker == "" {
		broker = string(config.BrokerSimulated)
	}
	execReport["broker"] = broker

	if err := s.backend.CreateExecution(ctx, execReport); err != nil {
		s.markRetryPending(ctx, sig.OrderID, err)
		return
	}

	s.logger.Info(ctx, "Execution reported", map[string]interface{}{
		"order_id": sig.OrderID,
		"symbol":   sig.Symbol,
		"action":   sig.Action,
	})
}

func (s *TraderService) markRetryPending(ctx context.Context, orderID string, cause error) {
	s.logger.Error(ctx, cause, "Failed to process signal", map[string]interface{}{"order_id": orderID})
	if err := s.backend.UpdateSignalStatus(ctx, orderID, map[string]interface{}{
		"status":     string(domain.StatusRetryPending),
		"last_error": cause.Error(),
	}); err != nil {
		s.logger.Error(ctx, err, "Failed to update signal status", map[string]interface{}{"order_id": orderID})
	}
}

// closeBroker releases the broker session exactly once.
func (s *TraderService) closeBroker(ctx context.Context) {
	s.closeOnce.Do(func() {
		if err := s.broker.Close(); err != nil {
			s.logger.Error(ctx, err, "Error closing broker")
		}
	})
}
