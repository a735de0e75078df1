// Package positions keeps backend-held positions and account numbers within
// one sync interval of broker truth, including removal of positions no
// longer held.
package positions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quanttrader/internal/domain"
	"quanttrader/internal/metrics"
	"quanttrader/internal/ports"
)

// Reconciler periodically replaces the backend's position and account state
// with what the broker reports. Every successful position sync ends with a
// stale-position cleanup call carrying the full current symbol set — also
// when that set is empty, so a fully liquidated portfolio still clears the
// backend. A diff-based cleanup would miss the all-zero case.
type Reconciler struct {
	backend ports.BackendClient
	broker  ports.Broker
	logger  ports.Logger
	metrics *metrics.Metrics // optional

	syncInterval time.Duration
	now          func() time.Time

	accountID  string
	brokerName string

	lastPositionSync time.Time
	lastAccountSync  time.Time
	positionsCache   map[string]*domain.PositionSnapshot
	accountCache     *domain.AccountSnapshot
}

// Config holds the reconciler's dependencies.
type Config struct {
	Backend ports.BackendClient
	Broker  ports.Broker
	Logger  ports.Logger
	Metrics *metrics.Metrics // optional instrumentation

	// SyncInterval rate-limits non-forced syncs (default 60s).
	SyncInterval time.Duration
}

// New creates a new position/account reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Backend == nil || cfg.Broker == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciler")
	}
	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = 60 * time.Second
	}

	info := cfg.Broker.GetAccountInfo()
	return &Reconciler{
		backend:        cfg.Backend,
		broker:         cfg.Broker,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		syncInterval:   syncInterval,
		now:            time.Now,
		accountID:      info.AccountID,
		brokerName:     info.Broker,
		positionsCache: make(map[string]*domain.PositionSnapshot),
	}, nil
}

// SyncPositions replaces the backend position set with broker truth.
// Returns true on a successful sync, false on failure or when skipped by
// rate limiting. Broker and backend errors are logged, never propagated.
func (r *Reconciler) SyncPositions(ctx context.Context, force bool) bool {
	now := r.now()
	if !force && now.Sub(r.lastPositionSync) < r.syncInterval {
		r.logger.Debug(ctx, "Skipping position sync (within interval)")
		return false
	}
	r.lastPositionSync = now

	brokerPositions, err := r.broker.QueryPositions(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "Failed to query broker positions")
		if r.metrics != nil {
			r.metrics.PositionSyncErrors.Inc()
		}
		return false
	}

	if len(brokerPositions) == 0 {
		// Nothing held: still clean up so the backend drops every position
		// for this account.
		r.positionsCache = make(map[string]*domain.PositionSnapshot)
		if _, err := r.backend.CleanupStalePositions(ctx, []string{}, r.accountID); err != nil {
			r.logger.Error(ctx, err, "Failed to cleanup stale positions")
			if r.metrics != nil {
				r.metrics.PositionSyncErrors.Inc()
			}
			return false
		}
		r.logger.Debug(ctx, "No positions to sync")
		if r.metrics != nil {
			r.metrics.PositionSyncs.Inc()
		}
		return true
	}

	snapshots := make(map[string]*domain.PositionSnapshot, len(brokerPositions))
	documents := make([]map[string]interface{}, 0, len(brokerPositions))
	currentSymbols := make([]string, 0, len(brokerPositions))

	for symbol, pos := range brokerPositions {
		snapshot := r.buildSnapshot(symbol, pos, now)
		snapshots[snapshot.Symbol] = snapshot
		documents = append(documents, snapshot.Document())
		currentSymbols = append(currentSymbols, snapshot.Symbol)

		r.logger.Info(ctx, "Position synced", map[string]interface{}{
			"symbol":  snapshot.Symbol,
			"qty":     snapshot.Quantity,
			"cost":    snapshot.AvgCost,
			"value":   snapshot.MarketValue,
			"pnl":     snapshot.UnrealizedPnl,
			"pnl_pct": snapshot.UnrealizedPnlPct,
		})
	}
	sort.Strings(currentSymbols)

	if _, err := r.backend.SyncPositions(ctx, documents); err != nil {
		r.logger.Error(ctx, err, "Failed to push positions to backend")
		if r.metrics != nil {
			r.metrics.PositionSyncErrors.Inc()
		}
		return false
	}

	if _, err := r.backend.CleanupStalePositions(ctx, currentSymbols, r.accountID); err != nil {
		r.logger.Error(ctx, err, "Failed to cleanup stale positions")
		if r.metrics != nil {
			r.metrics.PositionSyncErrors.Inc()
		}
		return false
	}

	r.positionsCache = snapshots
	r.storeSnapshot(ctx, snapshots, now)

	r.logger.Info(ctx, "Position sync complete", map[string]interface{}{"count": len(documents)})
	if r.metrics != nil {
		r.metrics.PositionSyncs.Inc()
	}
	return true
}

// buildSnapshot canonicalises the symbol and derives P&L from broker data.
func (r *Reconciler) buildSnapshot(symbol string, pos domain.BrokerPosition, now time.Time) *domain.PositionSnapshot {
	currentPrice := pos.LastPrice
	if currentPrice == 0 {
		currentPrice = pos.AvgCost
	}

	costBasis := pos.AvgCost * float64(pos.Quantity)
	unrealized := pos.MarketValue - costBasis
	var unrealizedPct float64
	if costBasis > 0 {
		unrealizedPct = unrealized / costBasis * 100
	}

	return &domain.PositionSnapshot{
		Symbol:           domain.CanonicalSymbol(symbol),
		Quantity:         pos.Quantity,
		AvailableQty:     pos.AvailableQty,
		FrozenQty:        pos.FrozenQty,
		AvgCost:          pos.AvgCost,
		MarketValue:      pos.MarketValue,
		CurrentPrice:     currentPrice,
		UnrealizedPnl:    unrealized,
		UnrealizedPnlPct: unrealizedPct,
		AccountID:        r.accountID,
		Broker:           r.brokerName,
		Timestamp:        now.UTC(),
	}
}

// storeSnapshot posts a dated portfolio snapshot. Best-effort.
func (r *Reconciler) storeSnapshot(ctx context.Context, snapshots map[string]*domain.PositionSnapshot, now time.Time) {
	var totalValue, totalPnl float64
	positions := make([]map[string]interface{}, 0, len(snapshots))
	for _, snapshot := range snapshots {
		totalValue += snapshot.MarketValue
		totalPnl += snapshot.UnrealizedPnl
		positions = append(positions, snapshot.Document())
	}

	doc := map[string]interface{}{
		"timestamp":   domain.UnixSeconds(now),
		"date":        now.Format("2006-01-02"),
		"positions":   positions,
		"total_value": totalValue,
		"total_pnl":   totalPnl,
	}
	if _, err := r.backend.StorePositionSnapshot(ctx, doc); err != nil {
		r.logger.Warn(ctx, "Failed to store position snapshot", map[string]interface{}{"error": err.Error()})
	}
}

// SyncAccount refreshes the account snapshot from the broker and pushes it
// to the backend. The cached snapshot is returned when rate-limited, when
// the broker does not support account queries, or when the query fails; a
// failed backend push is logged but still returns the fresh snapshot.
func (r *Reconciler) SyncAccount(ctx context.Context, force bool) *domain.AccountSnapshot {
	now := r.now()
	if !force && now.Sub(r.lastAccountSync) < r.syncInterval {
		r.logger.Debug(ctx, "Skipping account sync (within interval)")
		return r.accountCache
	}
	r.lastAccountSync = now

	account, err := r.broker.QueryAccount(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "Failed to query broker account")
		return r.accountCache
	}
	if account == nil {
		r.logger.Warn(ctx, "No account data returned from broker")
		return r.accountCache
	}

	snapshot := &domain.AccountSnapshot{
		TotalAsset:    account.TotalAsset,
		Cash:          account.Cash,
		FrozenCash:    account.FrozenCash,
		MarketValue:   account.MarketValue,
		AvailableCash: account.AvailableCash,
		BuyingPower:   account.BuyingPower,
		AccountType:   account.AccountType,
		Pnl:           account.Pnl,
		PnlRatio:      account.PnlRatio,
		LastUpdated:   now.UTC(),
	}
	r.accountCache = snapshot

	if resp, err := r.backend.SyncAccount(ctx, snapshot.Document()); err != nil {
		r.logger.Warn(ctx, "Failed to push account to backend", map[string]interface{}{"error": err.Error()})
	} else if !resp.Success {
		r.logger.Warn(ctx, "Backend returned non-success for account sync")
	} else if r.metrics != nil {
		r.metrics.AccountSyncs.Inc()
	}

	r.logger.Info(ctx, "Account synced", map[string]interface{}{
		"total_asset":    snapshot.TotalAsset,
		"cash":           snapshot.Cash,
		"available_cash": snapshot.AvailableCash,
		"market_value":   snapshot.MarketValue,
	})
	return snapshot
}

// PortfolioSummary aggregates the reconciler's current position cache.
func (r *Reconciler) PortfolioSummary() domain.PortfolioSummary {
	summary := domain.PortfolioSummary{TotalPositions: len(r.positionsCache)}
	for _, pos := range r.positionsCache {
		summary.TotalValue += pos.MarketValue
		summary.TotalCost += pos.AvgCost * float64(pos.Quantity)
		summary.TotalPnl += pos.UnrealizedPnl
	}
	if summary.TotalCost > 0 {
		summary.TotalPnlPct = summary.TotalPnl / summary.TotalCost * 100
	}
	return summary
}
