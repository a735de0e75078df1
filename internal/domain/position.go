package domain

import (
	"strings"
	"time"
)

// PositionSnapshot is a point-in-time view of one holding, derived purely
// from a broker query. Snapshots carry no identity across sync cycles beyond
// the symbol key; every successful sync fully replaces the previous set.
type PositionSnapshot struct {
	Symbol           string // exchange suffix stripped, e.g. "002050"
	Quantity         int64
	AvailableQty     int64
	FrozenQty        int64
	AvgCost          float64
	MarketValue      float64
	CurrentPrice     float64
	UnrealizedPnl    float64
	UnrealizedPnlPct float64
	AccountID        string
	Broker           string
	Timestamp        time.Time
}

// Document renders the snapshot as a backend position sync payload.
func (p *PositionSnapshot) Document() map[string]interface{} {
	return map[string]interface{}{
		"symbol":             p.Symbol,
		"quantity":           p.Quantity,
		"available_qty":      p.AvailableQty,
		"frozen_qty":         p.FrozenQty,
		"avg_cost":           p.AvgCost,
		"market_value":       p.MarketValue,
		"current_price":      p.CurrentPrice,
		"unrealized_pnl":     p.UnrealizedPnl,
		"unrealized_pnl_pct": p.UnrealizedPnlPct,
		"account_id":         p.AccountID,
		"broker":             p.Broker,
		"timestamp":          UnixSeconds(p.Timestamp),
		"updated_at":         UnixSeconds(p.Timestamp),
	}
}

// CanonicalSymbol strips the exchange suffix from a broker symbol: the
// substring before the first '.' ("600036.SH" -> "600036"). Symbols without
// a suffix pass through unchanged.
func CanonicalSymbol(symbol string) string {
	if i := strings.Index(symbol, "."); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// PortfolioSummary aggregates the reconciler's current position set.
type PortfolioSummary struct {
	TotalPositions int
	TotalValue     float64
	TotalCost      float64
	TotalPnl       float64
	TotalPnlPct    float64
}
