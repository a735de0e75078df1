package domain

import "time"

// AccountSnapshot is a point-in-time view of the trading account, derived
// from a broker query. Like positions, it is fully replaced on every
// successful sync.
type AccountSnapshot struct {
	TotalAsset    float64
	Cash          float64
	FrozenCash    float64
	MarketValue   float64
	AvailableCash float64
	BuyingPower   float64
	AccountType   string
	Pnl           float64
	PnlRatio      float64
	LastUpdated   time.Time
}

// Document renders the snapshot as a backend account sync payload.
func (a *AccountSnapshot) Document() map[string]interface{} {
	return map[string]interface{}{
		"total_asset":    a.TotalAsset,
		"cash":           a.Cash,
		"frozen_cash":    a.FrozenCash,
		"market_value":   a.MarketValue,
		"available_cash": a.AvailableCash,
		"buying_power":   a.BuyingPower,
		"account_type":   a.AccountType,
		"pnl":            a.Pnl,
		"pnl_ratio":      a.PnlRatio,
		"last_updated":   UnixSeconds(a.LastUpdated),
	}
}
