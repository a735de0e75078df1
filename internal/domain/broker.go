package domain

// BrokerPosition is the raw per-symbol holding data returned by a broker
// position query, before canonicalisation and P&L enrichment.
type BrokerPosition struct {
	Quantity     int64   // total shares/contracts held
	AvailableQty int64   // quantity not frozen in pending orders
	FrozenQty    int64   // quantity frozen in pending orders
	AvgCost      float64 // average cost per unit
	MarketValue  float64 // current market value of the holding
	LastPrice    float64 // latest traded price (0 if unknown)
}

// BrokerAccount is the raw account balance data returned by a broker
// account query.
type BrokerAccount struct {
	TotalAsset    float64
	Cash          float64
	FrozenCash    float64
	MarketValue   float64
	AvailableCash float64
	BuyingPower   float64
	AccountType   string
	Pnl           float64
	PnlRatio      float64
}

// BrokerExecution is a broker-reported execution status for one broker-side
// order id. Extra carries venue-specific fields that are merged into the
// backend execution report when not already present.
type BrokerExecution struct {
	Status     string
	FilledSize int64
	AvgPrice   float64
	Extra      map[string]interface{}
}

// AccountInfo identifies the trading account behind a broker capability.
type AccountInfo struct {
	AccountID   string
	Broker      string
	AccountType string
}
