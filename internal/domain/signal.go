package domain

// OrderAction represents the direction of a trade signal (BUY or SELL).
type OrderAction string

const (
	Buy  OrderAction = "BUY"
	Sell OrderAction = "SELL"
)

// TradeSignal is a backend-originated instruction to buy or sell a quantity
// of a symbol. Signals are produced by the backend and consumed once per
// polling cycle; the trader never mutates them.
type TradeSignal struct {
	OrderID             string      `json:"order_id"`
	Symbol              string      `json:"symbol"`
	Action              OrderAction `json:"action"`
	Size                int64       `json:"size"`
	Price               *float64    `json:"price,omitempty"` // nil means market order
	Strategy            string      `json:"strategy,omitempty"`
	StrategyName        string      `json:"strategy_name,omitempty"`
	SecuritiesAccountID string      `json:"securities_account_id,omitempty"`
	AccountID           string      `json:"account_id,omitempty"`
	Broker              string      `json:"broker,omitempty"`
}

// HasLimitPrice reports whether the signal carries a limit price.
func (s *TradeSignal) HasLimitPrice() bool {
	return s.Price != nil
}
