package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"quanttrader/internal/domain"
	"quanttrader/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Binance implements the ports.Broker interface using the go-binance
// futures API. Execution status is served by polling the venue for each
// order this adapter has placed; the working-order set is pruned once a
// terminal status has been reported.
type Binance struct {
	client    *futures.Client
	logger    ports.Logger
	accountID string

	mu      sync.Mutex
	working map[string]workingOrder // broker order id -> order handle
}

type workingOrder struct {
	symbol  string
	orderID int64
}

// BinanceConfig holds configuration specific to the Binance broker adapter.
type BinanceConfig struct {
	APIKey     string
	SecretKey  string
	AccountID  string
	UseTestnet bool
	Logger     ports.Logger
}

// NewBinance creates a new Binance broker adapter.
func NewBinance(cfg BinanceConfig) (*Binance, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance broker")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: Binance API key and secret are required", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance broker configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance broker configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Binance{
		client:    client,
		logger:    cfg.Logger,
		accountID: cfg.AccountID,
		working:   make(map[string]workingOrder),
	}, nil
}

// wrapOrderError translates Binance API errors into the standard taxonomy.
// Parameter and hard-reject errors are permanent (ErrOrderRejected); the
// rest are transient placement failures worth retrying.
func (b *Binance) wrapOrderError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature / API key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1106, -1111, -1115, -1116,
			-1117, -1120, -1121, -1125, -1127, -1130, -4003, -4014:
			// Parameter and request format errors cannot succeed on retry.
			mappedErr = ports.ErrOrderRejected
		case -2010: // New order rejected by the venue
			mappedErr = ports.ErrOrderRejected
		case -2019, -3005: // Insufficient margin/balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrOrderPlacementFailed
		}
		b.logger.Error(ctx, err, operation+" failed with API error", fields)
		return fmt.Errorf("%s failed: %w: %v", operation, mappedErr, err)
	}

	b.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %v", operation, ports.ErrOrderPlacementFailed, err)
}

// PlaceOrder submits the signal as a limit order (when it carries a price)
// or a market order, and returns the venue order id.
func (b *Binance) PlaceOrder(ctx context.Context, sig *domain.TradeSignal) (string, error) {
	op := "PlaceOrder"

	if sig.Symbol == "" || sig.Size <= 0 {
		return "", fmt.Errorf("%w: symbol=%q size=%d", ports.ErrOrderRejected, sig.Symbol, sig.Size)
	}

	var side futures.SideType
	switch sig.Action {
	case domain.Buy:
		side = futures.SideTypeBuy
	case domain.Sell:
		side = futures.SideTypeSell
	default:
		return "", fmt.Errorf("%w: invalid action %q", ports.ErrOrderRejected, sig.Action)
	}

	svc := b.client.NewCreateOrderService().
		Symbol(sig.Symbol).
		Side(side).
		Quantity(strconv.FormatInt(sig.Size, 10)).
		NewClientOrderID(sig.OrderID)
	if sig.Price != nil {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(*sig.Price, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return "", b.wrapOrderError(ctx, err, op)
	}
	if order.OrderID <= 0 {
		return "", fmt.Errorf("%w: venue returned invalid order id %d", ports.ErrOrderPlacementFailed, order.OrderID)
	}

	brokerOrderID := strconv.FormatInt(order.OrderID, 10)
	b.mu.Lock()
	b.working[brokerOrderID] = workingOrder{symbol: sig.Symbol, orderID: order.OrderID}
	b.mu.Unlock()

	b.logger.Info(ctx, "Binance order placed", map[string]interface{}{
		"order_id":        sig.OrderID,
		"broker_order_id": brokerOrderID,
		"symbol":          sig.Symbol,
		"side":            side,
	})
	return brokerOrderID, nil
}

// QueryPositions returns the currently open futures positions keyed by
// symbol. Zero-quantity entries are filtered out.
func (b *Binance) QueryPositions(ctx context.Context) (map[string]domain.BrokerPosition, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryPositions failed: %w", err)
	}

	out := make(map[string]domain.BrokerPosition)
	for _, risk := range risks {
		amt, _ := strconv.ParseFloat(risk.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entryPrice, _ := strconv.ParseFloat(risk.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(risk.MarkPrice, 64)

		qty := int64(math.Abs(amt))
		out[risk.Symbol] = domain.BrokerPosition{
			Quantity:     qty,
			AvailableQty: qty,
			AvgCost:      entryPrice,
			MarketValue:  math.Abs(amt) * markPrice,
			LastPrice:    markPrice,
		}
	}
	return out, nil
}

// QueryAccount returns the current futures account balances.
func (b *Binance) QueryAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryAccount failed: %w", err)
	}

	totalMargin, _ := strconv.ParseFloat(account.TotalMarginBalance, 64)
	wallet, _ := strconv.ParseFloat(account.TotalWalletBalance, 64)
	available, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	initialMargin, _ := strconv.ParseFloat(account.TotalInitialMargin, 64)
	positionMargin, _ := strconv.ParseFloat(account.TotalPositionInitialMargin, 64)
	unrealized, _ := strconv.ParseFloat(account.TotalUnrealizedProfit, 64)

	snapshot := &domain.BrokerAccount{
		TotalAsset:    totalMargin,
		Cash:          wallet,
		FrozenCash:    initialMargin,
		MarketValue:   positionMargin,
		AvailableCash: available,
		BuyingPower:   available,
		AccountType:   "futures",
		Pnl:           unrealized,
	}
	if wallet > 0 {
		snapshot.PnlRatio = unrealized / wallet
	}
	return snapshot, nil
}

// GetExecutionStatus polls the venue for every order this adapter has placed
// and returns the statuses keyed by broker order id. Orders that have
// reached a terminal venue status are reported once and then pruned.
func (b *Binance) GetExecutionStatus(ctx context.Context) (map[string]domain.BrokerExecution, error) {
	b.mu.Lock()
	snapshot := make(map[string]workingOrder, len(b.working))
	for id, w := range b.working {
		snapshot[id] = w
	}
	b.mu.Unlock()

	out := make(map[string]domain.BrokerExecution, len(snapshot))
	for brokerOrderID, w := range snapshot {
		order, err := b.client.NewGetOrderService().
			Symbol(w.symbol).
			OrderID(w.orderID).
			Do(ctx)
		if err != nil {
			// Keep the order in the working set; a later poll may succeed.
			b.logger.Warn(ctx, "Failed to query order status", map[string]interface{}{
				"broker_order_id": brokerOrderID,
				"symbol":          w.symbol,
				"error":           err.Error(),
			})
			continue
		}

		filled, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
		avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)

		status, terminal := translateVenueStatus(order.Status)
		out[brokerOrderID] = domain.BrokerExecution{
			Status:     status,
			FilledSize: int64(filled),
			AvgPrice:   avgPrice,
			Extra: map[string]interface{}{
				"venue_status":    string(order.Status),
				"client_order_id": order.ClientOrderID,
			},
		}

		if terminal {
			b.mu.Lock()
			delete(b.working, brokerOrderID)
			b.mu.Unlock()
		}
	}
	return out, nil
}

// translateVenueStatus maps a Binance order status to the broker status
// vocabulary consumed by the tracker, and reports whether it is terminal at
// the venue.
func translateVenueStatus(status futures.OrderStatusType) (string, bool) {
	switch status {
	case futures.OrderStatusTypeFilled:
		return "filled", true
	case futures.OrderStatusTypePartiallyFilled:
		return "partial", false
	case futures.OrderStatusTypeCanceled:
		return "cancelled", true
	case futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired:
		return "rejected", true
	default:
		return "working", false
	}
}

// GetAccountInfo identifies the trading account behind this adapter.
func (b *Binance) GetAccountInfo() domain.AccountInfo {
	return domain.AccountInfo{
		AccountID:   b.accountID,
		Broker:      "binance",
		AccountType: "futures",
	}
}

// Close is a no-op for the HTTP-based client. Idempotent.
func (b *Binance) Close() error {
	b.logger.Info(context.Background(), "Binance broker closed")
	return nil
}
