package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/pattarak/tradepilot/internal/config"
)

// BinanceCredentials are per-bot API credentials. They are never part of
// the shared config.
type BinanceCredentials struct {
	APIKey    string
	SecretKey string
}

// BinanceExchange implements Exchange against the Binance spot API. Order
// placement runs behind a circuit breaker and retries transient failures
// with exponential backoff.
type BinanceExchange struct {
	client      *binance.Client
	mu          sync.RWMutex
	orders      map[string]*Order
	recvWindow  int64
	retryConfig RetryConfig
	breaker     *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// NewBinanceExchange creates a Binance exchange client
func NewBinanceExchange(creds BinanceCredentials, cfg config.ExchangeConfig) *BinanceExchange {
	client := binance.NewClient(creds.APIKey, creds.SecretKey)

	logger := config.NewLogger("binance")
	if cfg.Testnet {
		binance.UseTestnet = true
		logger.Info().Msg("Binance exchange initialized (TESTNET mode)")
	} else {
		logger.Warn().Msg("Binance exchange initialized (LIVE TRADING mode)")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-orders",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &BinanceExchange{
		client:      client,
		orders:      make(map[string]*Order),
		recvWindow:  cfg.RecvWindow,
		retryConfig: DefaultRetryConfig(),
		breaker:     breaker,
		log:         logger,
	}
}

// PlaceOrder places an order on Binance
func (b *BinanceExchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error) {
	if err := validateOrder(req); err != nil {
		return &PlaceOrderResponse{
			Status:  OrderStatusRejected,
			Message: err.Error(),
		}, nil
	}

	side := binance.SideTypeBuy
	if req.Side == OrderSideSell {
		side = binance.SideTypeSell
	}
	symbol := exchangeSymbol(req.Symbol)

	var resp *binance.CreateOrderResponse
	err := WithRetry(ctx, b.retryConfig, func() error {
		_, execErr := b.breaker.Execute(func() (interface{}, error) {
			service := b.client.NewCreateOrderService().
				Symbol(symbol).
				Side(side).
				Quantity(strconv.FormatFloat(req.Quantity, 'f', 8, 64))
			if req.Type == OrderTypeMarket {
				service = service.Type(binance.OrderTypeMarket)
			} else {
				service = service.Type(binance.OrderTypeLimit).
					TimeInForce(binance.TimeInForceTypeGTC).
					Price(strconv.FormatFloat(req.Price, 'f', 8, 64))
			}
			var doErr error
			resp, doErr = service.Do(ctx, binance.WithRecvWindow(b.recvWindow))
			return nil, doErr
		})
		return execErr
	})
	if err != nil {
		classified := classifyError(err)
		b.log.Error().
			Err(err).
			Str("symbol", symbol).
			Str("side", string(req.Side)).
			Msg("Order placement failed")
		return nil, fmt.Errorf("place order: %w", classified)
	}

	order := b.convertCreateResponse(resp, req)

	b.mu.Lock()
	b.orders[order.ID] = order
	b.mu.Unlock()

	b.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Msg("Order placed on Binance")

	return &PlaceOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Message: "order placed",
	}, nil
}

// CancelOrder cancels an open order on Binance
func (b *BinanceExchange) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	b.mu.Lock()
	order, exists := b.orders[orderID]
	b.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}

	exchangeID, err := strconv.ParseInt(order.ExchangeOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange order ID: %w", err)
	}

	err = WithRetry(ctx, b.retryConfig, func() error {
		_, cancelErr := b.client.NewCancelOrderService().
			Symbol(exchangeSymbol(order.Symbol)).
			OrderID(exchangeID).
			Do(ctx, binance.WithRecvWindow(b.recvWindow))
		return cancelErr
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", classifyError(err))
	}

	b.mu.Lock()
	order.Status = OrderStatusCancelled
	order.UpdatedAt = time.Now()
	b.mu.Unlock()

	b.log.Info().Str("order_id", orderID).Msg("Order cancelled on Binance")
	return order, nil
}

// GetOrder refreshes and returns order details. Query failures return the
// cached order.
func (b *BinanceExchange) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	b.mu.RLock()
	order, exists := b.orders[orderID]
	b.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}

	exchangeID, err := strconv.ParseInt(order.ExchangeOrderID, 10, 64)
	if err != nil {
		return order, nil
	}

	var remote *binance.Order
	err = WithRetry(ctx, b.retryConfig, func() error {
		var queryErr error
		remote, queryErr = b.client.NewGetOrderService().
			Symbol(exchangeSymbol(order.Symbol)).
			OrderID(exchangeID).
			Do(ctx, binance.WithRecvWindow(b.recvWindow))
		return queryErr
	})
	if err != nil {
		b.log.Warn().Err(err).Str("order_id", orderID).Msg("Order query failed, returning cached state")
		return order, nil
	}

	b.mu.Lock()
	updateFromRemote(order, remote)
	b.mu.Unlock()

	return order, nil
}

// GetOrderFills retrieves the trades behind an order
func (b *BinanceExchange) GetOrderFills(ctx context.Context, orderID string) ([]Fill, error) {
	b.mu.RLock()
	order, exists := b.orders[orderID]
	b.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}

	exchangeID, err := strconv.ParseInt(order.ExchangeOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange order ID: %w", err)
	}

	var trades []*binance.TradeV3
	err = WithRetry(ctx, b.retryConfig, func() error {
		var listErr error
		trades, listErr = b.client.NewListTradesService().
			Symbol(exchangeSymbol(order.Symbol)).
			OrderId(exchangeID).
			Do(ctx, binance.WithRecvWindow(b.recvWindow))
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list fills: %w", classifyError(err))
	}

	fills := make([]Fill, 0, len(trades))
	for _, trade := range trades {
		qty, _ := strconv.ParseFloat(trade.Quantity, 64)
		price, _ := strconv.ParseFloat(trade.Price, 64)
		fee, _ := strconv.ParseFloat(trade.Commission, 64)
		fills = append(fills, Fill{
			OrderID:   orderID,
			Quantity:  qty,
			Price:     price,
			Fee:       fee,
			Timestamp: time.UnixMilli(trade.Time),
		})
	}
	return fills, nil
}

// GetBalance returns one asset's spot balance
func (b *BinanceExchange) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	var account *binance.Account
	err := WithRetry(ctx, b.retryConfig, func() error {
		var acctErr error
		account, acctErr = b.client.NewGetAccountService().
			Do(ctx, binance.WithRecvWindow(b.recvWindow))
		return acctErr
	})
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", classifyError(err))
	}

	upper := strings.ToUpper(asset)
	for _, bal := range account.Balances {
		if bal.Asset == upper {
			free, _ := strconv.ParseFloat(bal.Free, 64)
			locked, _ := strconv.ParseFloat(bal.Locked, 64)
			return &Balance{Asset: upper, Free: free, Locked: locked}, nil
		}
	}
	return &Balance{Asset: upper}, nil
}

func (b *BinanceExchange) convertCreateResponse(resp *binance.CreateOrderResponse, req PlaceOrderRequest) *Order {
	now := time.Now()

	executedQty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	var avgPrice float64
	if executedQty > 0 {
		avgPrice = quoteQty / executedQty
	}

	order := &Order{
		ID:              strconv.FormatInt(resp.OrderID, 10),
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Quantity:        req.Quantity,
		Price:           req.Price,
		FilledQty:       executedQty,
		AvgFillPrice:    avgPrice,
		Status:          mapOrderStatus(resp.Status),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.Status == OrderStatusFilled {
		order.FilledAt = &now
	}
	return order
}

func updateFromRemote(order *Order, remote *binance.Order) {
	executedQty, _ := strconv.ParseFloat(remote.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(remote.CummulativeQuoteQuantity, 64)
	if executedQty > 0 {
		order.AvgFillPrice = quoteQty / executedQty
	}
	order.FilledQty = executedQty
	order.UpdatedAt = time.Now()

	order.Status = mapOrderStatus(remote.Status)
	if order.Status == OrderStatusFilled && order.FilledAt == nil {
		now := time.Now()
		order.FilledAt = &now
	}
}

func mapOrderStatus(status binance.OrderStatusType) OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		return OrderStatusOpen
	case binance.OrderStatusTypeFilled:
		return OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return OrderStatusRejected
	default:
		return OrderStatusPending
	}
}

// classifyError maps exchange failures onto the sentinel errors
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "-1121") || strings.Contains(msg, "Invalid symbol"):
		return fmt.Errorf("%w: %s", ErrBadSymbol, msg)
	case strings.Contains(msg, "-2010") || strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
	case strings.Contains(msg, "-1003") || strings.Contains(msg, "EAPI:1015") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF"):
		return fmt.Errorf("%w: %s", ErrNetwork, msg)
	default:
		return err
	}
}

// exchangeSymbol converts "BTC/USDT" to Binance's "BTCUSDT"
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
