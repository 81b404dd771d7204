package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pattarak/tradepilot/internal/config"
)

// Orders above this quote notional fill in chunks at worsening prices
const partialFillThreshold = 10000.0

// PaperExchange simulates an exchange for paper trading. Fills are
// immediate for market orders, with slippage growing with order size and
// taker fees charged in the quote asset. Balances are kept as decimals so
// repeated small fills do not drift.
type PaperExchange struct {
	mu sync.RWMutex

	orders   map[string]*Order
	fills    map[string][]Fill
	prices   map[string]float64
	balances map[string]decimal.Decimal

	baseSlippage float64
	marketImpact float64
	maxSlippage  float64
	takerFee     decimal.Decimal

	log zerolog.Logger
}

// NewPaperExchange creates a paper exchange funded with initialQuote units
// of quoteAsset (typically USDT)
func NewPaperExchange(fees config.FeeConfig, quoteAsset string, initialQuote float64) *PaperExchange {
	p := &PaperExchange{
		orders:       make(map[string]*Order),
		fills:        make(map[string][]Fill),
		prices:       make(map[string]float64),
		balances:     make(map[string]decimal.Decimal),
		baseSlippage: fees.BaseSlippage,
		marketImpact: fees.MarketImpact,
		maxSlippage:  fees.MaxSlippage,
		takerFee:     decimal.NewFromFloat(fees.Taker),
		log:          config.NewLogger("paper"),
	}
	p.balances[strings.ToUpper(quoteAsset)] = decimal.NewFromFloat(initialQuote)

	p.log.Info().
		Str("quote_asset", quoteAsset).
		Float64("initial_balance", initialQuote).
		Float64("taker_fee", fees.Taker).
		Float64("base_slippage", fees.BaseSlippage).
		Msg("Paper exchange initialized")

	return p
}

// SetMarketPrice sets the mid price used to fill market orders
func (p *PaperExchange) SetMarketPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// PlaceOrder places an order. Market orders fill immediately against the
// last set mid price; limit orders rest open.
func (p *PaperExchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateOrder(req); err != nil {
		p.log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Msg("Order validation failed")
		return &PlaceOrderResponse{
			Status:  OrderStatusRejected,
			Message: err.Error(),
		}, nil
	}

	now := time.Now()
	order := &Order{
		ID:        uuid.New().String(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.Type == OrderTypeMarket {
		if err := p.fillMarketOrder(order, now); err != nil {
			return nil, err
		}
	} else {
		order.Status = OrderStatusOpen
	}

	p.orders[order.ID] = order

	p.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Str("status", string(order.Status)).
		Msg("Order placed")

	return &PlaceOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Message: "order placed",
	}, nil
}

// CancelOrder cancels an open or pending order
func (p *PaperExchange) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	if order.Status != OrderStatusOpen && order.Status != OrderStatusPending {
		return nil, fmt.Errorf("cannot cancel order in status %s", order.Status)
	}

	order.Status = OrderStatusCancelled
	order.UpdatedAt = time.Now()
	return order, nil
}

// GetOrder retrieves order details
func (p *PaperExchange) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	return order, nil
}

// GetOrderFills retrieves all fills for an order
func (p *PaperExchange) GetOrderFills(ctx context.Context, orderID string) ([]Fill, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fills[orderID], nil
}

// GetBalance returns one asset's balance; unknown assets report zero
func (p *PaperExchange) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	free, _ := p.balances[strings.ToUpper(asset)].Float64()
	return &Balance{Asset: strings.ToUpper(asset), Free: free}, nil
}

func (p *PaperExchange) fillMarketOrder(order *Order, now time.Time) error {
	mid, ok := p.prices[order.Symbol]
	if !ok || mid <= 0 {
		return fmt.Errorf("%w: no market price for %s", ErrBadSymbol, order.Symbol)
	}

	slippage := p.slippage(order.Quantity, mid)
	var fillPrice float64
	if order.Side == OrderSideBuy {
		fillPrice = mid * (1 + slippage)
	} else {
		fillPrice = mid * (1 - slippage)
	}

	fills := p.chunkFills(order, fillPrice, now)

	var totalValue, totalQty, totalFee decimal.Decimal
	for _, fill := range fills {
		value := decimal.NewFromFloat(fill.Price).Mul(decimal.NewFromFloat(fill.Quantity))
		totalValue = totalValue.Add(value)
		totalQty = totalQty.Add(decimal.NewFromFloat(fill.Quantity))
		totalFee = totalFee.Add(decimal.NewFromFloat(fill.Fee))
	}

	base, quote := splitSymbol(order.Symbol)
	if order.Side == OrderSideBuy {
		cost := totalValue.Add(totalFee)
		if p.balances[quote].LessThan(cost) {
			return fmt.Errorf("%w: need %s %s", ErrInsufficientFunds, cost.StringFixed(2), quote)
		}
		p.balances[quote] = p.balances[quote].Sub(cost)
		p.balances[base] = p.balances[base].Add(totalQty)
	} else {
		if p.balances[base].LessThan(totalQty) {
			return fmt.Errorf("%w: need %s %s", ErrInsufficientFunds, totalQty.String(), base)
		}
		p.balances[base] = p.balances[base].Sub(totalQty)
		p.balances[quote] = p.balances[quote].Add(totalValue.Sub(totalFee))
	}

	avgPrice, _ := totalValue.Div(totalQty).Float64()
	fee, _ := totalFee.Float64()

	order.FilledQty = order.Quantity
	order.AvgFillPrice = avgPrice
	order.Fee = fee
	order.Status = OrderStatusFilled
	order.UpdatedAt = now
	order.FilledAt = &now
	p.fills[order.ID] = fills

	p.log.Info().
		Str("order_id", order.ID).
		Float64("avg_price", avgPrice).
		Float64("slippage_pct", slippage*100).
		Int("num_fills", len(fills)).
		Msg("Order filled")

	return nil
}

// chunkFills splits large orders into three fills at worsening prices
func (p *PaperExchange) chunkFills(order *Order, fillPrice float64, now time.Time) []Fill {
	makeFill := func(qty, price float64) Fill {
		fee, _ := decimal.NewFromFloat(qty * price).Mul(p.takerFee).Float64()
		return Fill{
			OrderID:   order.ID,
			Quantity:  qty,
			Price:     price,
			Fee:       fee,
			Timestamp: now,
		}
	}

	if order.Quantity*fillPrice <= partialFillThreshold {
		return []Fill{makeFill(order.Quantity, fillPrice)}
	}

	direction := 1.0
	if order.Side == OrderSideSell {
		direction = -1.0
	}
	chunk := order.Quantity / 3
	fills := make([]Fill, 0, 3)
	for i := 0; i < 3; i++ {
		qty := chunk
		if i == 2 {
			qty = order.Quantity - 2*chunk
		}
		price := fillPrice * (1 + direction*float64(i)*p.marketImpact)
		fills = append(fills, makeFill(qty, price))
	}
	return fills
}

func (p *PaperExchange) slippage(quantity, price float64) float64 {
	orderSizeUSD := quantity * price
	slippage := p.baseSlippage + p.marketImpact*(orderSizeUSD/1_000_000)
	if slippage > p.maxSlippage {
		slippage = p.maxSlippage
	}
	return slippage
}

func validateOrder(req PlaceOrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if req.Side != OrderSideBuy && req.Side != OrderSideSell {
		return fmt.Errorf("invalid order side: %s", req.Side)
	}
	if req.Type != OrderTypeMarket && req.Type != OrderTypeLimit {
		return fmt.Errorf("invalid order type: %s", req.Type)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if req.Type == OrderTypeLimit && req.Price <= 0 {
		return fmt.Errorf("limit orders must have a positive price")
	}
	return nil
}

// splitSymbol decomposes "BTC/USDT" into base and quote assets. Symbols
// without a separator assume a USDT quote.
func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(strings.ToUpper(symbol), "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	if strings.HasSuffix(parts[0], "USDT") {
		return strings.TrimSuffix(parts[0], "USDT"), "USDT"
	}
	return parts[0], "USDT"
}
