// Package exchange implements the trading port: a live Binance-backed
// implementation and a paper exchange that simulates fills with slippage
// and fees.
package exchange

import "time"

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents market or limit order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the current state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order represents a trading order
type Order struct {
	ID              string      `json:"id"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	Symbol          string      `json:"symbol"`
	Side            OrderSide   `json:"side"`
	Type            OrderType   `json:"type"`
	Quantity        float64     `json:"quantity"`
	Price           float64     `json:"price,omitempty"`
	FilledQty       float64     `json:"filled_qty"`
	AvgFillPrice    float64     `json:"avg_fill_price,omitempty"`
	Fee             float64     `json:"fee,omitempty"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	FilledAt        *time.Time  `json:"filled_at,omitempty"`
	RejectReason    string      `json:"reject_reason,omitempty"`
}

// Fill represents a partial or complete order fill
type Fill struct {
	OrderID   string    `json:"order_id"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Type     OrderType `json:"type"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price,omitempty"`
}

// PlaceOrderResponse represents the response after placing an order
type PlaceOrderResponse struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Balance is the free and locked amount of one asset
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}
