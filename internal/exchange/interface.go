package exchange

import "context"

// Exchange is the trading port. PaperExchange (simulation) and
// BinanceExchange (live) both implement it.
type Exchange interface {
	// PlaceOrder places a new order
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error)

	// CancelOrder cancels an existing order
	CancelOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrder retrieves order details
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrderFills retrieves all fills for an order
	GetOrderFills(ctx context.Context, orderID string) ([]Fill, error)

	// GetBalance returns the balance of one asset
	GetBalance(ctx context.Context, asset string) (*Balance, error)
}
