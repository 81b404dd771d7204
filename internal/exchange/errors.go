package exchange

import "errors"

// Sentinel errors for failure classes callers branch on
var (
	// ErrRateLimited signals the exchange refused the request for
	// frequency reasons; callers should back off
	ErrRateLimited = errors.New("exchange: rate limited")

	// ErrNetwork signals a transport-level failure worth retrying
	ErrNetwork = errors.New("exchange: network error")

	// ErrBadSymbol signals an unknown or malformed trading pair
	ErrBadSymbol = errors.New("exchange: unknown symbol")

	// ErrInsufficientFunds signals the account cannot cover the order
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")

	// ErrNoPosition signals a close was requested with nothing open
	ErrNoPosition = errors.New("exchange: no open position")

	// ErrAlreadyInPosition signals an open was requested while a
	// position is still held
	ErrAlreadyInPosition = errors.New("exchange: position already open")
)
