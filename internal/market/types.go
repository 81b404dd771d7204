// Package market implements the market-data port: typed OHLCV/ticker/order
// book access over the exchange REST API with TTL caching, rate limiting and
// a rate-limit cooldown window.
package market

import (
	"context"
	"time"
)

// Candle represents OHLCV data for one timeframe bucket
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is a slice of candles ordered ascending by timestamp
type Series []Candle

// Closes returns the close prices of the series
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices of the series
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices of the series
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Opens returns the open prices of the series
func (s Series) Opens() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Open
	}
	return out
}

// Volumes returns the volumes of the series
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

// Last returns the most recent candle. Callers must check the series is
// non-empty first.
func (s Series) Last() Candle {
	return s[len(s)-1]
}

// Ticker holds the latest price snapshot for a symbol
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	High24h   float64 `json:"high_24h"`
	Low24h    float64 `json:"low_24h"`
	Volume24h float64 `json:"volume_24h"`
}

// PriceLevel is one order book level
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds order book depth. Bids are ordered descending by price,
// asks ascending.
type OrderBook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// Provider is the market-data interface the decision layers consume
type Provider interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (Series, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
}
