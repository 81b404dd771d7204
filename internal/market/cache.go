package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// CachedProvider is a Redis read-through layer over another Provider. It
// lets several bot processes share one market-data cache. Redis failures
// degrade to direct fetches, never to request failures.
type CachedProvider struct {
	inner Provider
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewCachedProvider wraps inner with a Redis cache
func NewCachedProvider(inner Provider, rdb *redis.Client) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		rdb:   rdb,
		log:   config.NewLogger("marketcache"),
	}
}

// FetchOHLCV serves candles from Redis when fresh, falling back to the
// inner provider
func (p *CachedProvider) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (Series, error) {
	key := fmt.Sprintf("tradepilot:ohlcv:%s:%s:%d", symbol, timeframe, limit)

	var series Series
	if p.get(ctx, key, &series) {
		return series, nil
	}

	series, err := p.inner.FetchOHLCV(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	ttl, ok := ohlcvTTL[timeframe]
	if !ok {
		ttl = defaultOHLCVTTL
	}
	p.set(ctx, key, series, ttl)
	return series, nil
}

// FetchTicker serves the ticker from Redis when fresh
func (p *CachedProvider) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	key := "tradepilot:ticker:" + symbol

	var ticker Ticker
	if p.get(ctx, key, &ticker) {
		return &ticker, nil
	}

	fresh, err := p.inner.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.set(ctx, key, fresh, tickerTTL)
	return fresh, nil
}

// FetchOrderBook serves the order book from Redis when fresh
func (p *CachedProvider) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	key := fmt.Sprintf("tradepilot:book:%s:%d", symbol, depth)

	var book OrderBook
	if p.get(ctx, key, &book) {
		return &book, nil
	}

	fresh, err := p.inner.FetchOrderBook(ctx, symbol, depth)
	if err != nil {
		return nil, err
	}
	p.set(ctx, key, fresh, bookTTL)
	return fresh, nil
}

func (p *CachedProvider) get(ctx context.Context, key string, out any) bool {
	raw, err := p.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.log.Warn().Err(err).Str("key", key).Msg("Redis read failed, fetching directly")
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, fetching directly")
		return false
	}
	return true
}

func (p *CachedProvider) set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Redis write failed")
	}
}
