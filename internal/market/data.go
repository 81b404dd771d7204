package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/exchange"
)

const (
	tickerTTL = 5 * time.Second
	bookTTL   = 2 * time.Second
	// After the exchange rate-limits us, all calls serve cached data for
	// this long before touching the API again
	cooldownWindow = 30 * time.Second
)

// ohlcvTTL is the cache lifetime per timeframe. Higher timeframes change
// less often.
var ohlcvTTL = map[string]time.Duration{
	"1m":  30 * time.Second,
	"5m":  60 * time.Second,
	"15m": 120 * time.Second,
	"1h":  600 * time.Second,
	"4h":  1800 * time.Second,
	"1d":  3600 * time.Second,
}

const defaultOHLCVTTL = 60 * time.Second

type cacheEntry struct {
	value   any
	expires time.Time
}

// Client fetches market data from the Binance public API with an in-memory
// TTL cache and a request rate limiter. When the exchange rate-limits us
// the client enters a shared cooldown: cached values (stale included) are
// served, and calls with nothing cached fail with ErrRateLimited.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter

	mu            sync.RWMutex
	cache         map[string]cacheEntry
	cooldownUntil time.Time

	log zerolog.Logger
}

// NewClient creates a market data client. Public endpoints need no
// credentials.
func NewClient(cfg config.ExchangeConfig) *Client {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	rps := cfg.RequestsSec
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		api:     binance.NewClient("", ""),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		cache:   make(map[string]cacheEntry),
		log:     config.NewLogger("market"),
	}
}

// FetchOHLCV returns up to limit candles for the symbol and timeframe
func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (Series, error) {
	key := fmt.Sprintf("ohlcv:%s:%s:%d", symbol, timeframe, limit)
	ttl, ok := ohlcvTTL[timeframe]
	if !ok {
		ttl = defaultOHLCVTTL
	}

	if cached, ok := c.lookup(key, false); ok {
		return cached.(Series), nil
	}

	value, err := c.fetch(ctx, key, func() (any, error) {
		klines, err := c.api.NewKlinesService().
			Symbol(normalizeSymbol(symbol)).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		return klinesToSeries(klines), nil
	}, ttl)
	if err != nil {
		return nil, err
	}
	return value.(Series), nil
}

// FetchTicker returns the latest 24h price snapshot
func (c *Client) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	key := "ticker:" + symbol

	if cached, ok := c.lookup(key, false); ok {
		return cached.(*Ticker), nil
	}

	value, err := c.fetch(ctx, key, func() (any, error) {
		stats, err := c.api.NewListPriceChangeStatsService().
			Symbol(normalizeSymbol(symbol)).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(stats) == 0 {
			return nil, fmt.Errorf("%w: %s", exchange.ErrBadSymbol, symbol)
		}
		return statsToTicker(symbol, stats[0]), nil
	}, tickerTTL)
	if err != nil {
		return nil, err
	}
	return value.(*Ticker), nil
}

// FetchOrderBook returns order book depth
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	key := fmt.Sprintf("book:%s:%d", symbol, depth)

	if cached, ok := c.lookup(key, false); ok {
		return cached.(*OrderBook), nil
	}

	value, err := c.fetch(ctx, key, func() (any, error) {
		resp, err := c.api.NewDepthService().
			Symbol(normalizeSymbol(symbol)).
			Limit(depth).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		return depthToBook(symbol, resp), nil
	}, bookTTL)
	if err != nil {
		return nil, err
	}
	return value.(*OrderBook), nil
}

// fetch runs the API call behind the rate limiter and cooldown, caching the
// result under key
func (c *Client) fetch(ctx context.Context, key string, call func() (any, error), ttl time.Duration) (any, error) {
	c.mu.RLock()
	cooldown := c.cooldownUntil
	c.mu.RUnlock()

	if time.Now().Before(cooldown) {
		if stale, ok := c.lookup(key, true); ok {
			c.log.Debug().Str("key", key).Msg("Cooldown active, serving cached data")
			return stale, nil
		}
		return nil, exchange.ErrRateLimited
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	value, err := call()
	if err != nil {
		if isRateLimitError(err) {
			c.mu.Lock()
			c.cooldownUntil = time.Now().Add(cooldownWindow)
			c.mu.Unlock()
			c.log.Warn().Err(err).Str("key", key).Msg("Exchange rate limit hit, entering cooldown")
			if stale, ok := c.lookup(key, true); ok {
				return stale, nil
			}
			return nil, fmt.Errorf("%w: %v", exchange.ErrRateLimited, err)
		}
		return nil, err
	}

	c.store(key, value, ttl)
	return value, nil
}

// isRateLimitError matches throttling responses: -1003/429 request floods
// and the -1015/418 markers Binance uses for order-rate bans
func isRateLimitError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "-1003") || strings.Contains(msg, "-1015") ||
		strings.Contains(msg, "429") || strings.Contains(msg, "418") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}

// lookup returns the cached value for key. With stale true, expired entries
// are returned too.
func (c *Client) lookup(key string, stale bool) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if !stale && time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (c *Client) store(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: value, expires: time.Now().Add(ttl)}
}

func klinesToSeries(klines []*binance.Kline) Series {
	series := make(Series, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		series = append(series, Candle{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return series
}

func statsToTicker(symbol string, stats *binance.PriceChangeStats) *Ticker {
	last, _ := strconv.ParseFloat(stats.LastPrice, 64)
	bid, _ := strconv.ParseFloat(stats.BidPrice, 64)
	ask, _ := strconv.ParseFloat(stats.AskPrice, 64)
	high, _ := strconv.ParseFloat(stats.HighPrice, 64)
	low, _ := strconv.ParseFloat(stats.LowPrice, 64)
	volume, _ := strconv.ParseFloat(stats.Volume, 64)
	return &Ticker{
		Symbol:    symbol,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		High24h:   high,
		Low24h:    low,
		Volume24h: volume,
	}
}

func depthToBook(symbol string, resp *binance.DepthResponse) *OrderBook {
	book := &OrderBook{Symbol: symbol}
	for _, bid := range resp.Bids {
		price, _ := strconv.ParseFloat(bid.Price, 64)
		qty, _ := strconv.ParseFloat(bid.Quantity, 64)
		book.Bids = append(book.Bids, PriceLevel{Price: price, Quantity: qty})
	}
	for _, ask := range resp.Asks {
		price, _ := strconv.ParseFloat(ask.Price, 64)
		qty, _ := strconv.ParseFloat(ask.Quantity, 64)
		book.Asks = append(book.Asks, PriceLevel{Price: price, Quantity: qty})
	}
	return book
}

// normalizeSymbol converts "BTC/USDT" to Binance's "BTCUSDT"
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
