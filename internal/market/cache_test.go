package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	ohlcvCalls  int
	tickerCalls int
	bookCalls   int
}

func (p *countingProvider) FetchOHLCV(_ context.Context, _, _ string, _ int) (Series, error) {
	p.ohlcvCalls++
	return sampleSeries(), nil
}

func (p *countingProvider) FetchTicker(_ context.Context, symbol string) (*Ticker, error) {
	p.tickerCalls++
	return &Ticker{Symbol: symbol, Last: 100}, nil
}

func (p *countingProvider) FetchOrderBook(_ context.Context, symbol string, _ int) (*OrderBook, error) {
	p.bookCalls++
	return &OrderBook{
		Symbol: symbol,
		Bids:   []PriceLevel{{Price: 99, Quantity: 1}},
		Asks:   []PriceLevel{{Price: 101, Quantity: 1}},
	}, nil
}

func newCacheFixture(t *testing.T) (*CachedProvider, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inner := &countingProvider{}
	return NewCachedProvider(inner, rdb), inner, mr
}

func TestCachedProviderOHLCVReadThrough(t *testing.T) {
	cached, inner, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)
	second, err := cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.ohlcvCalls)
	assert.Equal(t, first, second)
}

func TestCachedProviderTTLExpiry(t *testing.T) {
	cached, inner, mr := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	_, err = cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.ohlcvCalls)
}

func TestCachedProviderDistinctKeys(t *testing.T) {
	cached, inner, _ := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)
	_, err = cached.FetchOHLCV(ctx, "BTC/USDT", "1h", 100)
	require.NoError(t, err)
	_, err = cached.FetchOHLCV(ctx, "ETH/USDT", "5m", 100)
	require.NoError(t, err)

	assert.Equal(t, 3, inner.ohlcvCalls)
}

func TestCachedProviderTicker(t *testing.T) {
	cached, inner, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := cached.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	second, err := cached.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.tickerCalls)
	assert.Equal(t, first.Last, second.Last)
}

func TestCachedProviderOrderBook(t *testing.T) {
	cached, inner, _ := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.FetchOrderBook(ctx, "BTC/USDT", 20)
	require.NoError(t, err)
	book, err := cached.FetchOrderBook(ctx, "BTC/USDT", 20)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.bookCalls)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 99.0, book.Bids[0].Price)
}

func TestCachedProviderRedisDownFallsThrough(t *testing.T) {
	cached, inner, mr := newCacheFixture(t)
	ctx := context.Background()

	mr.Close()

	series, err := cached.FetchOHLCV(ctx, "BTC/USDT", "5m", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, series)
	assert.Equal(t, 1, inner.ohlcvCalls)
}
