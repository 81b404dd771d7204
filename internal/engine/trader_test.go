package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/db"
	"github.com/pattarak/tradepilot/internal/exchange"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/internal/onchain"
	"github.com/pattarak/tradepilot/internal/risk"
)

// seriesProvider serves a fixed candle series
type seriesProvider struct {
	mu     sync.Mutex
	series market.Series
	err    error
}

func (p *seriesProvider) setSeries(series market.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series = series
}

func (p *seriesProvider) FetchOHLCV(_ context.Context, _, _ string, _ int) (market.Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.series, p.err
}

func (p *seriesProvider) FetchTicker(_ context.Context, _ string) (*market.Ticker, error) {
	return nil, errors.New("not implemented")
}

func (p *seriesProvider) FetchOrderBook(_ context.Context, _ string, _ int) (*market.OrderBook, error) {
	return nil, errors.New("not implemented")
}

type closedTrade struct {
	ID        uuid.UUID
	ExitPrice float64
	PnL       float64
	PnLPct    float64
	Reason    string
}

// memoryStore records persistence calls in memory
type memoryStore struct {
	mu       sync.Mutex
	inserted []*db.Trade
	closed   []closedTrade
}

func (s *memoryStore) InsertTrade(_ context.Context, trade *db.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, trade)
	return nil
}

func (s *memoryStore) CloseTrade(_ context.Context, id uuid.UUID, exitPrice, pnl, pnlPct float64, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, closedTrade{ID: id, ExitPrice: exitPrice, PnL: pnl, PnLPct: pnlPct, Reason: reason})
	return nil
}

func (s *memoryStore) GetOpenTrade(_ context.Context, _, _ string) (*db.Trade, error) {
	return nil, nil
}

func testTradingConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Risk.MinConfidence = 0.6
	cfg.Fees.MinHoldMinutes = 0
	cfg.Fees.MaxTradesPerHour = 10
	cfg.Fees.MaxTradesPerDay = 20
	return cfg
}

func newTestTrader(t *testing.T, cfg *config.Config, provider market.Provider, store TradeStore, filter *onchain.Filter) (*Trader, *exchange.PaperExchange) {
	t.Helper()
	paper := exchange.NewPaperExchange(cfg.Fees, "USDT", 10000)

	trader := NewTrader(
		BotOptions{ConfigID: "bot-1", Symbol: "BTC/USDT", Budget: 1000},
		cfg,
		Deps{
			Provider: provider,
			Exchange: paper,
			Pipeline: NewPipeline(nil, cfg.Risk, false),
			OnChain:  filter,
			Store:    store,
		},
	)
	return trader, paper
}

func TestTraderStartStop(t *testing.T) {
	cfg := testTradingConfig(t)
	provider := &seriesProvider{err: errors.New("exchange down")}
	trader, _ := newTestTrader(t, cfg, provider, nil, nil)

	assert.Equal(t, StateIdle, trader.State())

	require.NoError(t, trader.Start(context.Background()))
	assert.Equal(t, StateRunning, trader.State())
	assert.ErrorIs(t, trader.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, trader.Stop())
	assert.Equal(t, StateStopped, trader.State())
	assert.ErrorIs(t, trader.Stop(), ErrNotRunning)
}

func TestTraderOpensPositionOnBuySignal(t *testing.T) {
	cfg := testTradingConfig(t)
	series := uptrendSeries(60, 100, 1)
	provider := &seriesProvider{series: series}
	store := &memoryStore{}
	trader, _ := newTestTrader(t, cfg, provider, store, nil)

	// The tick pushes the candle close into the paper exchange; no price
	// needs to be seeded up front
	trader.tick(context.Background())

	pos := trader.Position()
	require.NotNil(t, pos)
	assert.Equal(t, risk.SideBuy, pos.Side)
	// 95% of the 1000 budget at the last close
	assert.InDelta(t, 1000*0.95/series.Last().Close, pos.Quantity, 1e-9)
	// Fill carries slippage above the last close
	assert.Greater(t, pos.EntryPrice, 159.0)
	assert.Less(t, pos.EntryPrice, 159.5)
	assert.Greater(t, pos.Levels.StopLossPct, 0.0)
	assert.Equal(t, 2.0, pos.Levels.RiskReward)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, db.TradeStatusOpen, store.inserted[0].Status)
	assert.Equal(t, "BTC/USDT", store.inserted[0].Symbol)

	messages := activityMessages(trader.Activity(5))
	assert.Contains(t, messages, "Cycle started")
	assert.Contains(t, messages, "Position opened")
	assert.Contains(t, messages, "Cycle complete")
}

func TestTraderTakesProfit(t *testing.T) {
	cfg := testTradingConfig(t)
	series := uptrendSeries(60, 100, 1)
	provider := &seriesProvider{series: series}
	store := &memoryStore{}
	trader, _ := newTestTrader(t, cfg, provider, store, nil)

	trader.tick(context.Background())
	require.NotNil(t, trader.Position())

	// Price rallies 5%, clearing the take-profit level
	provider.setSeries(scaleSeries(series, 1.05))

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	require.Len(t, store.closed, 1)
	assert.Contains(t, store.closed[0].Reason, "Take Profit")
	assert.Greater(t, store.closed[0].PnL, 0.0)

	perf := trader.Performance()
	assert.Equal(t, 1, perf.Trades)
	assert.Equal(t, 1.0, perf.WinRate)
}

func TestTraderStopLossBypassesFeeGate(t *testing.T) {
	cfg := testTradingConfig(t)
	// A 30 minute minimum hold would block an ordinary exit on the next
	// tick; stop losses must fire anyway
	cfg.Fees.MinHoldMinutes = 30

	series := uptrendSeries(60, 100, 1)
	provider := &seriesProvider{series: series}
	store := &memoryStore{}
	trader, _ := newTestTrader(t, cfg, provider, store, nil)

	trader.tick(context.Background())
	require.NotNil(t, trader.Position())

	provider.setSeries(scaleSeries(series, 0.94))

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	require.Len(t, store.closed, 1)
	assert.Equal(t, "Stop Loss", store.closed[0].Reason)
	assert.Less(t, store.closed[0].PnL, 0.0)
	assert.Equal(t, 0.0, trader.Performance().WinRate)
}

func TestTraderSkipsLowConfidence(t *testing.T) {
	cfg := testTradingConfig(t)
	cfg.Risk.MinConfidence = 0.9

	series := uptrendSeries(60, 100, 1)
	provider := &seriesProvider{series: series}
	store := &memoryStore{}
	trader, _ := newTestTrader(t, cfg, provider, store, nil)

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	assert.Empty(t, store.inserted)
}

// distributionProvider reports heavy exchange inflow, which vetoes buys
type distributionProvider struct{}

func (distributionProvider) FetchMetrics(_ context.Context, _ string) (*onchain.Metrics, error) {
	return &onchain.Metrics{
		ExchangeNetflow: -800,
		WhaleTxCount:    20,
		WhaleVolume:     2000,
		StablecoinRatio: 0.05,
		Timestamp:       time.Now(),
	}, nil
}

func TestTraderOnChainVetoBlocksBuy(t *testing.T) {
	cfg := testTradingConfig(t)
	series := uptrendSeries(60, 100, 1)
	provider := &seriesProvider{series: series}
	store := &memoryStore{}
	filter := onchain.NewFilter(distributionProvider{})
	trader, _ := newTestTrader(t, cfg, provider, store, filter)

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	assert.Empty(t, store.inserted)
	assert.Contains(t, activityMessages(trader.Activity(5)), "On-chain veto blocked buy")
}

func TestTraderMarketDataFailure(t *testing.T) {
	cfg := testTradingConfig(t)
	provider := &seriesProvider{err: errors.New("exchange down")}
	trader, _ := newTestTrader(t, cfg, provider, nil, nil)

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	entries := trader.Activity(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "Market data fetch failed", entries[0].Message)
	// A skipped tick does not count as a completed check
	assert.True(t, trader.LastCheck().IsZero())
}

func TestTraderCycleEntriesOnHalt(t *testing.T) {
	cfg := testTradingConfig(t)
	// A flat range halts the pipeline, but the cycle itself still completes
	provider := &seriesProvider{series: rangeSeries(60, 100, 0.5)}
	trader, _ := newTestTrader(t, cfg, provider, &memoryStore{}, nil)

	trader.tick(context.Background())

	assert.Nil(t, trader.Position())
	messages := activityMessages(trader.Activity(5))
	assert.Contains(t, messages, "Cycle started")
	assert.Contains(t, messages, "Cycle complete")
	assert.False(t, trader.LastCheck().IsZero())
}

func TestTraderStatusReportsFeeSettingsAndBreakeven(t *testing.T) {
	cfg := testTradingConfig(t)
	provider := &seriesProvider{series: uptrendSeries(60, 100, 1)}
	trader, _ := newTestTrader(t, cfg, provider, &memoryStore{}, nil)

	trader.tick(context.Background())
	require.NotNil(t, trader.Position())

	status := trader.Status()
	assert.Equal(t, "bot-1", status.ConfigID)
	assert.Equal(t, "BTC/USDT", status.Symbol)
	assert.Equal(t, StateIdle, status.State)
	assert.False(t, status.LastCheck.IsZero())
	assert.NotEmpty(t, status.Activity)
	assert.Equal(t, cfg.Fees.Taker, status.FeeSettings.Taker)

	require.NotNil(t, status.Position)
	require.NotNil(t, status.Breakeven)
	entry := status.Position.EntryPrice
	assert.InDelta(t, entry*(1+2*cfg.Fees.Taker), status.Breakeven.BreakEvenPrice, 1e-9)
	assert.InDelta(t, entry*(1+2*cfg.Fees.Taker*cfg.Fees.MinProfitMultiple), status.Breakeven.MinProfitablePrice, 1e-9)

	// Raising the profit multiple at runtime moves the minimum profitable
	// exit further out
	multiple := 5.0
	updated := trader.UpdateFeeSettings(risk.FeeSettingsUpdate{MinProfitMultiple: &multiple})
	assert.Equal(t, 5.0, updated.MinProfitMultiple)

	status = trader.Status()
	assert.Equal(t, 5.0, status.FeeSettings.MinProfitMultiple)
	assert.InDelta(t, entry*(1+2*cfg.Fees.Taker*5.0), status.Breakeven.MinProfitablePrice, 1e-9)
}

// activityMessages flattens activity entries to their messages
func activityMessages(entries []ActivityEntry) []string {
	messages := make([]string, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, e.Message)
	}
	return messages
}

// scaleSeries multiplies every price in the series by factor
func scaleSeries(series market.Series, factor float64) market.Series {
	out := make(market.Series, len(series))
	for i, c := range series {
		out[i] = market.Candle{
			Timestamp: c.Timestamp,
			Open:      c.Open * factor,
			High:      c.High * factor,
			Low:       c.Low * factor,
			Close:     c.Close * factor,
			Volume:    c.Volume,
		}
	}
	return out
}
