package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/alerts"
	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/db"
	"github.com/pattarak/tradepilot/internal/events"
	"github.com/pattarak/tradepilot/internal/exchange"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/internal/metrics"
	"github.com/pattarak/tradepilot/internal/onchain"
	"github.com/pattarak/tradepilot/internal/risk"
)

// aiExitConfidence is the confidence a counter-signal needs to close an
// open position
const aiExitConfidence = 0.7

// orderBookDepth is the depth fetched for pattern imbalance
const orderBookDepth = 20

// defaultPositionSizeRatio backs BotOptions without an explicit ratio
const defaultPositionSizeRatio = 0.95

// statusActivityLimit is how many activity entries a status snapshot carries
const statusActivityLimit = 20

// TradeStore persists trades. *db.DB implements it; a nil store disables
// persistence.
type TradeStore interface {
	InsertTrade(ctx context.Context, trade *db.Trade) error
	CloseTrade(ctx context.Context, id uuid.UUID, exitPrice, pnl, pnlPct float64, reason string, closedAt time.Time) error
	GetOpenTrade(ctx context.Context, configID, symbol string) (*db.Trade, error)
}

// Position is the bot's single open position
type Position struct {
	ID         uuid.UUID   `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       risk.Side   `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	OpenedAt   time.Time   `json:"opened_at"`
	Levels     risk.Levels `json:"levels"`

	trail *risk.AdaptiveStopLoss
}

// BotOptions identify one bot instance. PositionSizeRatio is the fraction
// of the budget committed per entry; zero falls back to the config value.
type BotOptions struct {
	ConfigID          string
	Symbol            string
	Budget            float64
	PositionSizeRatio float64
}

// Deps are the trader's collaborators. Store, OnChain and Bus may be nil;
// Notifier defaults to a no-op.
type Deps struct {
	Provider market.Provider
	Exchange exchange.Exchange
	Pipeline *Pipeline
	OnChain  *onchain.Filter
	Store    TradeStore
	Notifier alerts.Notifier
	Bus      *events.Bus
}

// Trader runs one bot: a ticker loop that manages the open position or
// evaluates entries through the decision pipeline. At most one position is
// open at a time.
type Trader struct {
	mu        sync.RWMutex
	state     State
	stopChan  chan struct{}
	wg        sync.WaitGroup
	position  *Position
	lastCheck time.Time

	opts     BotOptions
	cfg      *config.Config
	provider market.Provider
	exch     exchange.Exchange
	pipeline *Pipeline
	filter   *onchain.Filter
	gate     *risk.FeeGate
	tracker  *risk.PerformanceTracker
	store    TradeStore
	notifier alerts.Notifier
	bus      *events.Bus
	activity *ActivityLog
	log      zerolog.Logger
}

// NewTrader assembles a bot from its options and collaborators
func NewTrader(opts BotOptions, cfg *config.Config, deps Deps) *Trader {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = alerts.NopNotifier{}
	}
	if opts.PositionSizeRatio <= 0 || opts.PositionSizeRatio > 1 {
		opts.PositionSizeRatio = cfg.Trading.PositionSizeRatio
	}
	if opts.PositionSizeRatio <= 0 || opts.PositionSizeRatio > 1 {
		opts.PositionSizeRatio = defaultPositionSizeRatio
	}

	tracker := risk.NewPerformanceTracker(30)
	if deps.Pipeline != nil {
		deps.Pipeline.SetStatsSource(tracker)
	}

	return &Trader{
		state:    StateIdle,
		opts:     opts,
		cfg:      cfg,
		provider: deps.Provider,
		exch:     deps.Exchange,
		pipeline: deps.Pipeline,
		filter:   deps.OnChain,
		gate:     risk.NewFeeGate(cfg.Fees),
		tracker:  tracker,
		store:    deps.Store,
		notifier: notifier,
		bus:      deps.Bus,
		activity: NewActivityLog(),
		log:      config.NewBotLogger(opts.ConfigID, opts.Symbol),
	}
}

// Start launches the trading loop. Starting a running bot returns
// ErrAlreadyRunning.
func (t *Trader) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateRunning {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.state = StateRunning
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	t.activity.Add(ActivityInfo, "Bot started", nil)
	t.publishState(StateRunning)
	t.log.Info().Msg("Trading loop started")

	t.wg.Add(1)
	go t.run(ctx)
	return nil
}

// Stop halts the loop and waits for the current tick to finish
func (t *Trader) Stop() error {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return ErrNotRunning
	}
	close(t.stopChan)
	t.mu.Unlock()

	t.wg.Wait()

	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateStopped
	}
	final := t.state
	t.mu.Unlock()

	t.activity.Add(ActivityInfo, "Bot stopped", nil)
	t.publishState(final)
	t.log.Info().Msg("Trading loop stopped")
	return nil
}

// State returns the lifecycle state
func (t *Trader) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Position returns a copy of the open position, or nil
func (t *Trader) Position() *Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.position == nil {
		return nil
	}
	copied := *t.position
	return &copied
}

// Activity returns the bot's recent activity, newest first
func (t *Trader) Activity(n int) []ActivityEntry {
	return t.activity.Recent(n)
}

// Performance returns the rolling performance snapshot
func (t *Trader) Performance() risk.Performance {
	return t.tracker.Snapshot(time.Now())
}

// LastCheck returns when the last completed tick finished. Zero until the
// first tick completes.
func (t *Trader) LastCheck() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastCheck
}

// Breakeven are the open position's fee-recovery price levels
type Breakeven struct {
	BreakEvenPrice     float64 `json:"breakeven_price"`
	MinProfitablePrice float64 `json:"min_profitable_price"`
}

// Status is one bot's control-surface snapshot
type Status struct {
	ConfigID    string           `json:"config_id"`
	Symbol      string           `json:"symbol"`
	State       State            `json:"state"`
	LastCheck   time.Time        `json:"last_check"`
	Position    *Position        `json:"position,omitempty"`
	Activity    []ActivityEntry  `json:"activity"`
	Performance risk.Performance `json:"performance"`
	FeeSettings config.FeeConfig `json:"fee_settings"`
	Breakeven   *Breakeven       `json:"breakeven,omitempty"`
}

// Status snapshots the bot: lifecycle state, last check time, open
// position with its breakeven levels, recent activity, performance and the
// active fee settings
func (t *Trader) Status() Status {
	t.mu.RLock()
	state := t.state
	lastCheck := t.lastCheck
	var pos *Position
	if t.position != nil {
		copied := *t.position
		pos = &copied
	}
	t.mu.RUnlock()

	status := Status{
		ConfigID:    t.opts.ConfigID,
		Symbol:      t.opts.Symbol,
		State:       state,
		LastCheck:   lastCheck,
		Position:    pos,
		Activity:    t.activity.Recent(statusActivityLimit),
		Performance: t.tracker.Snapshot(time.Now()),
		FeeSettings: t.gate.Settings(),
	}
	if pos != nil {
		status.Breakeven = &Breakeven{
			BreakEvenPrice:     t.gate.BreakEvenPrice(pos.EntryPrice),
			MinProfitablePrice: t.gate.MinProfitablePrice(pos.EntryPrice),
		}
	}
	return status
}

// UpdateFeeSettings patches the running fee gate and returns the resulting
// settings
func (t *Trader) UpdateFeeSettings(update risk.FeeSettingsUpdate) config.FeeConfig {
	updated := t.gate.Update(update)
	t.activity.Add(ActivityInfo, "Fee settings updated", nil)
	return updated
}

func (t *Trader) run(ctx context.Context) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			t.mu.Lock()
			t.state = StateCrashed
			t.mu.Unlock()
			t.log.Error().Err(err).Msg("Trading loop crashed")
			t.activity.Add(ActivityError, "Bot crashed", map[string]any{"error": err.Error()})
			t.publishState(StateCrashed)
			_ = t.notifier.Send(context.Background(), alerts.BotCrashed(t.opts.ConfigID, err))
		}
	}()

	ticker := time.NewTicker(t.cfg.Trading.TickDuration())
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.state = StateStopped
			t.mu.Unlock()
			return
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// marketPricer is implemented by the paper exchange, which fills market
// orders at the last pushed price
type marketPricer interface {
	SetMarketPrice(symbol string, price float64)
}

// tick runs one iteration: refresh market data, then either manage the
// open position or evaluate a new entry. A failed market data fetch skips
// the tick without updating the last check time.
func (t *Trader) tick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	t.activity.Add(ActivityInfo, "Cycle started", nil)

	series, err := t.provider.FetchOHLCV(ctx, t.opts.Symbol, t.cfg.Trading.Timeframe, t.cfg.Trading.CandleLimit)
	if err != nil {
		t.log.Warn().Err(err).Msg("Market data fetch failed")
		t.activity.Add(ActivityWarning, "Market data fetch failed", map[string]any{"error": err.Error()})
		return
	}
	if len(series) == 0 {
		return
	}
	price := series.Last().Close
	metrics.LastPrice.WithLabelValues(t.opts.Symbol).Set(price)

	if pricer, ok := t.exch.(marketPricer); ok {
		pricer.SetMarketPrice(t.opts.Symbol, price)
	}

	t.mu.RLock()
	inPosition := t.position != nil
	t.mu.RUnlock()

	if inPosition {
		t.managePosition(ctx, series, price)
	} else {
		t.evaluateEntry(ctx, series, price)
	}

	t.mu.Lock()
	t.lastCheck = time.Now()
	t.mu.Unlock()
	t.activity.Add(ActivityInfo, "Cycle complete", map[string]any{"price": price})
}

// managePosition checks the exit conditions in priority order: take
// profit, stop loss, trailing stop, then a counter-signal from the
// pipeline. Stop exits bypass the fee gate.
func (t *Trader) managePosition(ctx context.Context, series market.Series, price float64) {
	t.mu.RLock()
	pos := t.position
	t.mu.RUnlock()
	if pos == nil {
		return
	}

	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == risk.SideSell {
		pnlPct = -pnlPct
	}

	stop := pos.trail.Update(series)

	switch {
	case pnlPct >= pos.Levels.TakeProfitPct:
		t.closePosition(ctx, price, fmt.Sprintf("Take Profit: %.2f%%", pnlPct*100), false)
	case pnlPct <= -pos.Levels.StopLossPct:
		t.closePosition(ctx, price, "Stop Loss", true)
	case pos.trail.ShouldExit(price):
		t.closePosition(ctx, price, "Trailing Stop", true)
	default:
		rec := t.pipeline.Analyze(ctx, t.opts.Symbol, series, nil, 0)
		if t.isCounterSignal(pos.Side, rec) {
			t.closePosition(ctx, price, "AI Signal", false)
			return
		}
		t.log.Debug().
			Float64("price", price).
			Float64("pnl_pct", pnlPct).
			Float64("trailing_stop", stop).
			Msg("Holding position")
	}
}

func (t *Trader) isCounterSignal(side risk.Side, rec Recommendation) bool {
	if rec.Confidence <= aiExitConfidence {
		return false
	}
	if side == risk.SideBuy {
		return rec.Action == ActionSell
	}
	return rec.Action == ActionBuy
}

// evaluateEntry runs the pipeline and opens a position when every gate
// passes
func (t *Trader) evaluateEntry(ctx context.Context, series market.Series, price float64) {
	book, err := t.provider.FetchOrderBook(ctx, t.opts.Symbol, orderBookDepth)
	if err != nil {
		book = nil
	}
	balance := t.availableBudget(ctx)

	rec := t.pipeline.Analyze(ctx, t.opts.Symbol, series, book, balance)
	metrics.DecisionsTotal.WithLabelValues(t.opts.ConfigID, metrics.NormalizeAction(string(rec.Action))).Inc()
	t.publish(events.TopicDecision, rec)

	if rec.Action != ActionBuy {
		return
	}

	if t.filter != nil {
		analysis := t.filter.Analyze(ctx, t.opts.Symbol)
		rec.Modules.OnChain = &analysis
		if analysis.VetoBuy {
			t.activity.Add(ActivityWarning, "On-chain veto blocked buy", map[string]any{
				"status": string(analysis.Status),
			})
			return
		}
	}

	if rec.Confidence < t.cfg.Risk.MinConfidence {
		t.log.Debug().
			Float64("confidence", rec.Confidence).
			Float64("required", t.cfg.Risk.MinConfidence).
			Msg("Confidence below threshold")
		return
	}

	now := time.Now()
	if decision := t.gate.CanOpen(now); !decision.Allowed {
		t.activity.Add(ActivityWarning, "Fee gate blocked entry", map[string]any{"reason": decision.Reason})
		return
	}

	if balance <= 0 {
		t.activity.Add(ActivityWarning, "No available budget", nil)
		return
	}

	quantity := balance * t.opts.PositionSizeRatio / price
	t.log.Debug().
		Float64("balance", balance).
		Float64("ratio", t.opts.PositionSizeRatio).
		Float64("advisory_size", rec.SizeUSD).
		Float64("quantity", quantity).
		Msg("Sized entry")

	resp, err := t.exch.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Symbol:   t.opts.Symbol,
		Side:     exchange.OrderSideBuy,
		Type:     exchange.OrderTypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		t.log.Error().Err(err).Msg("Entry order failed")
		t.activity.Add(ActivityError, "Entry order failed", map[string]any{"error": err.Error()})
		return
	}
	if resp.Status == exchange.OrderStatusRejected {
		t.activity.Add(ActivityWarning, "Entry order rejected", map[string]any{"reason": resp.Message})
		return
	}

	entryPrice := price
	if order, err := t.exch.GetOrder(ctx, resp.OrderID); err == nil && order.AvgFillPrice > 0 {
		entryPrice = order.AvgFillPrice
	}

	position := &Position{
		ID:         uuid.New(),
		Symbol:     t.opts.Symbol,
		Side:       risk.SideBuy,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		OpenedAt:   now,
		Levels: risk.Levels{
			StopLoss:      rec.StopLoss,
			TakeProfit:    rec.TakeProfit,
			StopLossPct:   rec.StopLossPct,
			TakeProfitPct: rec.TakeProfitPct,
			RiskReward:    rec.RiskReward,
		},
		trail: risk.NewAdaptiveStopLoss(risk.SideBuy, entryPrice, t.cfg.Risk.TrailATRMultiplier),
	}

	t.mu.Lock()
	t.position = position
	t.mu.Unlock()

	t.gate.RecordTrade(risk.SideBuy, now)
	metrics.OpenPositions.WithLabelValues(t.opts.ConfigID).Set(1)

	if t.store != nil {
		err := t.store.InsertTrade(ctx, &db.Trade{
			ID:         position.ID,
			ConfigID:   t.opts.ConfigID,
			Symbol:     position.Symbol,
			Side:       string(position.Side),
			Status:     db.TradeStatusOpen,
			Quantity:   position.Quantity,
			EntryPrice: position.EntryPrice,
			OpenedAt:   position.OpenedAt,
		})
		if err != nil {
			t.log.Error().Err(err).Msg("Failed to persist trade")
		}
	}

	t.publish(events.TopicTradeOpened, position)
	_ = t.notifier.Send(ctx, alerts.TradeOpened(position.Symbol, position.Quantity, position.EntryPrice, rec.Confidence))
	t.activity.Add(ActivitySuccess, "Position opened", map[string]any{
		"price":      position.EntryPrice,
		"quantity":   position.Quantity,
		"confidence": rec.Confidence,
	})
	t.log.Info().
		Float64("price", position.EntryPrice).
		Float64("quantity", position.Quantity).
		Float64("confidence", rec.Confidence).
		Msg("Position opened")
}

// closePosition exits the open position at market. force marks stop exits
// that must bypass the fee gate's hold-time and profit checks.
func (t *Trader) closePosition(ctx context.Context, price float64, reason string, force bool) {
	t.mu.RLock()
	pos := t.position
	t.mu.RUnlock()
	if pos == nil {
		return
	}

	now := time.Now()
	sizeQuote := pos.Quantity * pos.EntryPrice
	if decision := t.gate.CanClose(now, pos.EntryPrice, price, sizeQuote, force); !decision.Allowed {
		t.activity.Add(ActivityInfo, "Fee gate deferred exit", map[string]any{
			"reason": decision.Reason,
			"exit":   reason,
		})
		return
	}

	resp, err := t.exch.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Symbol:   pos.Symbol,
		Side:     exchange.OrderSideSell,
		Type:     exchange.OrderTypeMarket,
		Quantity: pos.Quantity,
	})
	if err != nil {
		t.log.Error().Err(err).Str("reason", reason).Msg("Exit order failed")
		t.activity.Add(ActivityError, "Exit order failed", map[string]any{"error": err.Error()})
		return
	}

	exitPrice := price
	if order, err := t.exch.GetOrder(ctx, resp.OrderID); err == nil && order.AvgFillPrice > 0 {
		exitPrice = order.AvgFillPrice
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity
	pnlPct := (exitPrice - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == risk.SideSell {
		pnl, pnlPct = -pnl, -pnlPct
	}

	t.mu.Lock()
	t.position = nil
	t.mu.Unlock()

	t.gate.RecordTrade(risk.SideSell, now)
	t.tracker.Record(risk.TradeRecord{
		Timestamp: now,
		Symbol:    pos.Symbol,
		Side:      pos.Side,
		PnL:       pnl,
		PnLPct:    pnlPct,
	})

	perf := t.tracker.Snapshot(now)
	metrics.OpenPositions.WithLabelValues(t.opts.ConfigID).Set(0)
	metrics.TradesTotal.WithLabelValues(t.opts.ConfigID, metrics.NormalizeResult(pnl)).Inc()
	metrics.TotalPnL.WithLabelValues(t.opts.ConfigID).Set(perf.TotalPnL)
	metrics.WinRate.WithLabelValues(t.opts.ConfigID).Set(perf.WinRate)
	metrics.MaxDrawdown.WithLabelValues(t.opts.ConfigID).Set(perf.MaxDrawdown)

	if t.store != nil {
		if err := t.store.CloseTrade(ctx, pos.ID, exitPrice, pnl, pnlPct, reason, now); err != nil {
			t.log.Error().Err(err).Msg("Failed to persist trade close")
		}
	}

	t.publish(events.TopicTradeClosed, map[string]any{
		"position":   pos,
		"exit_price": exitPrice,
		"pnl":        pnl,
		"pnl_pct":    pnlPct,
		"reason":     reason,
	})
	_ = t.notifier.Send(ctx, alerts.TradeClosed(pos.Symbol, reason, exitPrice, pnl, pnlPct))

	level := ActivitySuccess
	if pnl < 0 {
		level = ActivityWarning
	}
	t.activity.Add(level, "Position closed: "+reason, map[string]any{
		"exit_price": exitPrice,
		"pnl":        pnl,
		"pnl_pct":    pnlPct,
	})
	t.log.Info().
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Msg("Position closed")
}

// availableBudget is the smaller of the configured budget and the free
// quote balance
func (t *Trader) availableBudget(ctx context.Context) float64 {
	_, quote := splitPair(t.opts.Symbol)
	balance, err := t.exch.GetBalance(ctx, quote)
	if err != nil {
		t.log.Warn().Err(err).Msg("Balance lookup failed")
		return 0
	}
	if t.opts.Budget > 0 && t.opts.Budget < balance.Free {
		return t.opts.Budget
	}
	return balance.Free
}

// splitPair splits "BTC/USDT" into base and quote assets. Symbols
// without a separator fall back to a USDT quote.
func splitPair(symbol string) (base, quote string) {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i], symbol[i+1:]
	}
	if strings.HasSuffix(symbol, "USDT") && len(symbol) > 4 {
		return strings.TrimSuffix(symbol, "USDT"), "USDT"
	}
	return symbol, "USDT"
}

func (t *Trader) publish(topic string, payload any) {
	t.bus.Publish(t.opts.ConfigID, topic, payload)
}

func (t *Trader) publishState(state State) {
	t.bus.Publish(t.opts.ConfigID, events.TopicStateChanged, map[string]any{"state": string(state)})
}
