package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pattarak/tradepilot/internal/config"
)

// tradeHistoryCap bounds the trade timestamp ring
const tradeHistoryCap = 1000

// GateDecision is the fee gate's verdict with a human-readable reason
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// FeeGate blocks trades that churn fees: it rate-limits entries per hour and
// per day, enforces a minimum hold time, and refuses exits whose net profit
// does not clear a multiple of the round-trip fees. Fee arithmetic runs on
// decimals to avoid drift on small positions.
type FeeGate struct {
	mu sync.Mutex

	cfg            config.FeeConfig
	taker          decimal.Decimal
	maker          decimal.Decimal
	profitMultiple decimal.Decimal
	maxPerHour     int
	maxPerDay      int
	minHold        time.Duration

	tradeTimes []time.Time
	entryTime  time.Time

	log zerolog.Logger
}

// NewFeeGate creates a fee gate from config
func NewFeeGate(cfg config.FeeConfig) *FeeGate {
	return &FeeGate{
		cfg:            cfg,
		taker:          decimal.NewFromFloat(cfg.Taker),
		maker:          decimal.NewFromFloat(cfg.Maker),
		profitMultiple: decimal.NewFromFloat(cfg.MinProfitMultiple),
		maxPerHour:     cfg.MaxTradesPerHour,
		maxPerDay:      cfg.MaxTradesPerDay,
		minHold:        cfg.MinHold(),
		log:            config.NewLogger("feegate"),
	}
}

// Settings returns the gate's active settings
func (g *FeeGate) Settings() config.FeeConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// FeeSettingsUpdate patches a subset of the gate's settings; nil fields
// keep their current value
type FeeSettingsUpdate struct {
	Maker             *float64
	Taker             *float64
	MinProfitMultiple *float64
	MaxTradesPerHour  *int
	MaxTradesPerDay   *int
	MinHoldMinutes    *int
}

// Update applies a partial settings change at runtime and returns the
// resulting settings
func (g *FeeGate) Update(update FeeSettingsUpdate) config.FeeConfig {
	g.mu.Lock()
	defer g.mu.Unlock()

	if update.Maker != nil {
		g.cfg.Maker = *update.Maker
		g.maker = decimal.NewFromFloat(*update.Maker)
	}
	if update.Taker != nil {
		g.cfg.Taker = *update.Taker
		g.taker = decimal.NewFromFloat(*update.Taker)
	}
	if update.MinProfitMultiple != nil {
		g.cfg.MinProfitMultiple = *update.MinProfitMultiple
		g.profitMultiple = decimal.NewFromFloat(*update.MinProfitMultiple)
	}
	if update.MaxTradesPerHour != nil {
		g.cfg.MaxTradesPerHour = *update.MaxTradesPerHour
		g.maxPerHour = *update.MaxTradesPerHour
	}
	if update.MaxTradesPerDay != nil {
		g.cfg.MaxTradesPerDay = *update.MaxTradesPerDay
		g.maxPerDay = *update.MaxTradesPerDay
	}
	if update.MinHoldMinutes != nil {
		g.cfg.MinHoldMinutes = *update.MinHoldMinutes
		g.minHold = g.cfg.MinHold()
	}

	g.log.Info().
		Float64("taker", g.cfg.Taker).
		Float64("min_profit_multiple", g.cfg.MinProfitMultiple).
		Int("max_trades_per_hour", g.cfg.MaxTradesPerHour).
		Int("max_trades_per_day", g.cfg.MaxTradesPerDay).
		Int("min_hold_minutes", g.cfg.MinHoldMinutes).
		Msg("Fee settings updated")
	return g.cfg
}

// EstimateFees returns the round-trip taker fees for a position of size
// quote currency entered at entry and exited at exit
func (g *FeeGate) EstimateFees(size, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	g.mu.Lock()
	taker := g.taker
	g.mu.Unlock()

	fees, _ := roundTripFees(size, entry, exit, taker).Float64()
	return fees
}

func roundTripFees(size, entry, exit float64, taker decimal.Decimal) decimal.Decimal {
	sizeD := decimal.NewFromFloat(size)
	entryFee := sizeD.Mul(taker)
	exitValue := sizeD.Mul(decimal.NewFromFloat(exit)).Div(decimal.NewFromFloat(entry))
	return entryFee.Add(exitValue.Mul(taker))
}

// CanOpen checks the hourly then daily trade frequency limits
func (g *FeeGate) CanOpen(now time.Time) GateDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.countSince(now.Add(-time.Hour)) >= g.maxPerHour {
		return GateDecision{Reason: "hourly trade limit reached"}
	}
	if g.countSince(now.Add(-24*time.Hour)) >= g.maxPerDay {
		return GateDecision{Reason: "daily trade limit reached"}
	}
	return GateDecision{Allowed: true, Reason: "ok"}
}

// CanClose checks the minimum hold time and that net profit clears the fee
// multiple. force bypasses both checks; stop losses must always fire.
func (g *FeeGate) CanClose(now time.Time, entry, exit, size float64, force bool) GateDecision {
	if force {
		return GateDecision{Allowed: true, Reason: "forced"}
	}

	g.mu.Lock()
	entryTime := g.entryTime
	minHold := g.minHold
	taker := g.taker
	profitMultiple := g.profitMultiple
	g.mu.Unlock()

	if !entryTime.IsZero() {
		if held := now.Sub(entryTime); held < minHold {
			return GateDecision{Reason: "minimum hold time not reached"}
		}
	}

	if entry <= 0 {
		return GateDecision{Allowed: true, Reason: "ok"}
	}

	sizeD := decimal.NewFromFloat(size)
	entryD := decimal.NewFromFloat(entry)
	exitD := decimal.NewFromFloat(exit)

	gross := sizeD.Mul(exitD.Sub(entryD)).Div(entryD)
	fees := roundTripFees(size, entry, exit, taker)
	net := gross.Sub(fees)

	if net.LessThan(fees.Mul(profitMultiple)) {
		return GateDecision{Reason: "net profit below fee multiple"}
	}
	return GateDecision{Allowed: true, Reason: "ok"}
}

// RecordTrade registers an executed order. BUY marks the position entry
// time; SELL clears it.
func (g *FeeGate) RecordTrade(side Side, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tradeTimes = append(g.tradeTimes, now)
	if len(g.tradeTimes) > tradeHistoryCap {
		g.tradeTimes = g.tradeTimes[len(g.tradeTimes)-tradeHistoryCap:]
	}

	if side == SideBuy {
		g.entryTime = now
	} else {
		g.entryTime = time.Time{}
	}
}

// BreakEvenPrice is the exit price where round-trip fees are recovered
func (g *FeeGate) BreakEvenPrice(entry float64) float64 {
	g.mu.Lock()
	taker := g.taker
	g.mu.Unlock()

	entryD := decimal.NewFromFloat(entry)
	two := decimal.NewFromInt(2)
	out, _ := entryD.Mul(decimal.NewFromInt(1).Add(two.Mul(taker))).Float64()
	return out
}

// MinProfitablePrice is the exit price where net profit clears the fee
// multiple
func (g *FeeGate) MinProfitablePrice(entry float64) float64 {
	g.mu.Lock()
	taker := g.taker
	profitMultiple := g.profitMultiple
	g.mu.Unlock()

	entryD := decimal.NewFromFloat(entry)
	two := decimal.NewFromInt(2)
	out, _ := entryD.Mul(decimal.NewFromInt(1).Add(two.Mul(taker).Mul(profitMultiple))).Float64()
	return out
}

func (g *FeeGate) countSince(cutoff time.Time) int {
	n := 0
	for _, ts := range g.tradeTimes {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
