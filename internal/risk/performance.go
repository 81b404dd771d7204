package risk

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// TradeRecord is one closed trade as seen by the performance tracker
type TradeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	PnL       float64   `json:"pnl"`
	PnLPct    float64   `json:"pnl_pct"`
}

// Performance is the rolling statistics snapshot
type Performance struct {
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"`
	AvgWinPct    float64 `json:"avg_win_pct"`
	AvgLossPct   float64 `json:"avg_loss_pct"`
	Expectancy   float64 `json:"expectancy"`
	ProfitFactor float64 `json:"profit_factor"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalPnL     float64 `json:"total_pnl"`
}

// annualization factor for daily crypto returns (365-day market)
const annualize = 365.0

// PerformanceTracker keeps closed trades and computes rolling statistics
// over a lookback window. Safe for concurrent use.
type PerformanceTracker struct {
	mu       sync.RWMutex
	trades   []TradeRecord
	lookback time.Duration
	log      zerolog.Logger
}

// NewPerformanceTracker creates a tracker with the given lookback window
func NewPerformanceTracker(lookbackDays int) *PerformanceTracker {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &PerformanceTracker{
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		log:      config.NewLogger("performance"),
	}
}

// Record adds a closed trade
func (t *PerformanceTracker) Record(trade TradeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade)
}

// Outcomes returns the windowed trades as sizer inputs
func (t *PerformanceTracker) Outcomes(now time.Time) []TradeOutcome {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []TradeOutcome
	cutoff := now.Add(-t.lookback)
	for _, trade := range t.trades {
		if trade.Timestamp.After(cutoff) {
			out = append(out, TradeOutcome{PnLPct: trade.PnLPct})
		}
	}
	return out
}

// Snapshot computes the statistics over trades inside the lookback window.
// With no trades it returns zeros except a neutral 0.5 win rate.
func (t *PerformanceTracker) Snapshot(now time.Time) Performance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := now.Add(-t.lookback)
	var window []TradeRecord
	for _, trade := range t.trades {
		if trade.Timestamp.After(cutoff) {
			window = append(window, trade)
		}
	}

	if len(window) == 0 {
		return Performance{WinRate: 0.5}
	}

	var (
		wins, losses []float64
		returns      []float64
		totalPnL     float64
		grossWin     float64
		grossLoss    float64
	)
	for _, trade := range window {
		returns = append(returns, trade.PnLPct)
		totalPnL += trade.PnL
		if trade.PnLPct > 0 {
			wins = append(wins, trade.PnLPct)
			grossWin += trade.PnL
		} else if trade.PnLPct < 0 {
			losses = append(losses, -trade.PnLPct)
			grossLoss += -trade.PnL
		}
	}

	winRate := float64(len(wins)) / float64(len(window))
	avgWin := mean(wins)
	avgLoss := mean(losses)

	perf := Performance{
		Trades:      len(window),
		WinRate:     winRate,
		AvgWinPct:   avgWin,
		AvgLossPct:  avgLoss,
		Expectancy:  winRate*avgWin - (1-winRate)*avgLoss,
		Sharpe:      sharpe(returns),
		Sortino:     sortino(returns),
		MaxDrawdown: maxDrawdown(returns),
		TotalPnL:    totalPnL,
	}

	if grossLoss > 0 {
		perf.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		perf.ProfitFactor = math.Inf(1)
	}

	return perf
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(annualize)
}

func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)

	var downSq float64
	var downN int
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
			downN++
		}
	}
	if downN == 0 {
		return 0
	}
	downside := math.Sqrt(downSq / float64(downN))
	if downside == 0 {
		return 0
	}
	return m / downside * math.Sqrt(annualize)
}

// maxDrawdown is the largest peak-to-trough fall of the cumulative return
// curve, returned as a positive fraction
func maxDrawdown(returns []float64) float64 {
	var cum, peak, maxDD float64
	for _, r := range returns {
		cum += r
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
