// Package metrics exposes Prometheus instrumentation for the trading
// engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpenPositions tracks currently held positions per bot
	OpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradepilot_open_positions",
		Help: "Number of currently open positions",
	}, []string{"config_id"})

	// TotalPnL tracks realized profit and loss per bot in quote currency
	TotalPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradepilot_total_pnl",
		Help: "Realized profit and loss in quote currency",
	}, []string{"config_id"})

	// WinRate tracks the rolling win rate per bot
	WinRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradepilot_win_rate",
		Help: "Rolling win rate over the performance lookback window",
	}, []string{"config_id"})

	// MaxDrawdown tracks the rolling maximum drawdown per bot
	MaxDrawdown = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradepilot_max_drawdown",
		Help: "Rolling maximum drawdown as a fraction",
	}, []string{"config_id"})

	// LastPrice tracks the latest observed price per symbol
	LastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradepilot_last_price",
		Help: "Latest observed market price",
	}, []string{"symbol"})

	// TradesTotal counts executed trades by result
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepilot_trades_total",
		Help: "Executed trades by bot and result",
	}, []string{"config_id", "result"})

	// DecisionsTotal counts pipeline decisions by action
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepilot_decisions_total",
		Help: "Pipeline decisions by action",
	}, []string{"config_id", "action"})

	// TickDuration observes the trading loop tick latency
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradepilot_tick_duration_seconds",
		Help:    "Duration of one trading loop tick",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// NormalizeResult bounds the result label to win, loss or flat
func NormalizeResult(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "flat"
	}
}

// NormalizeAction bounds the action label to the known decision set
func NormalizeAction(action string) string {
	switch strings.ToUpper(action) {
	case "BUY", "SELL", "HOLD", "HALT":
		return strings.ToLower(action)
	default:
		return "other"
	}
}
