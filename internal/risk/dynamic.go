// Package risk holds position risk management: ATR-based stop levels, the
// adaptive trailing stop, Kelly position sizing, the rolling performance
// tracker and the fee protection gate.
package risk

import (
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
)

// Side is the direction of a position
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Levels are the computed stop loss and take profit for an entry
type Levels struct {
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	RiskReward    float64 `json:"risk_reward"`
	ATR           float64 `json:"atr"`
	Volatility    float64 `json:"volatility"`
}

const (
	atrPeriod  = 14
	volWindow  = 20
	defaultVol = 0.02
	// Take profit sits at twice the stop distance
	riskRewardRatio = 2.0
)

// DynamicRiskManager derives stop loss and take profit from ATR scaled by
// recent volatility. Wider markets get wider stops.
type DynamicRiskManager struct {
	atrMultiplier float64
	log           zerolog.Logger
}

// NewDynamicRiskManager creates a risk manager with the configured ATR
// multiplier (1.5 by default)
func NewDynamicRiskManager(cfg config.RiskConfig) *DynamicRiskManager {
	return &DynamicRiskManager{
		atrMultiplier: cfg.ATRMultiplier,
		log:           config.NewLogger("risk"),
	}
}

// Compute returns the levels for entering at entryPrice in the given
// direction. The series provides the ATR and volatility context; degenerate
// inputs fall back to an ATR of 1% of price and volatility of 2%.
func (m *DynamicRiskManager) Compute(series market.Series, entryPrice float64, side Side) Levels {
	closes := series.Closes()

	atr := indicators.ATR(series.Highs(), series.Lows(), closes, atrPeriod)
	if atr <= 0 {
		atr = entryPrice * 0.01
	}

	vol := indicators.Volatility(closes, volWindow, defaultVol)

	volMult := vol / defaultVol
	if volMult < 1 {
		volMult = 1
	} else if volMult > 3 {
		volMult = 3
	}

	slDistance := atr * m.atrMultiplier * volMult
	tpDistance := slDistance * riskRewardRatio

	levels := Levels{
		RiskReward: riskRewardRatio,
		ATR:        atr,
		Volatility: vol,
	}

	if side == SideSell {
		levels.StopLoss = entryPrice + slDistance
		levels.TakeProfit = entryPrice - tpDistance
	} else {
		levels.StopLoss = entryPrice - slDistance
		levels.TakeProfit = entryPrice + tpDistance
	}

	if entryPrice > 0 {
		levels.StopLossPct = slDistance / entryPrice
		levels.TakeProfitPct = tpDistance / entryPrice
	}

	m.log.Debug().
		Float64("entry", entryPrice).
		Float64("stop_loss", levels.StopLoss).
		Float64("take_profit", levels.TakeProfit).
		Float64("atr", atr).
		Float64("vol_mult", volMult).
		Msg("Risk levels computed")

	return levels
}
