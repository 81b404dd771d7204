package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/analysis"
	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/internal/onchain"
	"github.com/pattarak/tradepilot/internal/risk"
)

// Action is the pipeline's trading decision
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionHalt Action = "HALT"
)

// Fallback risk levels used when a decision exits before the risk stage
const (
	fallbackStopLossPct   = 0.02
	fallbackTakeProfitPct = 0.04
	fallbackRiskReward    = 2.0
)

// mtfAlignmentBonus is added to confidence when higher timeframes strongly
// agree
const mtfAlignmentBonus = 0.15

// ModuleResults carries every analyzer's output so a decision can always
// be audited
type ModuleResults struct {
	Regime   analysis.RegimeResult  `json:"regime"`
	MTF      analysis.MTFResult     `json:"mtf"`
	Volume   analysis.VolumeResult  `json:"volume"`
	Patterns analysis.PatternResult `json:"patterns"`
	OnChain  *onchain.Analysis      `json:"onchain,omitempty"`
}

// Recommendation is the pipeline output. Risk fields are always populated,
// falling back to 2% stop and 4% target when the decision exits early.
type Recommendation struct {
	Action         Action        `json:"action"`
	Confidence     float64       `json:"confidence"`
	Reasoning      string        `json:"reasoning"`
	Signal         string        `json:"signal,omitempty"`
	SignalStrength float64       `json:"signal_strength,omitempty"`
	StopLoss       float64       `json:"stop_loss,omitempty"`
	TakeProfit     float64       `json:"take_profit,omitempty"`
	StopLossPct    float64       `json:"stop_loss_pct"`
	TakeProfitPct  float64       `json:"take_profit_pct"`
	RiskReward     float64       `json:"risk_reward"`
	SizeUSD        float64       `json:"size_usd"`
	SizePct        float64       `json:"size_pct"`
	Modules        ModuleResults `json:"modules"`
}

// mtfAnalyzer lets tests stub the multi-timeframe stage
type mtfAnalyzer interface {
	Analyze(ctx context.Context, symbol string) analysis.MTFResult
}

// statsSource supplies recent trade outcomes for Kelly sizing
type statsSource interface {
	Outcomes(now time.Time) []risk.TradeOutcome
}

// Pipeline runs the staged decision flow: regime, multi-timeframe
// alignment, volume, patterns, then risk levels. Early stages can veto the
// later ones.
type Pipeline struct {
	regime   *analysis.RegimeDetector
	mtf      mtfAnalyzer
	volume   *analysis.VolumeAnalyzer
	patterns *analysis.PatternRecognizer
	risk     *risk.DynamicRiskManager
	sizer    *risk.PositionSizer
	stats    statsSource

	// ConfidenceOverride pins the confidence of actionable decisions,
	// used by backtests sweeping confidence thresholds
	ConfidenceOverride *float64

	log zerolog.Logger
}

// NewPipeline assembles the decision pipeline. provider may be nil to
// disable multi-timeframe analysis.
func NewPipeline(provider market.Provider, riskCfg config.RiskConfig, enableMTF bool) *Pipeline {
	p := &Pipeline{
		regime:   analysis.NewRegimeDetector(),
		volume:   analysis.NewVolumeAnalyzer(),
		patterns: analysis.NewPatternRecognizer(),
		risk:     risk.NewDynamicRiskManager(riskCfg),
		sizer:    risk.NewPositionSizer(),
		log:      config.NewLogger("pipeline"),
	}
	if enableMTF && provider != nil {
		p.mtf = analysis.NewMTFAnalyzer(provider)
	}
	return p
}

// SetStatsSource wires the performance tracker that feeds Kelly sizing.
// Without one the sizer falls back to its cold-start floor.
func (p *Pipeline) SetStatsSource(stats statsSource) {
	p.stats = stats
}

// Analyze runs the full decision flow for one symbol. The order book may
// be nil; pattern imbalance then contributes nothing. balance feeds the
// advisory Kelly size; zero disables sizing.
func (p *Pipeline) Analyze(ctx context.Context, symbol string, series market.Series, book *market.OrderBook, balance float64) Recommendation {
	var modules ModuleResults

	if len(series) == 0 {
		return p.exit(ActionHalt, 0, "No market data available", modules)
	}
	price := series.Last().Close

	modules.Regime = p.regime.Detect(series)

	mtfBonus := 0.0
	if p.mtf != nil {
		modules.MTF = p.mtf.Analyze(ctx, symbol)
		if modules.MTF.Alignment == analysis.AlignStrongBullish ||
			modules.MTF.Alignment == analysis.AlignStrongBearish {
			mtfBonus = mtfAlignmentBonus
		}
	}

	modules.Volume = p.volume.Analyze(series)
	if modules.Volume.Score < 0.35 {
		return p.exit(ActionHold, 0.5, "Volume analysis too negative", modules)
	}

	modules.Patterns = p.patterns.Analyze(series, book)

	signal := ""
	strength := 0.0
	switch {
	case modules.Patterns.Detected:
		signal = string(modules.Patterns.Direction) + "_reversal"
		strength = modules.Patterns.Confidence
	case modules.Regime.Regime == analysis.RegimeTrendingUp && modules.Volume.Score >= 0.5:
		signal = "trend_following"
		strength = 0.6
	case modules.Regime.Regime == analysis.RegimeTrendingDown && modules.Volume.Score <= 0.5:
		signal = "trend_following"
		strength = 0.6
	default:
		if modules.Regime.Regime == analysis.RegimeSideways {
			return p.exit(ActionHalt, 0, "Market in SIDEWAYS - Not tradeable", modules)
		}
		return p.exit(ActionHold, 0.4, "No clear patterns detected", modules)
	}

	action, side := ActionBuy, risk.SideBuy
	switch {
	case modules.Regime.Regime == analysis.RegimeTrendingDown:
		action, side = ActionSell, risk.SideSell
	case modules.Regime.Regime == analysis.RegimeSideways:
		// Only pattern-driven mean reversion trades a sideways market
		if modules.Patterns.Direction == analysis.ReversalBearish {
			action, side = ActionSell, risk.SideSell
		}
	}

	levels := p.risk.Compute(series, price, side)

	confidence := 0.7 + (modules.Volume.Score-0.5)*0.4 + mtfBonus
	if confidence < 0 {
		confidence = 0
	} else if confidence > 0.95 {
		confidence = 0.95
	}
	if p.ConfidenceOverride != nil {
		confidence = *p.ConfidenceOverride
	}

	sizeUSD, sizePct := p.size(series, balance, confidence)

	rec := Recommendation{
		Action:         action,
		Confidence:     confidence,
		Reasoning:      "Regime " + string(modules.Regime.Regime) + ", signal " + signal,
		Signal:         signal,
		SignalStrength: strength,
		StopLoss:       levels.StopLoss,
		TakeProfit:     levels.TakeProfit,
		StopLossPct:    levels.StopLossPct,
		TakeProfitPct:  levels.TakeProfitPct,
		RiskReward:     levels.RiskReward,
		SizeUSD:        sizeUSD,
		SizePct:        sizePct,
		Modules:        modules,
	}

	p.log.Debug().
		Str("symbol", symbol).
		Str("action", string(action)).
		Float64("confidence", confidence).
		Str("signal", signal).
		Msg("Pipeline decision")

	return rec
}

// size computes the Kelly-based advisory size for the current balance. The
// outcome window is anchored on the last candle so replays stay
// deterministic.
func (p *Pipeline) size(series market.Series, balance, confidence float64) (sizeUSD, sizePct float64) {
	if balance <= 0 {
		return 0, 0
	}

	var history []risk.TradeOutcome
	if p.stats != nil {
		history = p.stats.Outcomes(series.Last().Timestamp)
	}
	vol := indicators.Volatility(series.Closes(), 20, 0.02)

	sizeUSD = p.sizer.Size(history, balance, vol, confidence)
	return sizeUSD, sizeUSD / balance
}

// exit builds an early-exit recommendation with fallback risk levels and
// whatever module results were produced before the exit
func (p *Pipeline) exit(action Action, confidence float64, reasoning string, modules ModuleResults) Recommendation {
	p.log.Debug().
		Str("action", string(action)).
		Str("reasoning", reasoning).
		Msg("Pipeline early exit")

	return Recommendation{
		Action:        action,
		Confidence:    confidence,
		Reasoning:     reasoning,
		StopLossPct:   fallbackStopLossPct,
		TakeProfitPct: fallbackTakeProfitPct,
		RiskReward:    fallbackRiskReward,
		Modules:       modules,
	}
}
