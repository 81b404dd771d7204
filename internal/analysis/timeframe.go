package analysis

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
)

// TrendDirection is the per-timeframe trend classification
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// Alignment is the aggregate multi-timeframe classification
type Alignment string

const (
	AlignStrongBullish Alignment = "STRONG_BULLISH"
	AlignWeakBullish   Alignment = "WEAK_BULLISH"
	AlignStrongBearish Alignment = "STRONG_BEARISH"
	AlignWeakBearish   Alignment = "WEAK_BEARISH"
	AlignMixed         Alignment = "MIXED"
)

// timeframeWeights are fixed: higher timeframes carry more weight
var timeframeWeights = map[string]float64{
	"5m":  0.10,
	"15m": 0.15,
	"1h":  0.25,
	"4h":  0.25,
	"1d":  0.25,
}

// analysisTimeframes in fetch order
var analysisTimeframes = []string{"5m", "15m", "1h", "4h", "1d"}

// mtfCandleLimit gives EMA50 room plus momentum lookback
const mtfCandleLimit = 60

// TimeframeSignal is the per-timeframe analysis result
type TimeframeSignal struct {
	Timeframe string         `json:"timeframe"`
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"` // 0..1, 0.5 = neutral
}

// MTFResult is the aggregate multi-timeframe analysis output
type MTFResult struct {
	Alignment    Alignment         `json:"alignment"`
	Confidence   float64           `json:"confidence"`
	BullishScore float64           `json:"bullish_score"`
	BearishScore float64           `json:"bearish_score"`
	Signals      []TimeframeSignal `json:"signals"`
}

// MTFAnalyzer scores trend alignment across five timeframes with weighted
// triple-EMA analysis. A per-timeframe fetch failure contributes a neutral
// signal and never aborts the aggregate.
type MTFAnalyzer struct {
	provider market.Provider
	log      zerolog.Logger
}

// NewMTFAnalyzer creates a new multi-timeframe analyzer
func NewMTFAnalyzer(provider market.Provider) *MTFAnalyzer {
	return &MTFAnalyzer{
		provider: provider,
		log:      config.NewLogger("mtf"),
	}
}

// Analyze fetches all timeframes concurrently and aggregates their signals
func (a *MTFAnalyzer) Analyze(ctx context.Context, symbol string) MTFResult {
	signals := make([]TimeframeSignal, len(analysisTimeframes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range analysisTimeframes {
		g.Go(func() error {
			signal := a.analyzeTimeframe(gctx, symbol, tf)
			mu.Lock()
			signals[i] = signal
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures degrade to neutral signals
	_ = g.Wait()

	return a.aggregate(signals)
}

// analyzeTimeframe computes the triple-EMA trend signal for one timeframe
func (a *MTFAnalyzer) analyzeTimeframe(ctx context.Context, symbol, timeframe string) TimeframeSignal {
	neutral := TimeframeSignal{Timeframe: timeframe, Direction: TrendNeutral, Strength: 0.5}

	series, err := a.provider.FetchOHLCV(ctx, symbol, timeframe, mtfCandleLimit)
	if err != nil || len(series) < 51 {
		if err != nil {
			a.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("timeframe", timeframe).
				Msg("Timeframe fetch failed, treating as neutral")
		}
		return neutral
	}

	closes := series.Closes()
	price := closes[len(closes)-1]
	if price <= 0 {
		return neutral
	}

	ema9 := indicators.EMA(closes, 9)
	ema21 := indicators.EMA(closes, 21)
	ema50 := indicators.EMA(closes, 50)
	if math.IsNaN(ema9) || math.IsNaN(ema21) || math.IsNaN(ema50) {
		return neutral
	}

	var direction TrendDirection
	switch {
	case ema9 > ema21 && ema21 > ema50 && price > ema9:
		direction = TrendBullish
	case ema9 < ema21 && ema21 < ema50 && price < ema9:
		direction = TrendBearish
	default:
		direction = TrendNeutral
	}

	if direction == TrendNeutral {
		return neutral
	}

	// Strength mixes EMA spread with 10-bar momentum, both capped at 1
	emaStrength := math.Min(1, math.Abs(ema9-ema50)/price*50)
	momentum := math.Min(1, math.Abs(indicators.Momentum(closes, 10))*10)
	combined := (emaStrength + momentum) / 2

	strength := 0.5 + combined/2
	if direction == TrendBearish {
		strength = 0.5 - combined/2
	}

	return TimeframeSignal{Timeframe: timeframe, Direction: direction, Strength: strength}
}

// aggregate combines per-timeframe signals into the weighted alignment score
func (a *MTFAnalyzer) aggregate(signals []TimeframeSignal) MTFResult {
	var bullish, bearish, neutralWeight float64

	for _, s := range signals {
		w := timeframeWeights[s.Timeframe]
		switch s.Direction {
		case TrendBullish:
			bullish += w * s.Strength
		case TrendBearish:
			bearish += w * (1 - s.Strength)
		default:
			neutralWeight += w
		}
	}

	// Normalize so fully-neutral timeframes do not dilute the decisive ones
	if neutralWeight < 1 {
		bullish /= 1 - neutralWeight
		bearish /= 1 - neutralWeight
	}

	result := MTFResult{
		BullishScore: bullish,
		BearishScore: bearish,
		Signals:      signals,
	}

	switch {
	case bullish > 0.7:
		result.Alignment = AlignStrongBullish
		result.Confidence = bullish
	case bullish > 0.5:
		result.Alignment = AlignWeakBullish
		result.Confidence = bullish * 0.8
	case bearish > 0.7:
		result.Alignment = AlignStrongBearish
		result.Confidence = bearish
	case bearish > 0.5:
		result.Alignment = AlignWeakBearish
		result.Confidence = bearish * 0.8
	default:
		result.Alignment = AlignMixed
		result.Confidence = 0.5
	}

	a.log.Debug().
		Str("alignment", string(result.Alignment)).
		Float64("bullish", bullish).
		Float64("bearish", bearish).
		Msg("Multi-timeframe aggregate")

	return result
}
