// Package analysis contains the decision pipeline's analytical stages:
// regime detection, multi-timeframe alignment, volume scoring and
// candlestick pattern recognition.
package analysis

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
)

// Regime is the categorical market state
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeSideways     Regime = "SIDEWAYS"
)

// Default substitutions for indicator values that cannot be computed.
// ADX 25 sits in the "trending but not strongly" band so the MA ratio
// decides; MA ratio 1 is neutral.
const (
	defaultADX     = 25.0
	defaultMARatio = 1.0
	defaultBBWidth = 0.02
)

// maRatioDeadBand is the 2% dead band around 1.0 inside which the market
// counts as sideways when ADX is inconclusive.
const maRatioDeadBand = 0.02

// RegimeResult is the regime detector output
type RegimeResult struct {
	Regime             Regime  `json:"regime"`
	Confidence         float64 `json:"confidence"`
	ADX                float64 `json:"adx"`
	MARatio            float64 `json:"ma_ratio"`
	BBWidth            float64 `json:"bb_width"`
	AllowMeanReversion bool    `json:"allow_mean_reversion"`
}

// RegimeDetector classifies the market as trending or sideways using a
// rule-based ADX + moving-average filter.
type RegimeDetector struct {
	log zerolog.Logger
}

// NewRegimeDetector creates a new regime detector
func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{log: config.NewLogger("regime")}
}

// Detect classifies the regime from a candle series. Degenerate indicator
// values are replaced with neutral defaults so detection never fails.
func (d *RegimeDetector) Detect(series market.Series) RegimeResult {
	closes := series.Closes()

	adx := indicators.ADX(series.Highs(), series.Lows(), closes, 14)
	if adx == 0 || math.IsNaN(adx) {
		adx = defaultADX
	}

	maRatio := defaultMARatio
	sma20 := indicators.SMA(closes, 20)
	sma50 := indicators.SMA(closes, 50)
	if !math.IsNaN(sma20) && !math.IsNaN(sma50) && sma50 != 0 {
		maRatio = sma20 / sma50
	}

	bbWidth := indicators.BollingerWidth(closes)
	if math.IsNaN(bbWidth) {
		bbWidth = defaultBBWidth
	}

	var regime Regime
	switch {
	case adx < 20:
		regime = RegimeSideways
	case adx > 40:
		if maRatio > 1 {
			regime = RegimeTrendingUp
		} else {
			regime = RegimeTrendingDown
		}
	default:
		if math.Abs(maRatio-1) < maRatioDeadBand {
			regime = RegimeSideways
		} else if maRatio > 1 {
			regime = RegimeTrendingUp
		} else {
			regime = RegimeTrendingDown
		}
	}

	result := RegimeResult{
		Regime:             regime,
		Confidence:         0.7,
		ADX:                adx,
		MARatio:            maRatio,
		BBWidth:            bbWidth,
		AllowMeanReversion: regime == RegimeSideways,
	}

	d.log.Debug().
		Str("regime", string(regime)).
		Float64("adx", adx).
		Float64("ma_ratio", maRatio).
		Float64("bb_width", bbWidth).
		Msg("Regime detected")

	return result
}
