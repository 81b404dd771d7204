package analysis

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
)

// VolumeSignal is the categorical volume interpretation
type VolumeSignal string

const (
	VolumeStrongBullish VolumeSignal = "STRONG_BULLISH"
	VolumeBullish       VolumeSignal = "BULLISH"
	VolumeNeutral       VolumeSignal = "NEUTRAL"
	VolumeBearish       VolumeSignal = "BEARISH"
	VolumeStrongBearish VolumeSignal = "STRONG_BEARISH"
)

// VolumeResult is the volume analyzer output. Score and all sub-scores are
// in [0,1] with 0.5 neutral.
type VolumeResult struct {
	Score       float64      `json:"score"`
	Signal      VolumeSignal `json:"signal"`
	VWAPScore   float64      `json:"vwap_score"`
	OBVScore    float64      `json:"obv_score"`
	SpikeScore  float64      `json:"spike_score"`
	TrendScore  float64      `json:"trend_score"`
	ShouldTrade bool         `json:"should_trade"`
}

// Sub-score weights
const (
	vwapWeight  = 0.30
	obvWeight   = 0.30
	spikeWeight = 0.20
	trendWeight = 0.20
)

// VolumeAnalyzer condenses VWAP position, OBV momentum, volume spikes and
// volume trend into a single tradeability score.
type VolumeAnalyzer struct {
	log zerolog.Logger
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer() *VolumeAnalyzer {
	return &VolumeAnalyzer{log: config.NewLogger("volume")}
}

// Analyze scores the series. Sub-scores degrade to 0.5 (neutral) when their
// inputs cannot be computed.
func (a *VolumeAnalyzer) Analyze(series market.Series) VolumeResult {
	closes := series.Closes()
	volumes := series.Volumes()

	vwapScore := a.vwapScore(series, closes)
	obvScore := a.obvScore(closes, volumes)
	spikeScore := a.spikeScore(closes, volumes)
	trendScore := a.trendScore(volumes)

	score := vwapWeight*vwapScore + obvWeight*obvScore +
		spikeWeight*spikeScore + trendWeight*trendScore

	var signal VolumeSignal
	switch {
	case score > 0.65:
		signal = VolumeStrongBullish
	case score > 0.50:
		signal = VolumeBullish
	case score < 0.35:
		signal = VolumeStrongBearish
	case score < 0.50:
		signal = VolumeBearish
	default:
		signal = VolumeNeutral
	}

	result := VolumeResult{
		Score:       score,
		Signal:      signal,
		VWAPScore:   vwapScore,
		OBVScore:    obvScore,
		SpikeScore:  spikeScore,
		TrendScore:  trendScore,
		ShouldTrade: score >= 0.50,
	}

	a.log.Debug().
		Float64("score", score).
		Str("signal", string(signal)).
		Bool("should_trade", result.ShouldTrade).
		Msg("Volume analyzed")

	return result
}

// vwapScore rewards price trading above VWAP proportionally to the distance
func (a *VolumeAnalyzer) vwapScore(series market.Series, closes []float64) float64 {
	if len(closes) == 0 {
		return 0.5
	}

	vwap := indicators.VWAP(series.Highs(), series.Lows(), closes, series.Volumes())
	if math.IsNaN(vwap) || vwap == 0 {
		return 0.5
	}

	price := closes[len(closes)-1]
	delta := (price - vwap) / vwap

	if delta >= 0 {
		return 0.5 + math.Min(0.5, delta*50)
	}
	return 0.5 - math.Min(0.5, -delta*50)
}

// obvScore buckets the 20-bar OBV change
func (a *VolumeAnalyzer) obvScore(closes, volumes []float64) float64 {
	obv := indicators.OBVSeries(closes, volumes)
	if len(obv) < 21 {
		return 0.5
	}

	prev := obv[len(obv)-21]
	if prev == 0 {
		return 0.5
	}
	change := (obv[len(obv)-1] - prev) / math.Abs(prev)

	switch {
	case change > 0.10:
		return 0.7
	case change > 0:
		return 0.6
	case change < -0.10:
		return 0.3
	case change < 0:
		return 0.4
	default:
		return 0.5
	}
}

// spikeScore compares the last volume against its 20-bar average, signed by
// the direction of the last close
func (a *VolumeAnalyzer) spikeScore(closes, volumes []float64) float64 {
	if len(volumes) < 21 || len(closes) < 2 {
		return 0.5
	}

	avg := indicators.SMA(volumes[:len(volumes)-1], 20)
	if math.IsNaN(avg) || avg == 0 {
		return 0.5
	}

	ratio := volumes[len(volumes)-1] / avg
	priceUp := closes[len(closes)-1] > closes[len(closes)-2]

	switch {
	case ratio > 2.0 && priceUp:
		return 0.8
	case ratio > 2.0:
		return 0.3
	case ratio > 1.5 && priceUp:
		return 0.65
	case ratio > 1.5:
		return 0.4
	default:
		return 0.5
	}
}

// trendScore compares the mean of the last 10 volumes against the prior 20
func (a *VolumeAnalyzer) trendScore(volumes []float64) float64 {
	if len(volumes) < 30 {
		return 0.5
	}

	recent := indicators.Mean(volumes[len(volumes)-10:])
	prior := indicators.Mean(volumes[len(volumes)-30 : len(volumes)-10])
	if prior == 0 {
		return 0.5
	}
	change := (recent - prior) / prior

	switch {
	case change > 0.2:
		return 0.7
	case change > 0:
		return 0.6
	case change < -0.2:
		return 0.4
	case change < 0:
		return 0.45
	default:
		return 0.5
	}
}
