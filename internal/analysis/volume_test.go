package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pattarak/tradepilot/internal/market"
)

// volumeSeries builds candles with explicit closes and volumes
func volumeSeries(closes, volumes []float64) market.Series {
	series := make(market.Series, len(closes))
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range closes {
		series[i] = market.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      closes[i] * 0.999,
			High:      closes[i] * 1.002,
			Low:       closes[i] * 0.998,
			Close:     closes[i],
			Volume:    volumes[i],
		}
	}
	return series
}

func TestVolumeAnalyzerBullish(t *testing.T) {
	n := 40
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + float64(i)*0.5
		volumes[i] = 1000 + float64(i)*30
	}
	// Spike on an up close
	volumes[n-1] = 5000

	result := NewVolumeAnalyzer().Analyze(volumeSeries(closes, volumes))

	assert.Greater(t, result.Score, 0.5)
	assert.True(t, result.ShouldTrade)
	assert.Greater(t, result.VWAPScore, 0.5)
	assert.GreaterOrEqual(t, result.OBVScore, 0.6)
	assert.Equal(t, 0.8, result.SpikeScore)
	assert.Equal(t, 0.7, result.TrendScore)
}

func TestVolumeAnalyzerBearish(t *testing.T) {
	n := 40
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 150 - float64(i)*0.5
		volumes[i] = 2500 - float64(i)*40
	}
	// Spike on a down close
	volumes[n-1] = 4000

	result := NewVolumeAnalyzer().Analyze(volumeSeries(closes, volumes))

	assert.Less(t, result.Score, 0.5)
	assert.False(t, result.ShouldTrade)
	assert.Less(t, result.VWAPScore, 0.5)
	assert.LessOrEqual(t, result.OBVScore, 0.4)
	assert.Equal(t, 0.3, result.SpikeScore)
	assert.LessOrEqual(t, result.TrendScore, 0.45)
}

func TestVolumeAnalyzerEmptySeriesIsNeutral(t *testing.T) {
	result := NewVolumeAnalyzer().Analyze(market.Series{})

	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.Equal(t, VolumeNeutral, result.Signal)
	assert.True(t, result.ShouldTrade)
}

func TestVolumeAnalyzerShortSeriesSubScoresDegrade(t *testing.T) {
	closes := []float64{100, 101, 102}
	volumes := []float64{1000, 1100, 1200}

	result := NewVolumeAnalyzer().Analyze(volumeSeries(closes, volumes))

	// VWAP still computes; the lookback-dependent sub-scores stay neutral
	assert.Equal(t, 0.5, result.OBVScore)
	assert.Equal(t, 0.5, result.SpikeScore)
	assert.Equal(t, 0.5, result.TrendScore)
}
