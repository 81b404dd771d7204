package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattarak/tradepilot/internal/analysis"
	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/internal/risk"
)

// uptrendSeries builds n candles climbing by step per bar
func uptrendSeries(n int, start, step float64) market.Series {
	series := make(market.Series, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		close := start + float64(i)*step
		series[i] = market.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close - step*0.8,
			High:      close + step*0.5,
			Low:       close - step*1.2,
			Close:     close,
			Volume:    1000,
		}
	}
	return series
}

// downtrendSeries builds n candles dropping by step per bar
func downtrendSeries(n int, start, step float64) market.Series {
	series := make(market.Series, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		close := start - float64(i)*step
		series[i] = market.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close + step*0.8,
			High:      close + step*1.2,
			Low:       close - step*0.5,
			Close:     close,
			Volume:    1000,
		}
	}
	return series
}

// rangeSeries oscillates around a level with no direction
func rangeSeries(n int, level, amplitude float64) market.Series {
	series := make(market.Series, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		offset := amplitude
		if i%2 == 0 {
			offset = -amplitude
		}
		series[i] = market.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      level - offset,
			High:      level + amplitude*1.5,
			Low:       level - amplitude*1.5,
			Close:     level + offset,
			Volume:    1000,
		}
	}
	return series
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxRiskPerTrade:    0.02,
		ATRMultiplier:      1.5,
		TrailATRMultiplier: 2.5,
		MinConfidence:      0.7,
	}
}

// stubMTF pins the multi-timeframe stage to a fixed result
type stubMTF struct {
	result analysis.MTFResult
}

func (s stubMTF) Analyze(_ context.Context, _ string) analysis.MTFResult {
	return s.result
}

func TestPipelineTrendingUpBuys(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)
	series := uptrendSeries(60, 100, 1)
	price := series.Last().Close

	rec := p.Analyze(context.Background(), "BTC/USDT", series, nil, 10000)

	assert.Equal(t, ActionBuy, rec.Action)
	assert.Equal(t, "trend_following", rec.Signal)
	assert.Equal(t, 0.6, rec.SignalStrength)
	assert.Equal(t, analysis.RegimeTrendingUp, rec.Modules.Regime.Regime)

	// VWAP 1.0, OBV 0.7, spike and trend neutral: score 0.71
	assert.InDelta(t, 0.71, rec.Modules.Volume.Score, 1e-9)
	assert.InDelta(t, 0.784, rec.Confidence, 1e-9)

	assert.Less(t, rec.StopLoss, price)
	assert.Greater(t, rec.TakeProfit, price)
	assert.Equal(t, 2.0, rec.RiskReward)
	assert.InDelta(t, rec.StopLossPct*2, rec.TakeProfitPct, 1e-9)

	// No trade history: the sizer sits at its 0.5% cold-start floor
	assert.InDelta(t, 50.0, rec.SizeUSD, 1e-9)
	assert.InDelta(t, 0.005, rec.SizePct, 1e-9)
}

// stubStats replays a fixed trade history into the sizer
type stubStats struct {
	outcomes []risk.TradeOutcome
}

func (s stubStats) Outcomes(_ time.Time) []risk.TradeOutcome {
	return s.outcomes
}

func TestPipelineKellySizingWithHistory(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	// Six 4% wins against four 2% losses: the Kelly fraction hits the
	// quarter cap, and halved and dampened it still exceeds the 2% risk
	// ceiling
	var history []risk.TradeOutcome
	for i := 0; i < 6; i++ {
		history = append(history, risk.TradeOutcome{PnLPct: 0.04})
	}
	for i := 0; i < 4; i++ {
		history = append(history, risk.TradeOutcome{PnLPct: -0.02})
	}
	p.SetStatsSource(stubStats{outcomes: history})

	rec := p.Analyze(context.Background(), "BTC/USDT", uptrendSeries(60, 100, 1), nil, 10000)

	require.Equal(t, ActionBuy, rec.Action)
	assert.InDelta(t, 200.0, rec.SizeUSD, 1e-9)
	assert.InDelta(t, 0.02, rec.SizePct, 1e-9)
}

func TestPipelineZeroBalanceSkipsSizing(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	rec := p.Analyze(context.Background(), "BTC/USDT", uptrendSeries(60, 100, 1), nil, 0)

	assert.Equal(t, ActionBuy, rec.Action)
	assert.Equal(t, 0.0, rec.SizeUSD)
	assert.Equal(t, 0.0, rec.SizePct)
}

func TestPipelineNegativeVolumeHolds(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	// Price deep below VWAP with falling OBV drags the volume score
	// under the tradeable floor
	rec := p.Analyze(context.Background(), "BTC/USDT", downtrendSeries(60, 200, 1), nil, 10000)

	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.Equal(t, "Volume analysis too negative", rec.Reasoning)
	assert.Less(t, rec.Modules.Volume.Score, 0.35)

	// Early exits still carry usable fallback risk levels
	assert.Equal(t, fallbackStopLossPct, rec.StopLossPct)
	assert.Equal(t, fallbackTakeProfitPct, rec.TakeProfitPct)
	assert.Equal(t, fallbackRiskReward, rec.RiskReward)
}

func TestPipelineSidewaysWithoutPatternsHalts(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	rec := p.Analyze(context.Background(), "BTC/USDT", rangeSeries(60, 100, 0.5), nil, 10000)

	assert.Equal(t, ActionHalt, rec.Action)
	assert.Equal(t, 0.0, rec.Confidence)
	assert.Equal(t, "Market in SIDEWAYS - Not tradeable", rec.Reasoning)
	assert.Equal(t, analysis.RegimeSideways, rec.Modules.Regime.Regime)
	assert.False(t, rec.Modules.Patterns.Detected)
}

func TestPipelineSidewaysBearishReversalSells(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	series := rangeSeries(60, 100, 0.5)
	// Bullish candle engulfed by a bearish one that also closes as a
	// shooting star: two bearish patterns fire a reversal
	series[58] = market.Candle{
		Timestamp: series[58].Timestamp,
		Open:      99.8, High: 100.4, Low: 99.7, Close: 100.3,
		Volume: 1000,
	}
	series[59] = market.Candle{
		Timestamp: series[59].Timestamp,
		Open:      100.5, High: 100.8, Low: 99.65, Close: 99.7,
		Volume: 1000,
	}
	price := series.Last().Close

	rec := p.Analyze(context.Background(), "BTC/USDT", series, nil, 10000)

	require.True(t, rec.Modules.Patterns.Detected)
	assert.Equal(t, analysis.ReversalBearish, rec.Modules.Patterns.Direction)
	assert.Equal(t, 2, rec.Modules.Patterns.BearishCount)

	assert.Equal(t, ActionSell, rec.Action)
	assert.Equal(t, "BEARISH_reversal", rec.Signal)
	assert.InDelta(t, 2.0/3.0, rec.SignalStrength, 1e-9)
	assert.Greater(t, rec.StopLoss, price)
	assert.Less(t, rec.TakeProfit, price)
}

func TestPipelineEmptySeriesHalts(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)

	rec := p.Analyze(context.Background(), "BTC/USDT", market.Series{}, nil, 10000)

	assert.Equal(t, ActionHalt, rec.Action)
	assert.Equal(t, 0.0, rec.Confidence)
	assert.Equal(t, "No market data available", rec.Reasoning)
	assert.Equal(t, fallbackStopLossPct, rec.StopLossPct)
}

func TestPipelineMTFAlignmentBonus(t *testing.T) {
	series := uptrendSeries(60, 100, 1)

	aligned := NewPipeline(nil, testRiskConfig(), false)
	aligned.mtf = stubMTF{result: analysis.MTFResult{Alignment: analysis.AlignStrongBullish, Confidence: 0.8}}

	mixed := NewPipeline(nil, testRiskConfig(), false)
	mixed.mtf = stubMTF{result: analysis.MTFResult{Alignment: analysis.AlignMixed, Confidence: 0.5}}

	withBonus := aligned.Analyze(context.Background(), "BTC/USDT", series, nil, 10000)
	withoutBonus := mixed.Analyze(context.Background(), "BTC/USDT", series, nil, 10000)

	assert.InDelta(t, 0.934, withBonus.Confidence, 1e-9)
	assert.InDelta(t, 0.784, withoutBonus.Confidence, 1e-9)
	assert.InDelta(t, mtfAlignmentBonus, withBonus.Confidence-withoutBonus.Confidence, 1e-9)
}

func TestPipelineConfidenceOverride(t *testing.T) {
	p := NewPipeline(nil, testRiskConfig(), false)
	override := 0.9
	p.ConfidenceOverride = &override

	rec := p.Analyze(context.Background(), "BTC/USDT", uptrendSeries(60, 100, 1), nil, 10000)

	assert.Equal(t, ActionBuy, rec.Action)
	assert.Equal(t, 0.9, rec.Confidence)
}
