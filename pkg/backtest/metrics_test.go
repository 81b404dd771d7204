package backtest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattarak/tradepilot/internal/engine"
)

func TestCalculateMetricsKnownScenario(t *testing.T) {
	e := NewEngine(Config{InitialCapital: 10000, FeeRate: 0, SlippageRate: 0, PositionSizeRatio: 0.5})
	series := flatCandles(6, 100)
	series[2].Close = 110
	series[3].Close = 110
	series[4].Close = 90
	series[5].Close = 90
	require.NoError(t, e.LoadData("BTC/USDT", series))

	// Win of +500 then a larger loss
	script := &scriptStrategy{actions: map[int]engine.Action{
		0: engine.ActionBuy,
		2: engine.ActionSell,
		3: engine.ActionBuy,
		4: engine.ActionSell,
	}}
	require.NoError(t, e.Run(script))

	m, err := CalculateMetrics(e)
	require.NoError(t, err)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 50.0, m.WinRate)
	assert.InDelta(t, 500, m.AverageWin, 1e-9)
	assert.InDelta(t, 500, m.LargestWin, 1e-9)

	// Second entry: 5250 at 110 buys 47.7272 units, exited at 90
	loss := 5250.0 / 110.0 * (90 - 110)
	assert.InDelta(t, loss, m.AverageLoss, 1e-6)
	assert.InDelta(t, loss, m.LargestLoss, 1e-6)
	assert.InDelta(t, 500/-loss, m.ProfitFactor, 1e-6)
	assert.InDelta(t, 0.5*500+0.5*loss, m.Expectancy, 1e-6)

	assert.InDelta(t, 10000+500+loss, m.FinalEquity, 1e-6)
	assert.InDelta(t, (500+loss)/10000*100, m.TotalReturnPct, 1e-6)
	assert.Less(t, m.SharpeRatio, 0.0)
	assert.Greater(t, m.MaxDrawdownPct, 0.0)
}

func TestCalculateMetricsNoTrades(t *testing.T) {
	e := NewEngine(DefaultConfig())
	require.NoError(t, e.LoadData("BTC/USDT", flatCandles(5, 100)))
	require.NoError(t, e.Run(&scriptStrategy{actions: map[int]engine.Action{}}))

	m, err := CalculateMetrics(e)
	require.NoError(t, err)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.TotalReturnPct)
}

func TestCalculateMetricsRequiresEquityCurve(t *testing.T) {
	_, err := CalculateMetrics(NewEngine(DefaultConfig()))
	assert.Error(t, err)
}

func TestGenerateReport(t *testing.T) {
	e := NewEngine(Config{InitialCapital: 10000, FeeRate: 0, SlippageRate: 0, PositionSizeRatio: 0.5})
	series := flatCandles(4, 100)
	series[2].Close = 104
	series[3].Close = 104
	require.NoError(t, e.LoadData("BTC/USDT", series))

	script := &scriptStrategy{actions: map[int]engine.Action{0: engine.ActionBuy, 2: engine.ActionSell}}
	require.NoError(t, e.Run(script))

	m, err := CalculateMetrics(e)
	require.NoError(t, err)

	report := GenerateReport(m)
	assert.True(t, strings.Contains(report, "BACKTEST PERFORMANCE REPORT"))
	assert.Contains(t, report, "Initial Capital:  $10000.00")
	assert.Contains(t, report, "Total Trades:     1 (1 wins / 0 losses)")
	assert.Contains(t, report, "Win Rate:         100.00%")
}
