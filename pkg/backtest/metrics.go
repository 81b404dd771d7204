package backtest

import (
	"fmt"
	"math"
	"time"
)

// annualizeFactor converts per-bar statistics to annual ones using the
// daily-bar convention
const annualizeFactor = 252.0

// Metrics holds the performance summary of a completed backtest
type Metrics struct {
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`

	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	Duration       time.Duration `json:"duration"`
}

// CalculateMetrics summarizes a completed run
func CalculateMetrics(e *Engine) (*Metrics, error) {
	if len(e.EquityCurve) == 0 {
		return nil, fmt.Errorf("no equity curve data")
	}

	m := &Metrics{
		InitialCapital: e.cfg.InitialCapital,
		FinalEquity:    e.Equity(),
		MaxDrawdownPct: e.maxDrawdownPct,
		StartDate:      e.EquityCurve[0].Timestamp,
		EndDate:        e.EquityCurve[len(e.EquityCurve)-1].Timestamp,
	}
	m.Duration = m.EndDate.Sub(m.StartDate)
	m.TotalReturn = m.FinalEquity - m.InitialCapital
	m.TotalReturnPct = m.TotalReturn / m.InitialCapital * 100

	tradeStatistics(m, e.ClosedPositions)
	riskRatios(m, e.EquityCurve)

	return m, nil
}

func tradeStatistics(m *Metrics, positions []ClosedPosition) {
	var totalWin, totalLoss float64
	for _, pos := range positions {
		if pos.RealizedPL > 0 {
			m.WinningTrades++
			totalWin += pos.RealizedPL
			if pos.RealizedPL > m.LargestWin {
				m.LargestWin = pos.RealizedPL
			}
		} else {
			m.LosingTrades++
			totalLoss += pos.RealizedPL
			if pos.RealizedPL < m.LargestLoss {
				m.LargestLoss = pos.RealizedPL
			}
		}
	}

	m.TotalTrades = len(positions)
	if m.TotalTrades == 0 {
		return
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.WinningTrades > 0 {
		m.AverageWin = totalWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = totalLoss / float64(m.LosingTrades)
	}
	if totalLoss != 0 {
		m.ProfitFactor = totalWin / math.Abs(totalLoss)
	} else if totalWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	winProb := float64(m.WinningTrades) / float64(m.TotalTrades)
	lossProb := float64(m.LosingTrades) / float64(m.TotalTrades)
	m.Expectancy = winProb*m.AverageWin + lossProb*m.AverageLoss
}

// riskRatios computes Sharpe and Sortino from per-bar equity returns,
// annualized with the daily convention and a zero risk-free rate
func riskRatios(m *Metrics, curve []EquityPoint) {
	if len(curve) < 2 {
		return
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance, downside float64
	downsideCount := 0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
		if r < 0 {
			downside += r * r
			downsideCount++
		}
	}
	variance /= float64(len(returns))

	if stdDev := math.Sqrt(variance); stdDev > 0 {
		m.SharpeRatio = mean / stdDev * math.Sqrt(annualizeFactor)
	}
	if downsideCount > 0 {
		downsideDev := math.Sqrt(downside / float64(downsideCount))
		if downsideDev > 0 {
			m.SortinoRatio = mean / downsideDev * math.Sqrt(annualizeFactor)
		}
	}
}
