package backtest

import (
	"fmt"
	"strings"
)

// GenerateReport renders a human-readable performance summary
func GenerateReport(m *Metrics) string {
	var b strings.Builder
	line := strings.Repeat("=", 64)

	fmt.Fprintf(&b, "%s\nBACKTEST PERFORMANCE REPORT\n%s\n\n", line, line)
	fmt.Fprintf(&b, "Period:           %s to %s (%.0f days)\n",
		m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"), m.Duration.Hours()/24)
	fmt.Fprintf(&b, "Initial Capital:  $%.2f\n", m.InitialCapital)
	fmt.Fprintf(&b, "Final Equity:     $%.2f\n\n", m.FinalEquity)

	fmt.Fprintf(&b, "Total Return:     $%.2f (%.2f%%)\n", m.TotalReturn, m.TotalReturnPct)
	fmt.Fprintf(&b, "Max Drawdown:     %.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(&b, "Sharpe Ratio:     %.2f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "Sortino Ratio:    %.2f\n\n", m.SortinoRatio)

	fmt.Fprintf(&b, "Total Trades:     %d (%d wins / %d losses)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(&b, "Win Rate:         %.2f%%\n", m.WinRate)
	fmt.Fprintf(&b, "Average Win:      $%.2f\n", m.AverageWin)
	fmt.Fprintf(&b, "Average Loss:     $%.2f\n", m.AverageLoss)
	fmt.Fprintf(&b, "Largest Win:      $%.2f\n", m.LargestWin)
	fmt.Fprintf(&b, "Largest Loss:     $%.2f\n", m.LargestLoss)
	if m.TotalTrades > 0 {
		fmt.Fprintf(&b, "Profit Factor:    %.2f\n", m.ProfitFactor)
		fmt.Fprintf(&b, "Expectancy:       $%.2f per trade\n", m.Expectancy)
	}
	fmt.Fprintf(&b, "%s\n", line)

	return b.String()
}
