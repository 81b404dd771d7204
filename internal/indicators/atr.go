package indicators

import "math"

// ATR calculates the Average True Range over the most recent period bars.
// When there is too little data for a true range calculation it falls back
// to the mean high-low range, then to 1% of the last close, so callers
// always get a usable positive distance.
func ATR(high, low, close []float64, period int) float64 {
	n := len(close)
	if period < 1 || len(high) != n || len(low) != n {
		return 0
	}

	if n >= period+1 {
		trSum := 0.0
		for i := n - period; i < n; i++ {
			tr := math.Max(high[i]-low[i],
				math.Max(math.Abs(high[i]-close[i-1]),
					math.Abs(low[i]-close[i-1])))
			trSum += tr
		}
		atr := trSum / float64(period)
		if atr > 0 && !math.IsNaN(atr) {
			return atr
		}
	}

	// Fallback: mean candle range over whatever we have
	if n > 0 {
		rangeSum := 0.0
		for i := 0; i < n; i++ {
			rangeSum += high[i] - low[i]
		}
		atr := rangeSum / float64(n)
		if atr > 0 && !math.IsNaN(atr) {
			return atr
		}
		// Last resort: 1% of price
		return close[n-1] * 0.01
	}

	return 0
}

// SwingLow returns the lowest low over the most recent lookback bars
func SwingLow(low []float64, lookback int) float64 {
	if len(low) == 0 {
		return math.NaN()
	}
	start := len(low) - lookback
	if start < 0 {
		start = 0
	}
	min := low[start]
	for _, v := range low[start:] {
		if v < min {
			min = v
		}
	}
	return min
}

// SwingHigh returns the highest high over the most recent lookback bars
func SwingHigh(high []float64, lookback int) float64 {
	if len(high) == 0 {
		return math.NaN()
	}
	start := len(high) - lookback
	if start < 0 {
		start = 0
	}
	max := high[start]
	for _, v := range high[start:] {
		if v > max {
			max = v
		}
	}
	return max
}
