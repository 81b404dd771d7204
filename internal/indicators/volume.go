package indicators

import "math"

// VWAP returns the volume-weighted average price over the full series.
// Typical price (H+L+C)/3 weighted by volume. NaN when total volume is zero.
func VWAP(high, low, close, volume []float64) float64 {
	n := len(close)
	if n == 0 || len(high) != n || len(low) != n || len(volume) != n {
		return math.NaN()
	}

	var pvSum, vSum float64
	for i := 0; i < n; i++ {
		typical := (high[i] + low[i] + close[i]) / 3
		pvSum += typical * volume[i]
		vSum += volume[i]
	}
	if vSum == 0 {
		return math.NaN()
	}
	return pvSum / vSum
}

// OBVSeries returns the On-Balance Volume series. Volume is added on up
// closes and subtracted on down closes.
func OBVSeries(close, volume []float64) []float64 {
	n := len(close)
	if n == 0 || len(volume) != n {
		return nil
	}

	obv := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case close[i] > close[i-1]:
			obv[i] = obv[i-1] + volume[i]
		case close[i] < close[i-1]:
			obv[i] = obv[i-1] - volume[i]
		default:
			obv[i] = obv[i-1]
		}
	}
	return obv
}
