package indicators

import "math"

// ADX calculates the Average Directional Index over high/low/close series.
// ADX is not available in cinar/indicator v2, so we implement it with
// Wilder's smoothing. Returns 0 when there is not enough data
// (callers substitute their own neutral default).
func ADX(high, low, close []float64, period int) float64 {
	n := len(close)
	if period < 1 || len(high) != n || len(low) != n || n < period*2 {
		return 0
	}

	// True Range, +DM, -DM
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] != 0 {
			plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
			minusDI := 100 * smoothMinusDM[i] / smoothTR[i]

			diSum := plusDI + minusDI
			if diSum != 0 {
				dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
			}
		}
	}

	adxValues := smoothWilder(dx, period)
	return adxValues[n-1]
}

// smoothWilder applies Wilder's smoothing method
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)

	if n < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}

	return result
}
