// Package indicators provides the technical indicator math consumed by the
// analysis and risk layers. Moving averages and Bollinger Bands come from
// cinar/indicator; ADX, ATR, VWAP and OBV are implemented here.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the simple moving average of the most recent period values.
// Returns NaN when there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMASeries computes the exponential moving average series using
// cinar/indicator. The result is shorter than the input by period-1 values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(in)

	result := make([]float64, 0, len(values))
	for v := range out {
		result = append(result, v)
	}
	return result
}

// EMA returns the latest exponential moving average value, or NaN when there
// is not enough data.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// StdDev returns the sample standard deviation (Bessel's correction)
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if len(values) > 1 {
		variance /= float64(len(values) - 1)
	} else {
		variance /= float64(len(values))
	}

	return math.Sqrt(variance)
}

// Returns computes simple returns from a price series
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	return returns
}

// Volatility returns the sample standard deviation of returns over the most
// recent window bars. Falls back to defaultVol (typically 0.02) when there is
// not enough data to compute it.
func Volatility(closes []float64, window int, defaultVol float64) float64 {
	if len(closes) < window+1 {
		return defaultVol
	}
	returns := Returns(closes[len(closes)-window-1:])
	if len(returns) < 2 {
		return defaultVol
	}
	vol := StdDev(returns)
	if vol == 0 || math.IsNaN(vol) {
		return defaultVol
	}
	return vol
}

// Momentum returns the fractional price change over the last n bars
func Momentum(closes []float64, n int) float64 {
	if len(closes) < n+1 {
		return 0
	}
	prev := closes[len(closes)-n-1]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev
}

// Mean returns the arithmetic mean of a slice, or 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
