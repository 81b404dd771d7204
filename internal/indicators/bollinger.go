package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/volatility"
)

// BollingerWidth returns the latest normalized Bollinger Band width
// (upper - lower) / middle using cinar/indicator's 20-period, 2-sigma bands.
// Returns NaN when there is not enough data.
func BollingerWidth(closes []float64) float64 {
	bb := volatility.NewBollingerBands[float64]()
	if len(closes) < bb.IdlePeriod()+1 {
		return math.NaN()
	}

	in := make(chan float64, len(closes))
	for _, v := range closes {
		in <- v
	}
	close(in)

	upperChan, middleChan, lowerChan := bb.Compute(in)

	var upper, middle, lower float64
	ok := false
	for u := range upperChan {
		upper = u
		middle = <-middleChan
		lower = <-lowerChan
		ok = true
	}

	if !ok || middle == 0 {
		return math.NaN()
	}
	return (upper - lower) / middle
}
