package risk

import (
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/indicators"
	"github.com/pattarak/tradepilot/internal/market"
)

const (
	swingLookback = 10
	// Buffers beyond the swing level and the hard floor below entry
	swingBuffer  = 0.002
	maxLossFloor = 0.03
)

// AdaptiveStopLoss is a trailing stop that ratchets with the trade. For a
// long it takes the tightest of three candidates that only ever moves up:
// a chandelier stop below the highest price seen, the recent swing low with
// a small buffer, and a hard 3% floor below entry. Shorts are symmetric.
type AdaptiveStopLoss struct {
	side       Side
	entryPrice float64
	multiplier float64
	extreme    float64
	active     float64
	log        zerolog.Logger
}

// NewAdaptiveStopLoss opens a trailing stop for a position entered at
// entryPrice. multiplier is the chandelier ATR multiplier (2.5 by default).
func NewAdaptiveStopLoss(side Side, entryPrice, multiplier float64) *AdaptiveStopLoss {
	s := &AdaptiveStopLoss{
		side:       side,
		entryPrice: entryPrice,
		multiplier: multiplier,
		extreme:    entryPrice,
		log:        config.NewLogger("stoploss"),
	}
	if side == SideSell {
		s.active = entryPrice * (1 + maxLossFloor)
	} else {
		s.active = entryPrice * (1 - maxLossFloor)
	}
	return s
}

// Update advances the stop with the latest candles and returns the active
// stop price. The stop is monotone: it never widens.
func (s *AdaptiveStopLoss) Update(series market.Series) float64 {
	if len(series) == 0 {
		return s.active
	}

	price := series.Last().Close
	atr := indicators.ATR(series.Highs(), series.Lows(), series.Closes(), atrPeriod)
	if atr <= 0 {
		atr = price * 0.01
	}

	if s.side == SideSell {
		if price < s.extreme {
			s.extreme = price
		}
		chandelier := s.extreme + s.multiplier*atr
		swing := indicators.SwingHigh(series.Highs(), swingLookback) * (1 + swingBuffer)
		floor := s.entryPrice * (1 + maxLossFloor)

		candidate := min3(chandelier, swing, floor)
		if candidate < s.active {
			s.active = candidate
		}
	} else {
		if price > s.extreme {
			s.extreme = price
		}
		chandelier := s.extreme - s.multiplier*atr
		swing := indicators.SwingLow(series.Lows(), swingLookback) * (1 - swingBuffer)
		floor := s.entryPrice * (1 - maxLossFloor)

		candidate := max3(chandelier, swing, floor)
		if candidate > s.active {
			s.active = candidate
		}
	}

	return s.active
}

// Stop returns the current active stop price
func (s *AdaptiveStopLoss) Stop() float64 {
	return s.active
}

// ShouldExit reports whether price has crossed the stop
func (s *AdaptiveStopLoss) ShouldExit(price float64) bool {
	if s.side == SideSell {
		return price >= s.active
	}
	return price <= s.active
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
