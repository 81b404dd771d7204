package risk

import (
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

const (
	// Kelly caps: raw fraction clamped to a quarter, then halved
	kellyCap     = 0.25
	maxFraction  = 0.02
	minFraction  = 0.005
	assumedLoss  = 0.02
	assumedRatio = 2.0
)

// TradeOutcome is one closed trade's return, as a fraction of the position
type TradeOutcome struct {
	PnLPct float64
}

// PositionSizer sizes entries with a half-Kelly fraction dampened by
// volatility and signal confidence. The fraction is capped at 2% of balance
// and floored at 0.5% so a cold start still trades.
type PositionSizer struct {
	log zerolog.Logger
}

// NewPositionSizer creates a position sizer
func NewPositionSizer() *PositionSizer {
	return &PositionSizer{log: config.NewLogger("sizer")}
}

// Size returns the position size in quote currency for the given balance.
// history carries recent closed trades; volatility is the recent returns
// stddev; confidence is the signal confidence in [0,1].
func (s *PositionSizer) Size(history []TradeOutcome, balance, volatility, confidence float64) float64 {
	if balance <= 0 {
		return 0
	}

	fraction := s.fraction(history, volatility, confidence)

	size := balance * fraction
	if floor := balance * minFraction; size < floor {
		size = floor
	}

	s.log.Debug().
		Float64("balance", balance).
		Float64("fraction", fraction).
		Float64("size", size).
		Msg("Position sized")

	return size
}

func (s *PositionSizer) fraction(history []TradeOutcome, volatility, confidence float64) float64 {
	var wins, losses []float64
	for _, trade := range history {
		if trade.PnLPct > 0 {
			wins = append(wins, trade.PnLPct)
		} else if trade.PnLPct < 0 {
			losses = append(losses, -trade.PnLPct)
		}
	}

	total := len(wins) + len(losses)
	if total == 0 {
		return minFraction
	}

	p := float64(len(wins)) / float64(total)
	q := 1 - p

	b := assumedRatio
	if len(losses) > 0 {
		avgWin := mean(wins)
		avgLoss := mean(losses)
		if avgLoss == 0 {
			avgLoss = assumedLoss
		}
		b = avgWin / avgLoss
	}
	if b <= 0 {
		return minFraction
	}

	kelly := (p*b - q) / b
	if kelly < 0 {
		kelly = 0
	} else if kelly > kellyCap {
		kelly = kellyCap
	}
	halfKelly := kelly / 2

	volDivisor := volatility
	if volDivisor < 0.01 {
		volDivisor = 0.01
	}
	volMult := assumedLoss / volDivisor
	if volMult < 0.3 {
		volMult = 0.3
	} else if volMult > 1.0 {
		volMult = 1.0
	}

	confMult := confidence
	if confMult < 0.5 {
		confMult = 0.5
	}

	fraction := halfKelly * volMult * confMult
	if fraction > maxFraction {
		fraction = maxFraction
	}
	return fraction
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
