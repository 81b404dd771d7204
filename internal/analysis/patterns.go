package analysis

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/market"
)

// Pattern names as emitted in results
const (
	PatternHammer       = "hammer"
	PatternBullEngulf   = "bullish_engulfing"
	PatternMorningStar  = "morning_star"
	PatternShootingStar = "shooting_star"
	PatternBearEngulf   = "bearish_engulfing"
	PatternEveningStar  = "evening_star"
)

// ReversalDirection is the direction of a detected reversal setup
type ReversalDirection string

const (
	ReversalBullish ReversalDirection = "BULLISH"
	ReversalBearish ReversalDirection = "BEARISH"
	ReversalNone    ReversalDirection = "NONE"
)

// PatternResult is the pattern recognizer output
type PatternResult struct {
	Patterns     map[string]bool   `json:"patterns"`
	BullishCount int               `json:"bullish_count"`
	BearishCount int               `json:"bearish_count"`
	Imbalance    float64           `json:"imbalance"` // order book, [-1,1]
	Detected     bool              `json:"detected"`
	Direction    ReversalDirection `json:"direction"`
	Confidence   float64           `json:"confidence"`
}

// imbalanceDepth is how many book levels per side feed the imbalance
const imbalanceDepth = 10

// imbalanceThreshold lets a single pattern fire a reversal when the book
// leans the same way
const imbalanceThreshold = 0.3

// PatternRecognizer detects candlestick reversal patterns on the most recent
// candles and combines them with order book imbalance.
type PatternRecognizer struct {
	log zerolog.Logger
}

// NewPatternRecognizer creates a new pattern recognizer
func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{log: config.NewLogger("patterns")}
}

// Analyze detects patterns on the series tail. The order book may be nil or
// empty; imbalance then contributes zero.
func (r *PatternRecognizer) Analyze(series market.Series, book *market.OrderBook) PatternResult {
	patterns := map[string]bool{
		PatternHammer:       false,
		PatternBullEngulf:   false,
		PatternMorningStar:  false,
		PatternShootingStar: false,
		PatternBearEngulf:   false,
		PatternEveningStar:  false,
	}

	if len(series) >= 1 {
		last := series.Last()
		patterns[PatternHammer] = isHammer(last)
		patterns[PatternShootingStar] = isShootingStar(last)
	}
	if len(series) >= 2 {
		prev := series[len(series)-2]
		cur := series.Last()
		patterns[PatternBullEngulf] = isBullishEngulfing(prev, cur)
		patterns[PatternBearEngulf] = isBearishEngulfing(prev, cur)
	}
	if len(series) >= 3 {
		c1 := series[len(series)-3]
		c2 := series[len(series)-2]
		c3 := series.Last()
		patterns[PatternMorningStar] = isMorningStar(c1, c2, c3)
		patterns[PatternEveningStar] = isEveningStar(c1, c2, c3)
	}

	bullish := 0
	for _, name := range []string{PatternHammer, PatternBullEngulf, PatternMorningStar} {
		if patterns[name] {
			bullish++
		}
	}
	bearish := 0
	for _, name := range []string{PatternShootingStar, PatternBearEngulf, PatternEveningStar} {
		if patterns[name] {
			bearish++
		}
	}

	imbalance := bookImbalance(book)

	result := PatternResult{
		Patterns:     patterns,
		BullishCount: bullish,
		BearishCount: bearish,
		Imbalance:    imbalance,
		Direction:    ReversalNone,
		Confidence:   math.Min(1, float64(bullish+bearish)/3+math.Abs(imbalance)),
	}

	switch {
	case bullish >= 2 || (bullish >= 1 && imbalance > imbalanceThreshold):
		result.Detected = true
		result.Direction = ReversalBullish
	case bearish >= 2 || (bearish >= 1 && imbalance < -imbalanceThreshold):
		result.Detected = true
		result.Direction = ReversalBearish
	}

	if result.Detected {
		r.log.Debug().
			Str("direction", string(result.Direction)).
			Int("bullish", bullish).
			Int("bearish", bearish).
			Float64("imbalance", imbalance).
			Msg("Reversal pattern detected")
	}

	return result
}

// bookImbalance computes (bidVol - askVol) / (bidVol + askVol) over the top
// levels of each side
func bookImbalance(book *market.OrderBook) float64 {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}

	var bidVol, askVol float64
	for i, level := range book.Bids {
		if i >= imbalanceDepth {
			break
		}
		bidVol += level.Quantity
	}
	for i, level := range book.Asks {
		if i >= imbalanceDepth {
			break
		}
		askVol += level.Quantity
	}

	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// isHammer: long lower shadow, small body near the high
func isHammer(c market.Candle) bool {
	return (c.Close-c.Low) > 3*(c.Open-c.Close) &&
		(c.High-c.Close) < (c.Open-c.Low)
}

// isShootingStar: long upper shadow, small body near the low
func isShootingStar(c market.Candle) bool {
	return (c.High-c.Close) > 3*(c.Close-c.Open) &&
		(c.Close-c.Low) < (c.High-c.Open)
}

// isBullishEngulfing: bullish body fully engulfs the prior bearish body
func isBullishEngulfing(prev, cur market.Candle) bool {
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Close > prev.Open &&
		cur.Open < prev.Close
}

// isBearishEngulfing: bearish body fully engulfs the prior bullish body.
// The body-direction checks make this mutually exclusive with the bullish
// variant on any single candle pair.
func isBearishEngulfing(prev, cur market.Candle) bool {
	return prev.Close > prev.Open &&
		cur.Close < cur.Open &&
		cur.Open > prev.Close &&
		cur.Close < prev.Open
}

// isMorningStar: bearish candle, small indecision candle, bullish candle
// closing above the midpoint of the first body
func isMorningStar(c1, c2, c3 market.Candle) bool {
	body1 := c1.Open - c1.Close
	if body1 <= 0 {
		return false
	}
	body2 := math.Abs(c2.Close - c2.Open)
	mid1 := (c1.Open + c1.Close) / 2

	return body2 < body1*0.3 &&
		c3.Close > c3.Open &&
		c3.Close > mid1
}

// isEveningStar: mirror of the morning star
func isEveningStar(c1, c2, c3 market.Candle) bool {
	body1 := c1.Close - c1.Open
	if body1 <= 0 {
		return false
	}
	body2 := math.Abs(c2.Close - c2.Open)
	mid1 := (c1.Open + c1.Close) / 2

	return body2 < body1*0.3 &&
		c3.Close < c3.Open &&
		c3.Close < mid1
}
