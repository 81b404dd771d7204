package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pattarak/tradepilot/internal/market"
)

func candle(open, high, low, close float64) market.Candle {
	return market.Candle{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
	}
}

func neutralCandle() market.Candle {
	return candle(100, 100.5, 99.5, 100)
}

func TestPatternHammer(t *testing.T) {
	series := market.Series{
		neutralCandle(),
		candle(100, 100.2, 95, 99.5),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternHammer])
	assert.False(t, result.Patterns[PatternShootingStar])
	assert.Equal(t, 1, result.BullishCount)
}

func TestPatternShootingStar(t *testing.T) {
	series := market.Series{
		neutralCandle(),
		candle(100, 105, 99.8, 100.5),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternShootingStar])
	assert.False(t, result.Patterns[PatternHammer])
	assert.Equal(t, 1, result.BearishCount)
}

func TestPatternBullishEngulfing(t *testing.T) {
	series := market.Series{
		candle(101, 101.2, 99.8, 100),
		candle(99.5, 101.8, 99.4, 101.5),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternBullEngulf])
	assert.False(t, result.Patterns[PatternBearEngulf])
}

func TestPatternBearishEngulfing(t *testing.T) {
	series := market.Series{
		candle(100, 101.2, 99.8, 101),
		candle(101.5, 101.6, 99.2, 99.5),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternBearEngulf])
	assert.False(t, result.Patterns[PatternBullEngulf])
}

func TestPatternMorningStar(t *testing.T) {
	series := market.Series{
		candle(105, 105.5, 99.5, 100),
		candle(99.8, 100.5, 99.5, 100.2),
		candle(100, 104.5, 99.8, 104),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternMorningStar])
	assert.False(t, result.Patterns[PatternEveningStar])
}

func TestPatternEveningStar(t *testing.T) {
	series := market.Series{
		candle(100, 105.5, 99.5, 105),
		candle(105.2, 105.5, 104.8, 105),
		candle(105, 105.2, 100.5, 101),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.True(t, result.Patterns[PatternEveningStar])
	assert.False(t, result.Patterns[PatternMorningStar])
}

func TestReversalRequiresTwoPatternsOrImbalance(t *testing.T) {
	// Single bullish pattern, no order book
	single := market.Series{
		neutralCandle(),
		candle(100, 100.2, 95, 99.5),
	}
	result := NewPatternRecognizer().Analyze(single, nil)
	assert.False(t, result.Detected)
	assert.Equal(t, ReversalNone, result.Direction)

	// Same pattern with bid-heavy book crosses the threshold
	book := &market.OrderBook{
		Symbol: "BTC/USDT",
		Bids:   []market.PriceLevel{{Price: 99, Quantity: 70}},
		Asks:   []market.PriceLevel{{Price: 100, Quantity: 30}},
	}
	result = NewPatternRecognizer().Analyze(single, book)
	assert.True(t, result.Detected)
	assert.Equal(t, ReversalBullish, result.Direction)
	assert.InDelta(t, 0.4, result.Imbalance, 1e-9)
	assert.InDelta(t, 1.0/3+0.4, result.Confidence, 1e-9)
}

func TestReversalTwoBullishPatterns(t *testing.T) {
	// Bearish candle engulfed by a bullish one that is also a hammer
	series := market.Series{
		candle(101, 101.2, 99.8, 100),
		candle(99.5, 101.8, 90, 101.5),
	}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.GreaterOrEqual(t, result.BullishCount, 2)
	assert.True(t, result.Detected)
	assert.Equal(t, ReversalBullish, result.Direction)
}

func TestReversalBearishWithAskHeavyBook(t *testing.T) {
	series := market.Series{
		neutralCandle(),
		candle(100, 105, 99.8, 100.5),
	}
	book := &market.OrderBook{
		Symbol: "BTC/USDT",
		Bids:   []market.PriceLevel{{Price: 99, Quantity: 20}},
		Asks:   []market.PriceLevel{{Price: 100, Quantity: 80}},
	}

	result := NewPatternRecognizer().Analyze(series, book)

	assert.True(t, result.Detected)
	assert.Equal(t, ReversalBearish, result.Direction)
	assert.Less(t, result.Imbalance, -0.3)
}

func TestImbalanceUsesTopLevelsOnly(t *testing.T) {
	bids := make([]market.PriceLevel, 15)
	asks := make([]market.PriceLevel, 15)
	for i := range bids {
		bids[i] = market.PriceLevel{Price: 99 - float64(i), Quantity: 10}
		asks[i] = market.PriceLevel{Price: 100 + float64(i), Quantity: 10}
	}
	// Deep levels beyond the top ten must not shift the balance
	bids[12].Quantity = 100000

	result := NewPatternRecognizer().Analyze(market.Series{neutralCandle()}, &market.OrderBook{
		Symbol: "BTC/USDT",
		Bids:   bids,
		Asks:   asks,
	})

	assert.InDelta(t, 0, result.Imbalance, 1e-9)
}

func TestNoPatternsNoBook(t *testing.T) {
	series := market.Series{neutralCandle(), neutralCandle(), neutralCandle()}

	result := NewPatternRecognizer().Analyze(series, nil)

	assert.False(t, result.Detected)
	assert.Equal(t, ReversalNone, result.Direction)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 0, result.BullishCount)
	assert.Equal(t, 0, result.BearishCount)
}
