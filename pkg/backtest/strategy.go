package backtest

import (
	"context"
	"fmt"

	"github.com/pattarak/tradepilot/internal/engine"
	"github.com/pattarak/tradepilot/internal/market"
)

const (
	// strategyLookback is how many bars feed each pipeline decision
	strategyLookback = 100

	// entryConfidence gates new positions; exitConfidence gates closes on a
	// counter-signal
	entryConfidence = 0.6
	exitConfidence  = 0.6

	// exitStrength marks stop and target exits as high-conviction signals
	exitStrength = 0.9
)

// PipelineStrategy replays candles through the live decision pipeline: the
// same entry rule the trader uses, plus take-profit, stop-loss and
// counter-signal exits on the open position.
type PipelineStrategy struct {
	pipeline *engine.Pipeline

	// risk levels captured at entry
	stopLossPct   float64
	takeProfitPct float64
}

// NewPipelineStrategy wraps a decision pipeline as a backtest strategy
func NewPipelineStrategy(pipeline *engine.Pipeline) *PipelineStrategy {
	return &PipelineStrategy{pipeline: pipeline}
}

// Initialize implements Strategy
func (s *PipelineStrategy) Initialize(_ *Engine) error {
	return nil
}

// Finalize implements Strategy
func (s *PipelineStrategy) Finalize(_ *Engine) error {
	return nil
}

// GenerateSignal produces at most one signal for the current candle
func (s *PipelineStrategy) GenerateSignal(e *Engine) (*Signal, error) {
	history := e.History(strategyLookback)
	if len(history) == 0 {
		return nil, nil
	}
	price := history.Last().Close

	if e.Position != nil {
		return s.exitSignal(e, history, price), nil
	}
	return s.entrySignal(e, history), nil
}

func (s *PipelineStrategy) exitSignal(e *Engine, history market.Series, price float64) *Signal {
	pos := e.Position
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice

	if pnlPct >= s.takeProfitPct {
		return &Signal{
			Symbol:     e.Symbol(),
			Side:       engine.ActionSell,
			Confidence: exitStrength,
			Reasoning:  fmt.Sprintf("Take Profit: %.2f%%", pnlPct*100),
		}
	}
	if pnlPct <= -s.stopLossPct {
		return &Signal{
			Symbol:     e.Symbol(),
			Side:       engine.ActionSell,
			Confidence: exitStrength,
			Reasoning:  "Stop Loss",
		}
	}

	rec := s.pipeline.Analyze(context.Background(), e.Symbol(), history, nil, e.Cash)
	if rec.Action == engine.ActionSell && rec.Confidence > exitConfidence {
		return &Signal{
			Symbol:     e.Symbol(),
			Side:       engine.ActionSell,
			Confidence: rec.Confidence,
			Reasoning:  "AI Signal",
		}
	}
	return nil
}

func (s *PipelineStrategy) entrySignal(e *Engine, history market.Series) *Signal {
	rec := s.pipeline.Analyze(context.Background(), e.Symbol(), history, nil, e.Cash)
	if rec.Action != engine.ActionBuy || rec.Confidence <= entryConfidence {
		return nil
	}

	s.stopLossPct = rec.StopLossPct
	s.takeProfitPct = rec.TakeProfitPct

	return &Signal{
		Symbol:     e.Symbol(),
		Side:       engine.ActionBuy,
		Confidence: rec.Confidence,
		Reasoning:  rec.Reasoning,
	}
}
