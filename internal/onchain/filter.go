// Package onchain scores exchange flow and whale activity into an
// accumulation/distribution signal with veto power over buy decisions.
package onchain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// Status is the smart-money flow classification
type Status string

const (
	StatusAccumulation Status = "ACCUMULATION"
	StatusDistribution Status = "DISTRIBUTION"
	StatusNeutral      Status = "NEUTRAL"
)

// Metrics are the raw on-chain observations for one asset.
// ExchangeNetflow is positive for outflow (bullish) and negative for
// inflow (bearish).
type Metrics struct {
	ExchangeNetflow float64   `json:"exchange_netflow"`
	WhaleTxCount    int       `json:"whale_tx_count"`
	WhaleVolume     float64   `json:"whale_volume"`
	StablecoinRatio float64   `json:"stablecoin_ratio"`
	Timestamp       time.Time `json:"timestamp"`
}

// Analysis is the filter output
type Analysis struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Score      int     `json:"score"`
	Metrics    Metrics `json:"metrics"`
	Reasoning  string  `json:"reasoning"`
	VetoBuy    bool    `json:"veto_buy"`
}

// Provider fetches on-chain metrics for an asset
type Provider interface {
	FetchMetrics(ctx context.Context, symbol string) (*Metrics, error)
}

// Scoring thresholds
const (
	netflowAccumulation = 500.0
	netflowDistribution = -500.0
	whaleVolumeLevel    = 1000.0
	ssrHigh             = 0.12
	ssrLow              = 0.07
)

// Filter classifies on-chain metrics into a flow status. DISTRIBUTION
// carries a buy veto; provider failures degrade to NEUTRAL with no veto so
// an on-chain outage never blocks the pipeline.
type Filter struct {
	provider Provider
	log      zerolog.Logger
}

// NewFilter creates an on-chain filter
func NewFilter(provider Provider) *Filter {
	return &Filter{
		provider: provider,
		log:      config.NewLogger("onchain"),
	}
}

// Analyze fetches metrics and scores them
func (f *Filter) Analyze(ctx context.Context, symbol string) Analysis {
	metrics, err := f.provider.FetchMetrics(ctx, symbol)
	if err != nil {
		f.log.Error().Err(err).Str("symbol", symbol).Msg("On-chain fetch failed, treating as neutral")
		return Analysis{
			Status:     StatusNeutral,
			Confidence: 0.5,
			Metrics:    Metrics{StablecoinRatio: 0.1, Timestamp: time.Now().UTC()},
			Reasoning:  fmt.Sprintf("error: %v", err),
		}
	}

	score, reasons := scoreMetrics(*metrics)

	analysis := Analysis{
		Score:     score,
		Metrics:   *metrics,
		Reasoning: strings.Join(reasons, " | "),
	}

	switch {
	case score >= 2:
		analysis.Status = StatusAccumulation
		analysis.Confidence = math.Min(0.9, 0.5+float64(score)*0.1)
	case score <= -2:
		analysis.Status = StatusDistribution
		analysis.Confidence = math.Min(0.9, 0.5+math.Abs(float64(score))*0.1)
		analysis.VetoBuy = true
	default:
		analysis.Status = StatusNeutral
		analysis.Confidence = 0.5
	}

	f.log.Debug().
		Str("symbol", symbol).
		Str("status", string(analysis.Status)).
		Int("score", score).
		Bool("veto_buy", analysis.VetoBuy).
		Msg("On-chain analyzed")

	return analysis
}

func scoreMetrics(m Metrics) (int, []string) {
	score := 0
	var reasons []string

	switch {
	case m.ExchangeNetflow > netflowAccumulation:
		score += 2
		reasons = append(reasons, fmt.Sprintf("netflow +%.0f (outflow, accumulation)", m.ExchangeNetflow))
	case m.ExchangeNetflow < netflowDistribution:
		score -= 2
		reasons = append(reasons, fmt.Sprintf("netflow %.0f (inflow, distribution)", m.ExchangeNetflow))
	default:
		reasons = append(reasons, fmt.Sprintf("netflow %.0f (neutral)", m.ExchangeNetflow))
	}

	if m.WhaleVolume > whaleVolumeLevel {
		if m.ExchangeNetflow < 0 {
			score--
			reasons = append(reasons, fmt.Sprintf("whales moving %.0f to exchanges (bearish)", m.WhaleVolume))
		} else {
			score++
			reasons = append(reasons, fmt.Sprintf("whales moving %.0f from exchanges (bullish)", m.WhaleVolume))
		}
	}

	if m.StablecoinRatio > ssrHigh {
		score++
		reasons = append(reasons, fmt.Sprintf("SSR %.3f (high buying power)", m.StablecoinRatio))
	} else if m.StablecoinRatio < ssrLow {
		score--
		reasons = append(reasons, fmt.Sprintf("SSR %.3f (low buying power)", m.StablecoinRatio))
	}

	return score, reasons
}
