package onchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProvider struct {
	metrics *Metrics
	err     error
}

func (p *fixedProvider) FetchMetrics(_ context.Context, _ string) (*Metrics, error) {
	return p.metrics, p.err
}

func analyzeWith(t *testing.T, m Metrics) Analysis {
	t.Helper()
	m.Timestamp = time.Now().UTC()
	filter := NewFilter(&fixedProvider{metrics: &m})
	return filter.Analyze(context.Background(), "BTC/USDT")
}

func TestFilterAccumulation(t *testing.T) {
	// Outflow +2, whales leaving exchanges +1, high SSR +1
	analysis := analyzeWith(t, Metrics{
		ExchangeNetflow: 800,
		WhaleVolume:     2000,
		StablecoinRatio: 0.13,
	})

	assert.Equal(t, StatusAccumulation, analysis.Status)
	assert.Equal(t, 4, analysis.Score)
	assert.InDelta(t, 0.9, analysis.Confidence, 1e-9)
	assert.False(t, analysis.VetoBuy)
}

func TestFilterDistributionVetoesBuys(t *testing.T) {
	// Inflow -2, whales moving to exchanges -1, low SSR -1
	analysis := analyzeWith(t, Metrics{
		ExchangeNetflow: -800,
		WhaleVolume:     2000,
		StablecoinRatio: 0.06,
	})

	assert.Equal(t, StatusDistribution, analysis.Status)
	assert.Equal(t, -4, analysis.Score)
	assert.InDelta(t, 0.9, analysis.Confidence, 1e-9)
	assert.True(t, analysis.VetoBuy)
}

func TestFilterNeutralInsideThresholds(t *testing.T) {
	analysis := analyzeWith(t, Metrics{
		ExchangeNetflow: 100,
		WhaleVolume:     500,
		StablecoinRatio: 0.10,
	})

	assert.Equal(t, StatusNeutral, analysis.Status)
	assert.Equal(t, 0, analysis.Score)
	assert.Equal(t, 0.5, analysis.Confidence)
	assert.False(t, analysis.VetoBuy)
}

func TestFilterWhaleDirectionFollowsNetflow(t *testing.T) {
	// Mild inflow alone scores nothing, heavy whale volume turns it -1
	bearish := analyzeWith(t, Metrics{
		ExchangeNetflow: -100,
		WhaleVolume:     3000,
		StablecoinRatio: 0.10,
	})
	assert.Equal(t, -1, bearish.Score)
	assert.Equal(t, StatusNeutral, bearish.Status)

	bullish := analyzeWith(t, Metrics{
		ExchangeNetflow: 100,
		WhaleVolume:     3000,
		StablecoinRatio: 0.10,
	})
	assert.Equal(t, 1, bullish.Score)
}

func TestFilterConfidenceCapped(t *testing.T) {
	// Score 2 gives 0.7, never above 0.9
	analysis := analyzeWith(t, Metrics{
		ExchangeNetflow: 800,
		WhaleVolume:     100,
		StablecoinRatio: 0.10,
	})

	assert.Equal(t, 2, analysis.Score)
	assert.InDelta(t, 0.7, analysis.Confidence, 1e-9)
}

func TestFilterProviderErrorIsNeutralNoVeto(t *testing.T) {
	filter := NewFilter(&fixedProvider{err: errors.New("glassnode unavailable")})

	analysis := filter.Analyze(context.Background(), "BTC/USDT")

	assert.Equal(t, StatusNeutral, analysis.Status)
	assert.Equal(t, 0.5, analysis.Confidence)
	assert.False(t, analysis.VetoBuy)
	assert.Contains(t, analysis.Reasoning, "glassnode unavailable")
}

func TestMockProviderDeterministic(t *testing.T) {
	ctx := context.Background()

	a := NewMockProvider(42)
	b := NewMockProvider(42)

	for i := 0; i < 5; i++ {
		ma, err := a.FetchMetrics(ctx, "BTC/USDT")
		require.NoError(t, err)
		mb, err := b.FetchMetrics(ctx, "BTC/USDT")
		require.NoError(t, err)

		assert.Equal(t, ma.ExchangeNetflow, mb.ExchangeNetflow)
		assert.Equal(t, ma.WhaleVolume, mb.WhaleVolume)
		assert.Equal(t, ma.WhaleTxCount, mb.WhaleTxCount)

		assert.GreaterOrEqual(t, ma.ExchangeNetflow, -1000.0)
		assert.LessOrEqual(t, ma.ExchangeNetflow, 1000.0)
		assert.GreaterOrEqual(t, ma.WhaleTxCount, 5)
		assert.Less(t, ma.WhaleTxCount, 50)
		assert.GreaterOrEqual(t, ma.StablecoinRatio, 0.05)
		assert.LessOrEqual(t, ma.StablecoinRatio, 0.15)
	}
}
