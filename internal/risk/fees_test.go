package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pattarak/tradepilot/internal/config"
)

func feeConfig() config.FeeConfig {
	return config.FeeConfig{
		Maker:             0.001,
		Taker:             0.001,
		MinProfitMultiple: 3.0,
		MaxTradesPerHour:  2,
		MaxTradesPerDay:   10,
		MinHoldMinutes:    30,
	}
}

func TestFeeGateEstimateFees(t *testing.T) {
	gate := NewFeeGate(feeConfig())

	// Entry fee 1.0 on 1000 notional; exit fee on the grown 1100 notional
	fees := gate.EstimateFees(1000, 100, 110)

	assert.InDelta(t, 2.1, fees, 1e-9)
}

func TestFeeGateHourlyLimit(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, gate.CanOpen(now).Allowed)

	gate.RecordTrade(SideBuy, now.Add(-30*time.Minute))
	gate.RecordTrade(SideSell, now.Add(-10*time.Minute))

	decision := gate.CanOpen(now)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "hourly trade limit reached", decision.Reason)

	// The hour rolls over and trading resumes
	assert.True(t, gate.CanOpen(now.Add(55*time.Minute)).Allowed)
}

func TestFeeGateDailyLimit(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)

	// Ten trades spread out so no hour holds more than one
	for i := 0; i < 10; i++ {
		gate.RecordTrade(SideSell, now.Add(time.Duration(-2*(i+1))*time.Hour))
	}

	decision := gate.CanOpen(now)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily trade limit reached", decision.Reason)
}

func TestFeeGateMinimumHold(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	gate.RecordTrade(SideBuy, now)

	decision := gate.CanClose(now.Add(10*time.Minute), 100, 120, 1000, false)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "minimum hold time not reached", decision.Reason)

	assert.True(t, gate.CanClose(now.Add(31*time.Minute), 100, 120, 1000, false).Allowed)
}

func TestFeeGateForceBypassesChecks(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	gate.RecordTrade(SideBuy, now)

	// Inside the hold window and at a loss, yet a stop loss must fire
	decision := gate.CanClose(now.Add(5*time.Minute), 100, 95, 1000, true)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "forced", decision.Reason)
}

func TestFeeGateProfitMultiple(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Gross 5.0 on fees 2.005: below the 3x multiple
	thin := gate.CanClose(now, 100, 100.5, 1000, false)
	assert.False(t, thin.Allowed)
	assert.Equal(t, "net profit below fee multiple", thin.Reason)

	// Gross 20.0 on fees 2.02: net 17.98 clears 6.06
	assert.True(t, gate.CanClose(now, 100, 102, 1000, false).Allowed)
}

func TestFeeGateSellClearsEntryTime(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	gate.RecordTrade(SideBuy, now)
	gate.RecordTrade(SideSell, now.Add(time.Hour))

	// No open position, so no hold-time check applies
	assert.True(t, gate.CanClose(now.Add(time.Hour+time.Minute), 100, 110, 1000, false).Allowed)
}

func TestFeeGateUpdateSettings(t *testing.T) {
	gate := NewFeeGate(feeConfig())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3.0, gate.Settings().MinProfitMultiple)

	// At the 3x multiple a 0.7% move is too thin to exit
	gate.RecordTrade(SideBuy, now.Add(-time.Hour))
	assert.False(t, gate.CanClose(now, 100, 100.7, 1000, false).Allowed)

	hold := 0
	hourly := 5
	multiple := 1.0
	updated := gate.Update(FeeSettingsUpdate{
		MinProfitMultiple: &multiple,
		MaxTradesPerHour:  &hourly,
		MinHoldMinutes:    &hold,
	})

	assert.Equal(t, 1.0, updated.MinProfitMultiple)
	assert.Equal(t, 5, updated.MaxTradesPerHour)
	assert.Equal(t, 0, updated.MinHoldMinutes)
	// Untouched fields keep their values
	assert.Equal(t, 0.001, updated.Taker)
	assert.Equal(t, 10, updated.MaxTradesPerDay)

	// Gross 7.0 on fees 2.007: net 4.993 clears the relaxed 1x multiple
	assert.True(t, gate.CanClose(now, 100, 100.7, 1000, false).Allowed)
}

func TestFeeGatePriceTargets(t *testing.T) {
	gate := NewFeeGate(feeConfig())

	assert.InDelta(t, 100.2, gate.BreakEvenPrice(100), 1e-9)
	assert.InDelta(t, 100.6, gate.MinProfitablePrice(100), 1e-9)
}
