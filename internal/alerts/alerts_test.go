package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTradeClosedSeverityFollowsPnL(t *testing.T) {
	winner := TradeClosed("BTC/USDT", "Take Profit", 105, 50, 0.05)
	assert.Equal(t, SeveritySuccess, winner.Severity)

	loser := TradeClosed("BTC/USDT", "Stop Loss", 95, -50, -0.05)
	assert.Equal(t, SeverityWarning, loser.Severity)
	assert.Contains(t, loser.Message, "Stop Loss")
}

func TestFormatAlert(t *testing.T) {
	alert := Alert{
		Severity:  SeverityCritical,
		Title:     "Bot Crashed",
		Message:   "Trading loop stopped unexpectedly",
		Metadata:  map[string]any{"config_id": "bot-1"},
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	out := formatAlert(alert)

	assert.Contains(t, out, "🚨")
	assert.Contains(t, out, "*Bot Crashed*")
	assert.Contains(t, out, "config_id: `bot-1`")
	assert.Contains(t, out, "2024-06-01 12:00:00")
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Send(context.Background(), Alert{}))
}
