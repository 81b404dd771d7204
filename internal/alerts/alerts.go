// Package alerts delivers trading notifications to operators.
package alerts

import (
	"context"
	"time"
)

// Severity classifies an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeveritySuccess  Severity = "success"
)

// Alert is one operator notification
type Alert struct {
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier delivers alerts
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// NopNotifier drops all alerts; used when no channel is configured
type NopNotifier struct{}

// Send discards the alert
func (NopNotifier) Send(_ context.Context, _ Alert) error { return nil }

// TradeOpened builds the notification for a newly opened position
func TradeOpened(symbol string, quantity, price, confidence float64) Alert {
	return Alert{
		Severity: SeveritySuccess,
		Title:    "Position Opened",
		Message:  "Opened " + symbol,
		Metadata: map[string]any{
			"symbol":     symbol,
			"quantity":   quantity,
			"price":      price,
			"confidence": confidence,
		},
		Timestamp: time.Now().UTC(),
	}
}

// TradeClosed builds the notification for a closed position
func TradeClosed(symbol, reason string, exitPrice, pnl, pnlPct float64) Alert {
	severity := SeveritySuccess
	if pnl < 0 {
		severity = SeverityWarning
	}
	return Alert{
		Severity: severity,
		Title:    "Position Closed",
		Message:  "Closed " + symbol + " (" + reason + ")",
		Metadata: map[string]any{
			"symbol":     symbol,
			"reason":     reason,
			"exit_price": exitPrice,
			"pnl":        pnl,
			"pnl_pct":    pnlPct,
		},
		Timestamp: time.Now().UTC(),
	}
}

// BotCrashed builds the notification for an engine crash
func BotCrashed(configID string, err error) Alert {
	return Alert{
		Severity: SeverityCritical,
		Title:    "Bot Crashed",
		Message:  "Trading loop stopped unexpectedly",
		Metadata: map[string]any{
			"config_id": configID,
			"error":     err.Error(),
		},
		Timestamp: time.Now().UTC(),
	}
}
