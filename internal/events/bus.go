// Package events publishes trading lifecycle events over NATS so external
// consumers (dashboards, recorders) can follow bot activity.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// Event topics
const (
	TopicTradeOpened  = "trade.opened"
	TopicTradeClosed  = "trade.closed"
	TopicDecision     = "decision"
	TopicStateChanged = "state"
)

const subjectPrefix = "trading"

// Event is the envelope published on every topic
type Event struct {
	ConfigID  string    `json:"config_id"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Bus publishes events to NATS. A nil Bus is safe to use and publishes
// nothing, so event publishing stays optional.
type Bus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Connect establishes the NATS connection with automatic reconnects
func Connect(url string) (*Bus, error) {
	logger := config.NewLogger("events")

	conn, err := nats.Connect(url,
		nats.Name("tradepilot"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info().Str("url", url).Msg("Connected to NATS")
	return &Bus{conn: conn, log: logger}, nil
}

// Publish sends an event on subject trading.<configID>.<topic>. Publish
// failures are logged, never propagated; trading must not stall on the
// event bus.
func (b *Bus) Publish(configID, topic string, payload any) {
	if b == nil || b.conn == nil {
		return
	}

	event := Event{
		ConfigID:  configID,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, configID, topic)
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

// Subscribe registers a handler for one bot's topic. Use "*" as configID
// to follow all bots.
func (b *Bus) Subscribe(configID, topic string, handler func(Event)) (*nats.Subscription, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("event bus not connected")
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, configID, topic)
	return b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed event")
			return
		}
		handler(event)
	})
}

// Close drains and closes the connection
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.log.Warn().Err(err).Msg("NATS drain failed")
	}
}
