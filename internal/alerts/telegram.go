package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// TelegramNotifier sends alerts through a Telegram bot
type TelegramNotifier struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	log     zerolog.Logger
}

// NewTelegramNotifier creates a Telegram notifier
func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	logger := config.NewLogger("telegram")
	logger.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram notifier initialized")

	return &TelegramNotifier{api: api, chatIDs: chatIDs, log: logger}, nil
}

// Send delivers the alert to every configured chat
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if len(t.chatIDs) == 0 {
		t.log.Warn().Msg("No Telegram chat IDs configured, skipping alert")
		return nil
	}

	message := formatAlert(alert)

	var lastErr error
	sent := 0
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, message)
		msg.ParseMode = "Markdown"

		if _, err := t.api.Send(msg); err != nil {
			t.log.Error().
				Err(err).
				Int64("chat_id", chatID).
				Str("title", alert.Title).
				Msg("Failed to send Telegram alert")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("send alert to any chat: %w", lastErr)
	}
	return nil
}

func formatAlert(alert Alert) string {
	var emoji string
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	case SeveritySuccess:
		emoji = "✅"
	default:
		emoji = "ℹ️"
	}

	message := fmt.Sprintf("%s *%s*\n\n%s", emoji, alert.Title, alert.Message)

	if len(alert.Metadata) > 0 {
		message += "\n\n*Details:*"
		for key, value := range alert.Metadata {
			message += fmt.Sprintf("\n• %s: `%v`", key, value)
		}
	}

	message += fmt.Sprintf("\n\n_Time: %s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return message
}
