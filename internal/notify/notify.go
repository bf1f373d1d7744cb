// Package notify delivers lead alerts to operators. The engine queues a
// structured Notification; senders render and deliver it.
package notify

import (
	"context"

	"github.com/leadwatch/pkg/models"
)

// Notifier delivers one alert. Delivery failures are the sender's problem
// to log; the engine only counts them.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Config selects and configures the delivery channel.
type Config struct {
	// BotToken is the Telegram bot used for operator alerts. Empty token
	// falls back to log-only delivery.
	BotToken string `koanf:"bot_token"`
	// ChatID is the operator chat that receives alerts.
	ChatID int64 `koanf:"chat_id"`
}
