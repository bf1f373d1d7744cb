package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/leadwatch/pkg/models"
)

// LogNotifier writes alerts to the log instead of delivering them, used
// when no bot token is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns the log-only sender.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log_notify").Logger()}
}

// Notify logs the rendered alert at info level.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.logger.Info().
		Str("tier", n.Tier).
		Str("channel", n.ChannelTitle).
		Int("confidence", n.ConfidenceScore).
		Int("leads", len(n.Leads)).
		Msg(Format(n))
	return nil
}
