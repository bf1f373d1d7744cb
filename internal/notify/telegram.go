package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwatch/pkg/models"
)

// TelegramNotifier delivers alerts through the Bot API sendMessage call.
type TelegramNotifier struct {
	token   string
	chatID  int64
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewTelegramNotifier builds the sender for the given bot and operator chat.
func NewTelegramNotifier(cfg Config, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.telegram.org",
		logger:  logger.With().Str("component", "telegram_notify").Logger(),
	}
}

// Notify renders and sends the alert to the operator chat.
func (t *TelegramNotifier) Notify(ctx context.Context, n models.Notification) error {
	payload := map[string]any{
		"chat_id": t.chatID,
		"text":    Format(n),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending operator alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage returned %d: %s", resp.StatusCode, detail)
	}

	t.logger.Info().
		Str("tier", n.Tier).
		Str("channel", n.ChannelTitle).
		Int("leads", len(n.Leads)).
		Msg("operator alert sent")
	return nil
}
