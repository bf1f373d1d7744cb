package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/pkg/models"
)

func sampleNotification() models.Notification {
	return models.Notification{
		Tier:              "urgent",
		ChannelTitle:      "Бизнес Чат",
		Summary:           "Группа обсуждает покупку CRM, бюджет согласован",
		ConfidenceScore:   90,
		BusinessRelevance: 85,
		ParticipantCount:  3,
		MessageCount:      12,
		Breakdown: []models.ParticipantLine{
			{Name: "Анна", Username: "anna_b", Probability: 92, Quality: models.QualityHot},
			{Name: "Борис", Probability: 64, Quality: models.QualityWarm},
		},
		KeyInsights:        []string{"Бюджет уже выделен"},
		RecommendedActions: []string{"Связаться с Анной сегодня"},
		NextBestAction:     "Отправить коммерческое предложение",
	}
}

func TestFormatTiers(t *testing.T) {
	n := sampleNotification()

	text := Format(n)
	assert.True(t, strings.HasPrefix(text, "🚨 ГОРЯЧИЙ ЛИД"))
	assert.Contains(t, text, "Анна (@anna_b) — 92% (hot)")
	assert.Contains(t, text, "Борис — 64% (warm)")
	assert.Contains(t, text, "Уверенность: 90%")
	assert.Contains(t, text, "Следующий шаг")

	n.Tier = "high"
	assert.True(t, strings.HasPrefix(Format(n), "🔥"))

	n.Tier = "medium"
	assert.True(t, strings.HasPrefix(Format(n), "💎"))
}

func TestFormatTruncatesLongAlerts(t *testing.T) {
	n := sampleNotification()
	for i := 0; i < 300; i++ {
		n.KeyInsights = append(n.KeyInsights, "очень длинное наблюдение о ходе переговоров")
	}

	text := Format(n)
	assert.LessOrEqual(t, len(text), maxMessageLen+len("…"))
	assert.True(t, utf8.ValidString(text), "truncation must not split a UTF-8 sequence")
	assert.True(t, strings.HasSuffix(text, "…"))
}

func TestTelegramNotifierSendsToOperatorChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(Config{BotToken: "test-token", ChatID: -100123}, zerolog.Nop())
	tn.baseURL = srv.URL

	require.NoError(t, tn.Notify(context.Background(), sampleNotification()))
	assert.EqualValues(t, -100123, got["chat_id"])
	assert.Contains(t, got["text"], "ГОРЯЧИЙ ЛИД")
}

func TestTelegramNotifierReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(Config{BotToken: "test-token", ChatID: 1}, zerolog.Nop())
	tn.baseURL = srv.URL

	err := tn.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestLogNotifierNeverFails(t *testing.T) {
	ln := NewLogNotifier(zerolog.Nop())
	assert.NoError(t, ln.Notify(context.Background(), sampleNotification()))
}
