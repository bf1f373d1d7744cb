package individual

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/internal/leads"
	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

var base = time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

type stubAnalyzer struct {
	mu          sync.Mutex
	probability int
	calls       int
}

func (s *stubAnalyzer) AnalyzeDialogue(context.Context, models.DialogueContext) (models.DialogueAnalysis, error) {
	return models.DialogueAnalysis{}, nil
}

func (s *stubAnalyzer) AnalyzeMessage(_ context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return models.DialogueAnalysis{
		Valuable:        s.probability >= 60,
		ConfidenceScore: s.probability,
		Summary:         "стаб-оценка",
		PotentialLeads: []models.ParticipantAssessment{{
			UserID:          msg.SenderID,
			LeadProbability: s.probability,
			LeadQuality:     models.QualityWarm,
			KeySignals:      sigs,
		}},
		Source: "llm",
	}, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func businessMsg(sender int64) models.InboundMessage {
	return models.InboundMessage{
		ChannelID:       1,
		ChannelTitle:    "Бизнес Чат",
		SenderID:        sender,
		SenderFirstName: "Олег",
		Text:            "Сколько стоит ваша услуга, хочу заказать",
		Timestamp:       base,
	}
}

func newFixture(probability int) (*Processor, *leads.MemoryStore, *captureNotifier, *stubAnalyzer, *time.Time) {
	now := base
	store := leads.NewMemoryStore()
	notifier := &captureNotifier{}
	stub := &stubAnalyzer{probability: probability}
	p := New(DefaultConfig(), signals.NewMatcher(signals.DefaultConfig()), stub, store, notifier, zerolog.Nop())
	p.SetClock(func() time.Time { return now })
	return p, store, notifier, stub, &now
}

func TestStrongMessageCreatesLeadAndNotifies(t *testing.T) {
	p, store, notifier, _, _ := newFixture(80)

	p.Process(context.Background(), businessMsg(500))

	lead, ok := store.Get(500)
	require.True(t, ok)
	assert.Equal(t, 80, lead.InterestScore)
	assert.Equal(t, "Сколько стоит ваша услуга, хочу заказать", lead.TranscriptExcerpt)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "high", notifier.sent[0].Tier)
}

func TestMidScoreCreatesLeadWithoutNotification(t *testing.T) {
	p, store, notifier, _, _ := newFixture(55)

	p.Process(context.Background(), businessMsg(500))

	_, ok := store.Get(500)
	assert.True(t, ok, "55 is above the lead threshold of 50")
	assert.Empty(t, notifier.sent, "55 is below the notify threshold of 70")
}

func TestWeakScoreIgnored(t *testing.T) {
	p, store, notifier, _, _ := newFixture(30)

	p.Process(context.Background(), businessMsg(500))

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, notifier.sent)
}

func TestNonBusinessMessageSkipsAnalyzer(t *testing.T) {
	p, _, _, stub, _ := newFixture(90)

	msg := businessMsg(500)
	msg.Text = "Всем привет, отличная погода"
	p.Process(context.Background(), msg)

	assert.Equal(t, 0, stub.calls)
}

func TestPerUserCooldown(t *testing.T) {
	p, _, _, stub, now := newFixture(80)

	p.Process(context.Background(), businessMsg(500))
	p.Process(context.Background(), businessMsg(500))
	assert.Equal(t, 1, stub.calls, "second message within the cooldown must be skipped")

	// Another user is unaffected.
	p.Process(context.Background(), businessMsg(600))
	assert.Equal(t, 2, stub.calls)

	// Cooldown expiry reopens the slot.
	*now = base.Add(25 * time.Hour)
	p.Process(context.Background(), businessMsg(500))
	assert.Equal(t, 3, stub.calls)
}
