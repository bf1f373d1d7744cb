package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/internal/dialogue"
	"github.com/leadwatch/internal/individual"
	"github.com/leadwatch/internal/leads"
	"github.com/leadwatch/internal/orchestrator"
	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/internal/trigger"
	"github.com/leadwatch/internal/window"
	"github.com/leadwatch/pkg/models"
)

var base = time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

type scriptedAnalyzer struct {
	mu            sync.Mutex
	dialogueCalls int
	messageCalls  int
}

func (s *scriptedAnalyzer) AnalyzeDialogue(_ context.Context, d models.DialogueContext) (models.DialogueAnalysis, error) {
	s.mu.Lock()
	s.dialogueCalls++
	s.mu.Unlock()

	var leads []models.ParticipantAssessment
	for id := range d.Participants {
		leads = append(leads, models.ParticipantAssessment{
			UserID:          id,
			LeadProbability: 88,
			LeadQuality:     models.QualityHot,
			KeySignals:      []string{"price_inquiry"},
		})
	}
	return models.DialogueAnalysis{
		Valuable:        true,
		ConfidenceScore: 85,
		PotentialLeads:  leads,
		Summary:         "участники обсуждают покупку",
		PriorityLevel:   "urgent",
		Source:          "llm",
	}, nil
}

func (s *scriptedAnalyzer) AnalyzeMessage(_ context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error) {
	s.mu.Lock()
	s.messageCalls++
	s.mu.Unlock()
	return models.DialogueAnalysis{
		Valuable:        true,
		ConfidenceScore: 75,
		PotentialLeads: []models.ParticipantAssessment{{
			UserID: msg.SenderID, LeadProbability: 75, LeadQuality: models.QualityWarm, KeySignals: sigs,
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

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fixture struct {
	proc     *Processor
	manager  *dialogue.Manager
	store    *leads.MemoryStore
	notifier *captureNotifier
	analyzer *scriptedAnalyzer
	now      *time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	now := base
	clock := func() time.Time { return now }

	matcher := signals.NewMatcher(signals.DefaultConfig())
	classifier := window.NewClassifier(window.DefaultConfig(), matcher, zerolog.Nop())
	manager := dialogue.NewManager(dialogue.DefaultConfig(), matcher, zerolog.Nop())
	manager.SetClock(clock)
	evaluator := trigger.NewEvaluator(trigger.DefaultConfig(), matcher)
	evaluator.SetClock(clock)

	store := leads.NewMemoryStore()
	notifier := &captureNotifier{}
	fake := &scriptedAnalyzer{}
	orch := orchestrator.New(orchestrator.DefaultConfig(), manager, fake, store, notifier, zerolog.Nop())
	indiv := individual.New(individual.DefaultConfig(), matcher, fake, store, notifier, zerolog.Nop())

	f := &fixture{
		manager:  manager,
		store:    store,
		notifier: notifier,
		analyzer: fake,
	}
	f.proc = New(cfg, classifier, manager, evaluator, orch, indiv, zerolog.Nop())
	f.now = &now
	return f
}

func chatMsg(sender, id int64, text string, at time.Time) models.InboundMessage {
	return models.InboundMessage{
		ChannelID:       -100500,
		ChannelTitle:    "Бизнес Чат",
		ChannelUsername: "bizchat",
		SenderID:        sender,
		SenderFirstName: "Имя",
		MessageID:       id,
		Text:            text,
		Timestamp:       at,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.proc.HandleMessage(ctx, chatMsg(100, 1, "Сколько стоит внедрение вашей системы?", base))
	f.proc.HandleMessage(ctx, chatMsg(200, 2, "Присоединяюсь, нам тоже нужно, есть бюджет", base.Add(30*time.Second)))
	f.proc.wg.Wait()

	assert.GreaterOrEqual(t, f.analyzer.dialogueCalls, 1, "participation trigger should have fired an analysis")
	assert.GreaterOrEqual(t, f.notifier.count(), 1)
	assert.GreaterOrEqual(t, f.store.Len(), 1)

	stats := f.proc.Snapshot()
	assert.EqualValues(t, 2, stats.MessagesProcessed)
	assert.EqualValues(t, 1, stats.DialoguesCreated)
	assert.GreaterOrEqual(t, stats.AnalysesQueued, int64(1))
}

func TestIndividualMessageRoutedToStandalonePath(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.proc.HandleMessage(context.Background(), chatMsg(500, 1, "Хочу заказать разработку, какой прайс?", base))
	f.proc.wg.Wait()

	assert.Equal(t, 1, f.analyzer.messageCalls)
	assert.Equal(t, 0, f.analyzer.dialogueCalls)
	_, ok := f.store.Get(500)
	assert.True(t, ok)
}

func TestAllowlistFiltersChannels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = []string{"@bizchat", "42"}
	f := newFixture(t, cfg)

	monitored := chatMsg(100, 1, "Сколько стоит?", base)
	f.proc.HandleMessage(context.Background(), monitored)

	other := monitored
	other.ChannelID = -900
	other.ChannelUsername = "random_chat"
	other.MessageID = 2
	f.proc.HandleMessage(context.Background(), other)
	f.proc.wg.Wait()

	stats := f.proc.Snapshot()
	assert.EqualValues(t, 1, stats.MessagesProcessed)
	assert.EqualValues(t, 1, stats.MessagesIgnored)
}

func TestEmptyTextIgnored(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.proc.HandleMessage(context.Background(), chatMsg(100, 1, "   ", base))

	stats := f.proc.Snapshot()
	assert.EqualValues(t, 0, stats.MessagesProcessed)
	assert.EqualValues(t, 1, stats.MessagesIgnored)
}

func TestSweepExpiresStaleDialogues(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	// Seed a dialogue directly so no trigger consumes it first.
	m1 := chatMsg(100, 1, "Привет, как дела?", base)
	m2 := chatMsg(200, 2, "Привет, нормально", base.Add(10*time.Second))
	_, created := f.manager.Process(m1.ChannelID, m2, window.Window{
		Kind:     models.WindowDialogue,
		Messages: []models.InboundMessage{m1, m2},
		Senders:  2,
	})
	require.True(t, created)
	require.Equal(t, 1, f.manager.ActiveCount())

	*f.now = base.Add(30 * time.Minute)
	f.proc.Sweep(ctx)
	f.proc.wg.Wait()

	assert.Equal(t, 0, f.manager.ActiveCount())
	stats := f.proc.Snapshot()
	assert.EqualValues(t, 1, stats.Sweeps)
	assert.EqualValues(t, 1, stats.DialoguesExpired)
}

func TestChannelsProcessIndependently(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	a := chatMsg(100, 1, "Сколько стоит?", base)
	b := chatMsg(300, 1, "Какая цена у вас?", base)
	b.ChannelID = -200600
	b.ChannelUsername = "otherchat"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); f.proc.HandleMessage(ctx, a) }()
	go func() { defer wg.Done(); f.proc.HandleMessage(ctx, b) }()
	wg.Wait()
	f.proc.wg.Wait()

	stats := f.proc.Snapshot()
	assert.EqualValues(t, 2, stats.MessagesProcessed)
}
