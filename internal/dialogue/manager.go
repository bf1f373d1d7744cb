// Package dialogue owns the lifecycle of detected conversations: creation
// from a classified message window, growth as related messages arrive,
// and removal on expiry or after a completed valuable analysis.
package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/internal/window"
	"github.com/leadwatch/pkg/models"
)

// ErrNotFound is returned for a dialogue id that is no longer active. The
// caller treats this as a benign race, not a failure.
var ErrNotFound = errors.New("dialogue not found")

// Config bounds dialogue lifetimes and the active set.
type Config struct {
	// Timeout expires a dialogue after this much inactivity.
	Timeout time.Duration `koanf:"timeout"`
	// MaxDuration expires a dialogue this long after creation no matter
	// how active it still is.
	MaxDuration time.Duration `koanf:"max_duration"`
	// MaxActive caps the active set; beyond it the least recently active
	// dialogue is evicted.
	MaxActive int `koanf:"max_active"`
	// HistoryRetention prunes analysis timestamps older than this.
	HistoryRetention time.Duration `koanf:"history_retention"`
}

// DefaultConfig returns the standard lifetime bounds.
func DefaultConfig() Config {
	return Config{
		Timeout:          15 * time.Minute,
		MaxDuration:      2 * time.Hour,
		MaxActive:        500,
		HistoryRetention: time.Hour,
	}
}

// Manager tracks all active dialogues. Mutating methods take the internal
// lock; the ingest layer additionally serializes per channel so window
// classification and dialogue mutation stay ordered.
type Manager struct {
	cfg     Config
	matcher *signals.Matcher
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	active map[string]*models.DialogueContext
}

// NewManager builds a manager over the given matcher.
func NewManager(cfg Config, matcher *signals.Matcher, logger zerolog.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultConfig().MaxDuration
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultConfig().MaxActive
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = DefaultConfig().HistoryRetention
	}
	return &Manager{
		cfg:     cfg,
		matcher: matcher,
		logger:  logger.With().Str("component", "dialogue").Logger(),
		now:     time.Now,
		active:  make(map[string]*models.DialogueContext),
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Process routes a non-individual window message into the active set:
// attach to an overlapping fresh dialogue or create a new one seeded from
// the whole window. Returns the dialogue id and whether it was created.
func (m *Manager) Process(channelID int64, msg models.InboundMessage, w window.Window) (string, bool) {
	if strings.TrimSpace(msg.Text) == "" || w.Kind == models.WindowIndividual {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if d := m.findAttachable(channelID, w, now); d != nil {
		m.appendMessage(d, msg, now)
		return d.ID, false
	}

	d := m.create(channelID, msg, w, now)
	m.active[d.ID] = d
	m.evictOverflow()

	m.logger.Info().
		Str("dialogue_id", d.ID).
		Int64("channel_id", channelID).
		Str("kind", string(d.Kind)).
		Int("participants", len(d.Participants)).
		Int("messages", len(d.Messages)).
		Msg("dialogue created")

	return d.ID, true
}

// findAttachable returns an active fresh dialogue in the channel whose
// participant set overlaps the window's senders.
func (m *Manager) findAttachable(channelID int64, w window.Window, now time.Time) *models.DialogueContext {
	senders := make(map[int64]struct{}, len(w.Messages))
	for _, wm := range w.Messages {
		senders[wm.SenderID] = struct{}{}
	}

	var best *models.DialogueContext
	for _, d := range m.active {
		if d.ChannelID != channelID || now.Sub(d.LastActivity) > m.cfg.Timeout {
			continue
		}
		overlap := false
		for id := range senders {
			if _, ok := d.Participants[id]; ok {
				overlap = true
				break
			}
		}
		if !overlap {
			continue
		}
		if best == nil || d.LastActivity.After(best.LastActivity) {
			best = d
		}
	}
	return best
}

func (m *Manager) create(channelID int64, msg models.InboundMessage, w window.Window, now time.Time) *models.DialogueContext {
	title := msg.ChannelTitle
	if title == "" {
		title = fmt.Sprintf("channel_%d", channelID)
	}

	d := &models.DialogueContext{
		ID:           fmt.Sprintf("dlg_%d_%d_%s", channelID, now.Unix(), uuid.NewString()[:8]),
		ChannelID:    channelID,
		ChannelTitle: title,
		Participants: make(map[int64]*models.Participant),
		StartedAt:    now,
		LastActivity: now,
		Business:     w.Business,
		Kind:         w.Kind,
		Trigger:      models.TriggerState{NotifiedProbability: make(map[int64]int)},
	}

	// Seed with the whole window so the context includes the messages that
	// made this a dialogue, not just the one that tipped it over.
	for _, wm := range w.Messages {
		if strings.TrimSpace(wm.Text) == "" {
			continue
		}
		m.appendLocked(d, wm)
	}
	d.LastActivity = now

	m.assignRoles(d)
	return d
}

// assignRoles runs once at creation. Later joiners get new_participant.
func (m *Manager) assignRoles(d *models.DialogueContext) {
	var top *models.Participant
	for _, p := range d.Participants {
		if top == nil || p.MessageCount > top.MessageCount ||
			(p.MessageCount == top.MessageCount && p.FirstMessageAt.Before(top.FirstMessageAt)) {
			top = p
		}
	}

	for _, p := range d.Participants {
		business := p.SignalCount > 0 || m.participantHasBusiness(d, p.UserID)
		switch {
		case p == top && business:
			p.Role = models.RoleInitiator
		case p == top:
			p.Role = models.RoleActiveParticipant
		case p.QuestionCount >= 2 || (p.QuestionCount >= 1 && p.MessageCount == p.QuestionCount):
			p.Role = models.RoleInquirer
		case business:
			p.Role = models.RoleInterestedParticipant
		default:
			p.Role = models.RoleParticipant
		}
	}
}

func (m *Manager) participantHasBusiness(d *models.DialogueContext, userID int64) bool {
	for _, dm := range d.Messages {
		if dm.SenderID == userID && len(dm.Signals) > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) appendMessage(d *models.DialogueContext, msg models.InboundMessage, now time.Time) {
	m.appendLocked(d, msg)
	if now.After(d.LastActivity) {
		d.LastActivity = now
	}
}

func (m *Manager) appendLocked(d *models.DialogueContext, msg models.InboundMessage) {
	sigs := m.matcher.Extract(msg.Text)
	dm := models.DialogueMessage{
		SenderID:         msg.SenderID,
		SenderUsername:   msg.SenderUsername,
		SenderFirstName:  msg.SenderFirstName,
		Text:             msg.Text,
		Timestamp:        msg.Timestamp,
		MessageID:        msg.MessageID,
		ReplyToMessageID: msg.ReplyToMessageID,
		ReplyToUserID:    msg.ReplyToUserID,
		Signals:          sigs,
		Urgency:          m.matcher.Urgency(msg.Text),
		Sentiment:        m.matcher.Sentiment(msg.Text),
	}
	d.Messages = append(d.Messages, dm)

	p, ok := d.Participants[msg.SenderID]
	if !ok {
		p = &models.Participant{
			UserID:         msg.SenderID,
			Username:       msg.SenderUsername,
			FirstName:      msg.SenderFirstName,
			LastName:       msg.SenderLastName,
			Role:           models.RoleNewParticipant,
			FirstMessageAt: msg.Timestamp,
		}
		d.Participants[msg.SenderID] = p
	}
	p.MessageCount++
	p.LastMessageAt = msg.Timestamp
	p.SignalCount += len(sigs)
	if m.matcher.IsQuestion(msg.Text) {
		p.QuestionCount++
	}

	d.Trigger.SignalTotal += len(sigs)
	if m.matcher.IsUltraStrong(msg.Text) {
		d.Trigger.UltraStrongSeen = true
	}
	if !d.Business && len(sigs) > 0 {
		d.Business = true
	}
}

// evictOverflow drops the least recently active dialogue when the set is
// over capacity. Caller holds the lock.
func (m *Manager) evictOverflow() {
	for len(m.active) > m.cfg.MaxActive {
		var oldest *models.DialogueContext
		for _, d := range m.active {
			if oldest == nil || d.LastActivity.Before(oldest.LastActivity) {
				oldest = d
			}
		}
		if oldest == nil {
			return
		}
		delete(m.active, oldest.ID)
		m.logger.Warn().
			Str("dialogue_id", oldest.ID).
			Int("max_active", m.cfg.MaxActive).
			Msg("active set overflow, evicted least recently active dialogue")
	}
}

// Snapshot returns a deep copy of a dialogue for use outside the lock,
// typically to build an analyzer prompt.
func (m *Manager) Snapshot(id string) (models.DialogueContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.active[id]
	if !ok {
		return models.DialogueContext{}, false
	}
	return copyDialogue(d), true
}

func copyDialogue(d *models.DialogueContext) models.DialogueContext {
	cp := *d
	cp.Messages = append([]models.DialogueMessage(nil), d.Messages...)
	cp.Participants = make(map[int64]*models.Participant, len(d.Participants))
	for id, p := range d.Participants {
		pc := *p
		cp.Participants[id] = &pc
	}
	cp.Trigger.Analyses = append([]time.Time(nil), d.Trigger.Analyses...)
	cp.Trigger.NotifiedProbability = make(map[int64]int, len(d.Trigger.NotifiedProbability))
	for id, v := range d.Trigger.NotifiedProbability {
		cp.Trigger.NotifiedProbability[id] = v
	}
	return cp
}

// With runs fn on the live dialogue under the lock. fn must not block.
func (m *Manager) With(id string, fn func(d *models.DialogueContext)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.active[id]
	if !ok {
		return ErrNotFound
	}
	fn(d)
	return nil
}

// BeginAnalysis marks the dialogue as under analysis and records the
// invocation. Returns false when the dialogue is gone or already being
// analyzed, making a second concurrent trigger a no-op.
func (m *Manager) BeginAnalysis(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.active[id]
	if !ok || d.Trigger.Analyzing {
		return false
	}
	now := m.now()
	d.Trigger.Analyzing = true
	d.Trigger.Analyses = append(d.Trigger.Analyses, now)
	d.Trigger.Prune(now, m.cfg.HistoryRetention)
	d.Trigger.MessagesAtLastAnalysis = len(d.Messages)
	return true
}

// EndAnalysis clears the in-progress marker. Safe on a consumed dialogue.
func (m *Manager) EndAnalysis(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.active[id]; ok {
		d.Trigger.Analyzing = false
	}
}

// Consume removes a dialogue after a completed valuable analysis.
func (m *Manager) Consume(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[id]; ok {
		delete(m.active, id)
		m.logger.Info().Str("dialogue_id", id).Msg("dialogue consumed after analysis")
	}
}

// Expire removes dialogues idle past the timeout or older than the hard
// maximum, regardless of analysis history, and returns their ids.
func (m *Manager) Expire() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	for id, d := range m.active {
		idle := now.Sub(d.LastActivity)
		age := now.Sub(d.StartedAt)
		if idle > m.cfg.Timeout || age > m.cfg.MaxDuration {
			delete(m.active, id)
			expired = append(expired, id)
			m.logger.Info().
				Str("dialogue_id", id).
				Dur("idle", idle).
				Dur("age", age).
				Int("messages", len(d.Messages)).
				Msg("dialogue expired")
		}
	}
	return expired
}

// ActiveIDs returns the ids of all active dialogues, for the sweep.
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount reports the active set size, for the status endpoint.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
