// Package individual scores standalone messages that never became part of
// a dialogue but carry business signals on their own.
package individual

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/analyzer"
	"github.com/leadwatch/internal/leads"
	"github.com/leadwatch/internal/notify"
	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

// Config tunes the standalone path.
type Config struct {
	// LeadThreshold stores a lead at this probability.
	LeadThreshold int `koanf:"lead_threshold"`
	// NotifyThreshold additionally alerts the operator.
	NotifyThreshold int `koanf:"notify_threshold"`
	// Cooldown is the per-user window between standalone analyses.
	Cooldown time.Duration `koanf:"cooldown"`
}

// DefaultConfig returns the standard standalone thresholds.
func DefaultConfig() Config {
	return Config{
		LeadThreshold:   50,
		NotifyThreshold: 70,
		Cooldown:        24 * time.Hour,
	}
}

// Processor runs the standalone scoring path.
type Processor struct {
	cfg      Config
	matcher  *signals.Matcher
	analyzer analyzer.Analyzer
	sink     leads.Sink
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	analyzed map[int64]time.Time

	scored        atomic.Int64
	leadsCreated  atomic.Int64
	notifications atomic.Int64
}

// New builds the processor.
func New(cfg Config, matcher *signals.Matcher, a analyzer.Analyzer, sink leads.Sink, notifier notify.Notifier, logger zerolog.Logger) *Processor {
	if cfg.LeadThreshold <= 0 {
		cfg.LeadThreshold = DefaultConfig().LeadThreshold
	}
	if cfg.NotifyThreshold <= 0 {
		cfg.NotifyThreshold = DefaultConfig().NotifyThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Processor{
		cfg:      cfg,
		matcher:  matcher,
		analyzer: a,
		sink:     sink,
		notifier: notifier,
		logger:   logger.With().Str("component", "individual").Logger(),
		now:      time.Now,
		analyzed: make(map[int64]time.Time),
	}
}

// SetClock overrides the time source, for tests.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Process scores a standalone message. Messages without business signals,
// and senders analyzed within the cooldown, are skipped.
func (p *Processor) Process(ctx context.Context, msg models.InboundMessage) {
	sigs := p.matcher.Extract(msg.Text)
	if len(sigs) == 0 && !p.matcher.HasBusiness(msg.Text) {
		return
	}
	if !p.claimSlot(msg.SenderID) {
		p.logger.Debug().Int64("sender_id", msg.SenderID).Msg("sender within analysis cooldown, skipping")
		return
	}

	p.scored.Add(1)
	analysis, err := p.analyzer.AnalyzeMessage(ctx, msg, sigs)
	if err != nil {
		p.logger.Error().Err(err).Int64("sender_id", msg.SenderID).Msg("standalone analysis failed entirely")
		return
	}

	probability := 0
	assessment := models.ParticipantAssessment{UserID: msg.SenderID}
	for _, lead := range analysis.PotentialLeads {
		if lead.UserID == msg.SenderID && lead.LeadProbability > probability {
			probability = lead.LeadProbability
			assessment = lead
		}
	}
	if probability < p.cfg.LeadThreshold {
		return
	}

	lead := models.Lead{
		TelegramID:        msg.SenderID,
		Username:          msg.SenderUsername,
		FirstName:         msg.SenderFirstName,
		LastName:          msg.SenderLastName,
		SourceChannel:     msg.ChannelTitle,
		InterestScore:     probability,
		Quality:           assessment.LeadQuality,
		Signals:           assessment.KeySignals,
		TranscriptExcerpt: msg.Text,
		RoleInDecision:    assessment.RoleInDecision,
		CreatedAt:         p.now(),
	}
	if err := p.sink.CreateOrUpdate(ctx, lead); err != nil {
		p.logger.Error().Err(err).Int64("sender_id", msg.SenderID).Msg("failed to store standalone lead")
	} else {
		p.leadsCreated.Add(1)
	}

	if probability < p.cfg.NotifyThreshold {
		return
	}

	n := models.Notification{
		Tier:              tierFor(probability),
		ChannelTitle:      msg.ChannelTitle,
		Summary:           analysis.Summary,
		ConfidenceScore:   analysis.ConfidenceScore,
		BusinessRelevance: analysis.BusinessRelevance,
		ParticipantCount:  1,
		MessageCount:      1,
		Breakdown: []models.ParticipantLine{{
			Name:        msg.DisplayName(),
			Username:    msg.SenderUsername,
			Probability: probability,
			Quality:     assessment.LeadQuality,
		}},
		NextBestAction: analysis.NextBestAction,
		Leads:          []models.Lead{lead},
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Error().Err(err).Int64("sender_id", msg.SenderID).Msg("standalone notification failed")
		return
	}
	p.notifications.Add(1)
}

// claimSlot reserves the sender's analysis slot if the cooldown allows,
// pruning expired entries as it goes.
func (p *Processor) claimSlot(senderID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, at := range p.analyzed {
		if now.Sub(at) > p.cfg.Cooldown {
			delete(p.analyzed, id)
		}
	}
	if at, ok := p.analyzed[senderID]; ok && now.Sub(at) <= p.cfg.Cooldown {
		return false
	}
	p.analyzed[senderID] = now
	return true
}

func tierFor(probability int) string {
	switch {
	case probability >= 85:
		return "urgent"
	case probability >= 70:
		return "high"
	default:
		return "medium"
	}
}

// Stats reports the path's lifetime counters.
func (p *Processor) Stats() (scored, leadsCreated, notifications int64) {
	return p.scored.Load(), p.leadsCreated.Load(), p.notifications.Load()
}
