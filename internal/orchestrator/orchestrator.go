// Package orchestrator runs triggered analyses end to end: mark the
// dialogue, call the analyzer without holding engine locks, interpret the
// verdict, and drive lead records and operator notifications.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/analyzer"
	"github.com/leadwatch/internal/dialogue"
	"github.com/leadwatch/internal/leads"
	"github.com/leadwatch/internal/notify"
	"github.com/leadwatch/pkg/models"
)

// Config holds the lead qualification thresholds.
type Config struct {
	// LeadThreshold is the minimum participant probability that produces
	// a lead and a notification.
	LeadThreshold int `koanf:"lead_threshold"`
	// RelaxedThreshold replaces LeadThreshold once ultra-strong commitment
	// language was seen in the dialogue.
	RelaxedThreshold int `koanf:"relaxed_threshold"`
	// ExcerptMessages is how many of a participant's messages go into the
	// persisted transcript excerpt.
	ExcerptMessages int `koanf:"excerpt_messages"`
}

// DefaultConfig returns the standard qualification thresholds.
func DefaultConfig() Config {
	return Config{
		LeadThreshold:    60,
		RelaxedThreshold: 50,
		ExcerptMessages:  5,
	}
}

// Stats are the orchestrator's lifetime counters, for the status endpoint.
type Stats struct {
	Analyses            int64 `json:"analyses"`
	ValuableAnalyses    int64 `json:"valuable_analyses"`
	LeadsCreated        int64 `json:"leads_created"`
	NotificationsSent   int64 `json:"notifications_sent"`
	NotificationsFailed int64 `json:"notifications_failed"`
	LeadStoreFailures   int64 `json:"lead_store_failures"`
}

// Orchestrator wires the analyzer verdicts into leads and notifications.
type Orchestrator struct {
	cfg      Config
	manager  *dialogue.Manager
	analyzer analyzer.Analyzer
	sink     leads.Sink
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	analyses            atomic.Int64
	valuable            atomic.Int64
	leadsCreated        atomic.Int64
	notificationsSent   atomic.Int64
	notificationsFailed atomic.Int64
	leadStoreFailures   atomic.Int64
}

// New builds the orchestrator.
func New(cfg Config, manager *dialogue.Manager, a analyzer.Analyzer, sink leads.Sink, notifier notify.Notifier, logger zerolog.Logger) *Orchestrator {
	if cfg.LeadThreshold <= 0 {
		cfg.LeadThreshold = DefaultConfig().LeadThreshold
	}
	if cfg.RelaxedThreshold <= 0 {
		cfg.RelaxedThreshold = DefaultConfig().RelaxedThreshold
	}
	if cfg.ExcerptMessages <= 0 {
		cfg.ExcerptMessages = DefaultConfig().ExcerptMessages
	}
	return &Orchestrator{
		cfg:      cfg,
		manager:  manager,
		analyzer: a,
		sink:     sink,
		notifier: notifier,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// AnalyzeNow runs one analysis for the dialogue. A second call while one
// is outstanding, or a stale id, is a silent no-op. The analyzer call
// happens on a snapshot so no engine lock is held during the only long
// suspension in the pipeline.
func (o *Orchestrator) AnalyzeNow(ctx context.Context, dialogueID string) {
	if !o.manager.BeginAnalysis(dialogueID) {
		return
	}
	defer o.manager.EndAnalysis(dialogueID)

	snap, ok := o.manager.Snapshot(dialogueID)
	if !ok {
		return
	}

	o.analyses.Add(1)
	analysis, err := o.analyzer.AnalyzeDialogue(ctx, snap)
	if err != nil {
		// The resilient analyzer degrades internally; an error here means
		// even the fallback failed, which keyword scoring never does.
		o.logger.Error().Err(err).Str("dialogue_id", dialogueID).Msg("analysis failed entirely")
		return
	}

	o.logger.Info().
		Str("dialogue_id", dialogueID).
		Str("source", analysis.Source).
		Bool("valuable", analysis.Valuable).
		Int("confidence", analysis.ConfidenceScore).
		Int("potential_leads", len(analysis.PotentialLeads)).
		Msg("analysis completed")

	if !analysis.Valuable {
		return
	}
	o.valuable.Add(1)

	threshold := o.cfg.LeadThreshold
	if snap.Trigger.UltraStrongSeen {
		threshold = o.cfg.RelaxedThreshold
	}

	qualified := o.qualify(ctx, dialogueID, snap, analysis, threshold)
	if len(qualified) == 0 {
		return
	}

	o.sendNotification(ctx, snap, analysis, qualified)

	// A valuable analysis that produced notified leads consumes the
	// dialogue; anything after this point is a new conversation.
	o.manager.Consume(dialogueID)
}

// qualify filters assessments by threshold and the keep-highest dedup,
// persists leads, and updates live participant state.
func (o *Orchestrator) qualify(ctx context.Context, dialogueID string, snap models.DialogueContext, analysis models.DialogueAnalysis, threshold int) []models.ParticipantAssessment {
	var qualified []models.ParticipantAssessment
	for _, assessment := range analysis.PotentialLeads {
		if assessment.LeadProbability < threshold {
			continue
		}
		if prev, ok := snap.Trigger.NotifiedProbability[assessment.UserID]; ok && assessment.LeadProbability <= prev {
			// Already notified at this strength or better.
			continue
		}

		p, known := snap.Participants[assessment.UserID]
		if !known {
			o.logger.Warn().
				Str("dialogue_id", dialogueID).
				Int64("user_id", assessment.UserID).
				Msg("analyzer assessed a user outside the dialogue, skipping")
			continue
		}

		lead := models.Lead{
			TelegramID:        assessment.UserID,
			Username:          p.Username,
			FirstName:         p.FirstName,
			LastName:          p.LastName,
			SourceChannel:     snap.ChannelTitle,
			InterestScore:     assessment.LeadProbability,
			Quality:           assessment.LeadQuality,
			Signals:           assessment.KeySignals,
			TranscriptExcerpt: snap.ParticipantExcerpt(assessment.UserID, o.cfg.ExcerptMessages),
			DialogueID:        dialogueID,
			RoleInDecision:    assessment.RoleInDecision,
			CreatedAt:         o.now(),
		}
		if err := o.sink.CreateOrUpdate(ctx, lead); err != nil {
			o.leadStoreFailures.Add(1)
			o.logger.Error().Err(err).Int64("user_id", assessment.UserID).Msg("failed to store lead")
			// Still notify; losing the alert over a storage hiccup is worse.
		} else {
			o.leadsCreated.Add(1)
		}

		o.recordAssessment(dialogueID, assessment)
		qualified = append(qualified, assessment)
	}
	return qualified
}

// recordAssessment writes the assessment back onto the live dialogue:
// probability refresh, decision-role upgrades, and the notified watermark.
func (o *Orchestrator) recordAssessment(dialogueID string, assessment models.ParticipantAssessment) {
	err := o.manager.With(dialogueID, func(d *models.DialogueContext) {
		if d.Trigger.NotifiedProbability == nil {
			d.Trigger.NotifiedProbability = make(map[int64]int)
		}
		if assessment.LeadProbability > d.Trigger.NotifiedProbability[assessment.UserID] {
			d.Trigger.NotifiedProbability[assessment.UserID] = assessment.LeadProbability
		}
		p, ok := d.Participants[assessment.UserID]
		if !ok {
			return
		}
		if float64(assessment.LeadProbability) > p.LeadProbability {
			p.LeadProbability = float64(assessment.LeadProbability)
		}
		switch assessment.RoleInDecision {
		case string(models.RoleBudgetHolder):
			p.Role = models.RoleBudgetHolder
		case string(models.RoleDecisionMaker):
			p.Role = models.RoleDecisionMaker
		}
	})
	if err != nil && !errors.Is(err, dialogue.ErrNotFound) {
		o.logger.Warn().Err(err).Str("dialogue_id", dialogueID).Msg("failed to record assessment")
	}
}

func (o *Orchestrator) sendNotification(ctx context.Context, snap models.DialogueContext, analysis models.DialogueAnalysis, qualified []models.ParticipantAssessment) {
	n := models.Notification{
		Tier:               tierFor(analysis.PriorityLevel),
		ChannelTitle:       snap.ChannelTitle,
		Summary:            analysis.Summary,
		ConfidenceScore:    analysis.ConfidenceScore,
		BusinessRelevance:  analysis.BusinessRelevance,
		ParticipantCount:   len(snap.Participants),
		MessageCount:       len(snap.Messages),
		KeyInsights:        analysis.KeyInsights,
		RecommendedActions: analysis.RecommendedActions,
		NextBestAction:     analysis.NextBestAction,
	}
	for _, assessment := range qualified {
		p := snap.Participants[assessment.UserID]
		n.Breakdown = append(n.Breakdown, models.ParticipantLine{
			Name:        p.DisplayName(),
			Username:    p.Username,
			Probability: assessment.LeadProbability,
			Quality:     assessment.LeadQuality,
		})
	}

	if err := o.notifier.Notify(ctx, n); err != nil {
		o.notificationsFailed.Add(1)
		o.logger.Error().Err(err).Str("dialogue_id", snap.ID).Msg("operator notification failed")
		return
	}
	o.notificationsSent.Add(1)
}

func tierFor(priority string) string {
	switch priority {
	case "urgent", "high":
		return priority
	default:
		return "medium"
	}
}

// Snapshot returns the lifetime counters.
func (o *Orchestrator) Snapshot() Stats {
	return Stats{
		Analyses:            o.analyses.Load(),
		ValuableAnalyses:    o.valuable.Load(),
		LeadsCreated:        o.leadsCreated.Load(),
		NotificationsSent:   o.notificationsSent.Load(),
		NotificationsFailed: o.notificationsFailed.Load(),
		LeadStoreFailures:   o.leadStoreFailures.Load(),
	}
}
