package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

// Weights for the keyword scorer. Decision language weighs most since it
// marks the end of a buying cycle, not the start.
const (
	weightBusiness = 20
	weightUrgency  = 15
	weightDecision = 25
)

// Heuristic is the local keyword scorer. It never fails and carries lower
// confidence than a model-backed result.
type Heuristic struct {
	matcher *signals.Matcher
	logger  zerolog.Logger
}

// NewHeuristic builds the fallback scorer.
func NewHeuristic(matcher *signals.Matcher, logger zerolog.Logger) *Heuristic {
	return &Heuristic{
		matcher: matcher,
		logger:  logger.With().Str("component", "heuristic").Logger(),
	}
}

// AnalyzeDialogue scores every participant from their own messages.
func (h *Heuristic) AnalyzeDialogue(_ context.Context, d models.DialogueContext) (models.DialogueAnalysis, error) {
	var leads []models.ParticipantAssessment
	best := 0
	for userID, p := range d.Participants {
		score, keySignals, urgent := h.scoreParticipant(d, userID)
		if score > best {
			best = score
		}
		if score <= 0 {
			continue
		}
		assessment := models.ParticipantAssessment{
			UserID:          userID,
			LeadProbability: score,
			LeadQuality:     qualityFor(score),
			KeySignals:      keySignals,
			RoleInDecision:  string(p.Role),
		}
		if urgent {
			assessment.UrgencyIndicators = []string{"urgent timeline mentioned"}
		}
		leads = append(leads, assessment)
	}

	valuable := best >= 60
	analysis := models.DialogueAnalysis{
		Valuable:          valuable,
		ConfidenceScore:   best / 2, // keyword matching earns half the confidence of a model
		BusinessRelevance: best,
		PotentialLeads:    leads,
		Summary: fmt.Sprintf("Keyword scan of %d messages from %d participants in %s",
			len(d.Messages), len(d.Participants), d.ChannelTitle),
		PriorityLevel: priorityFor(best),
		Source:        SourceHeuristic,
	}
	if valuable {
		analysis.NextBestAction = "review transcript and contact the strongest participant"
	}

	h.logger.Debug().
		Str("dialogue_id", d.ID).
		Int("best_score", best).
		Int("leads", len(leads)).
		Msg("heuristic dialogue scoring done")

	return analysis, nil
}

// AnalyzeMessage scores a single out-of-dialogue message.
func (h *Heuristic) AnalyzeMessage(_ context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error) {
	score := h.scoreText(msg.Text, sigs)
	analysis := models.DialogueAnalysis{
		Valuable:          score >= 60,
		ConfidenceScore:   score / 2,
		BusinessRelevance: score,
		Summary:           fmt.Sprintf("Keyword scan of a message from %s", msg.DisplayName()),
		PriorityLevel:     priorityFor(score),
		Source:            SourceHeuristic,
	}
	if score > 0 {
		analysis.PotentialLeads = []models.ParticipantAssessment{{
			UserID:          msg.SenderID,
			LeadProbability: score,
			LeadQuality:     qualityFor(score),
			KeySignals:      sigs,
			RoleInDecision:  string(models.RoleParticipant),
		}}
	}
	return analysis, nil
}

func (h *Heuristic) scoreParticipant(d models.DialogueContext, userID int64) (int, []string, bool) {
	seen := make(map[string]struct{})
	score := 0
	urgent := false
	for _, m := range d.Messages {
		if m.SenderID != userID {
			continue
		}
		score += h.scoreText(m.Text, m.Signals)
		for _, s := range m.Signals {
			seen[s] = struct{}{}
		}
		if m.Urgency == models.UrgencyHigh || m.Urgency == models.UrgencyImmediate {
			urgent = true
		}
	}
	keySignals := make([]string, 0, len(seen))
	for s := range seen {
		keySignals = append(keySignals, s)
	}
	return clampScore(score), keySignals, urgent
}

func (h *Heuristic) scoreText(text string, sigs []string) int {
	score := 0
	for _, s := range sigs {
		switch s {
		case signals.CategoryDecisionMaking:
			score += weightDecision
		case signals.CategoryUrgency:
			score += weightUrgency
		default:
			score += weightBusiness
		}
	}
	if sigs == nil && h.matcher.HasBusiness(strings.ToLower(text)) {
		score += weightBusiness
	}
	switch h.matcher.Urgency(text) {
	case models.UrgencyHigh, models.UrgencyImmediate:
		score += weightUrgency
	}
	return clampScore(score)
}

func priorityFor(score int) string {
	switch {
	case score >= 80:
		return "urgent"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}
