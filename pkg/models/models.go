// Package models contains the shared data model for the dialogue detection
// and trigger-based analysis engine: inbound message events, dialogue
// aggregates and their participants, transient message windows, trigger
// bookkeeping, analyzer results, and the lead/notification records emitted
// towards the persistence and operator-notification layers.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Urgency classifies how time-pressed a message sounds.
type Urgency string

const (
	UrgencyNone      Urgency = "none"
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// Role describes a participant's function within a dialogue. Roles are
// recomputed, never append-only.
type Role string

const (
	RoleInitiator             Role = "initiator"
	RoleActiveParticipant     Role = "active_participant"
	RoleInterestedParticipant Role = "interested_participant"
	RoleInquirer              Role = "inquirer"
	RoleBudgetHolder          Role = "budget_holder"
	RoleDecisionMaker         Role = "decision_maker"
	RoleObserver              Role = "observer"
	RoleNewParticipant        Role = "new_participant"
	RoleParticipant           Role = "participant"
)

// WindowKind is the conversation shape a message window was classified as.
type WindowKind string

const (
	WindowIndividual WindowKind = "individual"
	WindowDialogue   WindowKind = "dialogue"
	WindowGroupChat  WindowKind = "group_chat"
)

// Lead quality buckets returned by the analyzer.
const (
	QualityHot  = "hot"
	QualityWarm = "warm"
	QualityCold = "cold"
)

// InboundMessage is the event delivered by the chat-transport layer. The
// engine never talks to Telegram directly; this is its entire view of the
// outside world.
type InboundMessage struct {
	ChannelID       int64     `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	ChannelUsername string    `json:"channel_username"`
	SenderID        int64     `json:"sender_id"`
	SenderUsername  string    `json:"sender_username"`
	SenderFirstName string    `json:"sender_first_name"`
	SenderLastName  string    `json:"sender_last_name"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	MessageID       int64     `json:"message_id"`
	// Zero when the message is not a reply.
	ReplyToMessageID int64 `json:"reply_to_message_id,omitempty"`
	ReplyToUserID    int64 `json:"reply_to_user_id,omitempty"`
}

// DisplayName returns a human-readable sender name with a stable fallback.
func (m InboundMessage) DisplayName() string {
	if m.SenderFirstName != "" {
		return m.SenderFirstName
	}
	return fmt.Sprintf("User_%d", m.SenderID)
}

// Participant is one user's role and activity within a dialogue.
type Participant struct {
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	Role           Role      `json:"role"`
	MessageCount   int       `json:"message_count"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	SignalCount    int       `json:"signal_count"`
	QuestionCount  int       `json:"question_count"`
	// LeadProbability is refreshed from the latest analysis, never averaged.
	LeadProbability float64 `json:"lead_probability"`
}

// DisplayName returns a human-readable name with a stable fallback.
func (p *Participant) DisplayName() string {
	if p.FirstName != "" {
		return p.FirstName
	}
	return fmt.Sprintf("User_%d", p.UserID)
}

// DialogueMessage is a message appended to a dialogue. Immutable once
// appended; ordering is arrival order.
type DialogueMessage struct {
	SenderID         int64     `json:"sender_id"`
	SenderUsername   string    `json:"sender_username,omitempty"`
	SenderFirstName  string    `json:"sender_first_name,omitempty"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	MessageID        int64     `json:"message_id"`
	ReplyToMessageID int64     `json:"reply_to_message_id,omitempty"`
	ReplyToUserID    int64     `json:"reply_to_user_id,omitempty"`
	Signals          []string  `json:"signals,omitempty"`
	Urgency          Urgency   `json:"urgency"`
	Sentiment        string    `json:"sentiment"`
}

// TriggerState is per-dialogue bookkeeping for the trigger evaluator and
// orchestrator. In-memory only; lost on restart by design.
type TriggerState struct {
	// Analyses holds the timestamps of past analyzer invocations, pruned to
	// the last hour.
	Analyses []time.Time `json:"analyses"`
	// Analyzing is the mutual-exclusion marker set while an analysis is
	// outstanding.
	Analyzing bool `json:"analyzing"`
	// SignalTotal is the cumulative purchase-signal count across all
	// participants.
	SignalTotal int `json:"signal_total"`
	// MessagesAtLastAnalysis records dialogue size when the analyzer last
	// ran, for the sustained-growth re-trigger.
	MessagesAtLastAnalysis int `json:"messages_at_last_analysis"`
	// UltraStrongSeen is set once any message carried an ultra-strong
	// signal; it relaxes the lead quality threshold.
	UltraStrongSeen bool `json:"ultra_strong_seen"`
	// NotifiedProbability maps participant id to the strongest probability
	// already notified for, so weaker re-assessments stay quiet.
	NotifiedProbability map[int64]int `json:"notified_probability,omitempty"`
}

// Prune drops analysis timestamps older than the retention window.
func (t *TriggerState) Prune(now time.Time, retention time.Duration) {
	if len(t.Analyses) == 0 {
		return
	}
	kept := t.Analyses[:0]
	for _, ts := range t.Analyses {
		if now.Sub(ts) <= retention {
			kept = append(kept, ts)
		}
	}
	t.Analyses = kept
}

// LastAnalysis returns the most recent invocation timestamp, if any.
func (t *TriggerState) LastAnalysis() (time.Time, bool) {
	if len(t.Analyses) == 0 {
		return time.Time{}, false
	}
	return t.Analyses[len(t.Analyses)-1], true
}

// DialogueContext is the aggregate owned by the lifecycle manager: all
// state for one detected multi-party conversation in one channel.
type DialogueContext struct {
	ID            string                 `json:"dialogue_id"`
	ChannelID     int64                  `json:"channel_id"`
	ChannelTitle  string                 `json:"channel_title"`
	Participants  map[int64]*Participant `json:"participants"`
	Messages      []DialogueMessage      `json:"messages"`
	StartedAt     time.Time              `json:"started_at"`
	LastActivity  time.Time              `json:"last_activity"`
	Business      bool                   `json:"business_related"`
	Kind          WindowKind             `json:"kind"`
	DecisionStage string                 `json:"decision_stage"`
	Trigger       TriggerState           `json:"trigger"`
}

// Transcript renders the last n messages as "[HH:MM] name: text" lines, the
// shape the analyzer prompt and notification excerpts use.
func (d *DialogueContext) Transcript(n int) []string {
	msgs := d.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		name := m.SenderFirstName
		if name == "" {
			name = fmt.Sprintf("User_%d", m.SenderID)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), name, m.Text))
	}
	return lines
}

// ParticipantExcerpt joins a participant's last n messages for the lead
// record.
func (d *DialogueContext) ParticipantExcerpt(userID int64, n int) string {
	var texts []string
	for _, m := range d.Messages {
		if m.SenderID == userID {
			texts = append(texts, m.Text)
		}
	}
	if n > 0 && len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return strings.Join(texts, " | ")
}

// ParticipantAssessment is the analyzer's judgement of one participant.
// Probabilities are on a 0-100 scale.
type ParticipantAssessment struct {
	UserID            int64    `json:"user_id"`
	LeadProbability   int      `json:"lead_probability"`
	LeadQuality       string   `json:"lead_quality"`
	KeySignals        []string `json:"key_signals"`
	RoleInDecision    string   `json:"role_in_decision"`
	UrgencyIndicators []string `json:"urgency_indicators,omitempty"`
	BudgetRange       string   `json:"estimated_budget_range,omitempty"`
}

// DialogueAnalysis is the result shape shared by the external analyzer and
// the local heuristic scorer.
type DialogueAnalysis struct {
	Valuable           bool                    `json:"is_valuable_dialogue"`
	ConfidenceScore    int                     `json:"confidence_score"`
	BusinessRelevance  int                     `json:"business_relevance_score"`
	PotentialLeads     []ParticipantAssessment `json:"potential_leads"`
	Summary            string                  `json:"dialogue_summary"`
	KeyInsights        []string                `json:"key_insights"`
	RecommendedActions []string                `json:"recommended_actions"`
	NextBestAction     string                  `json:"next_best_action"`
	PriorityLevel      string                  `json:"priority_level"`
	EstimatedTimeline  string                  `json:"estimated_timeline,omitempty"`
	BudgetEstimate     string                  `json:"group_budget_estimate,omitempty"`
	// Source identifies which scorer produced the result ("llm" or
	// "heuristic").
	Source string `json:"-"`
}

// Lead is the record handed to the persistence layer.
type Lead struct {
	TelegramID        int64     `json:"telegram_id"`
	Username          string    `json:"username,omitempty"`
	FirstName         string    `json:"first_name,omitempty"`
	LastName          string    `json:"last_name,omitempty"`
	SourceChannel     string    `json:"source_channel"`
	InterestScore     int       `json:"interest_score"`
	Quality           string    `json:"quality"`
	Signals           []string  `json:"signals,omitempty"`
	TranscriptExcerpt string    `json:"transcript_excerpt,omitempty"`
	DialogueID        string    `json:"dialogue_id,omitempty"`
	RoleInDecision    string    `json:"role_in_decision,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ParticipantLine is one row of the per-participant breakdown in an
// operator notification.
type ParticipantLine struct {
	Name        string `json:"name"`
	Username    string `json:"username,omitempty"`
	Probability int    `json:"probability"`
	Quality     string `json:"quality"`
}

// Notification is the message queued towards the operator-notification
// layer.
type Notification struct {
	Tier               string            `json:"tier"`
	ChannelTitle       string            `json:"channel_title"`
	Summary            string            `json:"summary"`
	ConfidenceScore    int               `json:"confidence_score"`
	BusinessRelevance  int               `json:"business_relevance"`
	ParticipantCount   int               `json:"participant_count"`
	MessageCount       int               `json:"message_count"`
	Breakdown          []ParticipantLine `json:"breakdown,omitempty"`
	KeyInsights        []string          `json:"key_insights,omitempty"`
	RecommendedActions []string          `json:"recommended_actions,omitempty"`
	NextBestAction     string            `json:"next_best_action,omitempty"`
	Leads              []Lead            `json:"leads,omitempty"`
}
