// Package trigger decides when a dialogue has earned an analyzer
// invocation. The evaluator is side-effect free: it reads the dialogue and
// its trigger bookkeeping and returns a decision.
package trigger

import (
	"time"

	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

// Config holds the trigger thresholds and cooldowns.
type Config struct {
	// MinMessages fires the volume trigger.
	MinMessages int `koanf:"min_messages"`
	// MinParticipants fires the participation trigger.
	MinParticipants int `koanf:"min_participants"`
	// MinSignals fires the signal-accumulation trigger.
	MinSignals int `koanf:"min_signals"`
	// ElapsedInterval fires the elapsed-time trigger this long after the
	// last analysis.
	ElapsedInterval time.Duration `koanf:"elapsed_interval"`
	// Cooldown suppresses ordinary triggers this soon after an analysis.
	Cooldown time.Duration `koanf:"cooldown"`
	// GrowthMessages is the message growth since the last analysis that
	// counts as sustained interest.
	GrowthMessages int `koanf:"growth_messages"`
	// GrowthCooldown suppresses even sustained-growth re-analysis this
	// soon after the last one.
	GrowthCooldown time.Duration `koanf:"growth_cooldown"`
	// RecencyDepth is how many trailing messages the urgency trigger
	// inspects.
	RecencyDepth int `koanf:"recency_depth"`
}

// DefaultConfig returns the standard trigger tuning.
func DefaultConfig() Config {
	return Config{
		MinMessages:     3,
		MinParticipants: 2,
		MinSignals:      1,
		ElapsedInterval: 30 * time.Second,
		Cooldown:        30 * time.Second,
		GrowthMessages:  5,
		GrowthCooldown:  3 * time.Minute,
		RecencyDepth:    3,
	}
}

// Decision is the evaluator's verdict for one incoming message.
type Decision struct {
	Analyze bool
	// Reasons names every trigger class that fired, for logging.
	Reasons []string
	// UltraStrong is set when the current message bypassed cooldowns.
	UltraStrong bool
}

// Evaluator applies the trigger rules.
type Evaluator struct {
	cfg     Config
	matcher *signals.Matcher
	now     func() time.Time
}

// NewEvaluator builds an evaluator over the given matcher.
func NewEvaluator(cfg Config, matcher *signals.Matcher) *Evaluator {
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = DefaultConfig().MinMessages
	}
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = DefaultConfig().MinParticipants
	}
	if cfg.ElapsedInterval <= 0 {
		cfg.ElapsedInterval = DefaultConfig().ElapsedInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.GrowthMessages <= 0 {
		cfg.GrowthMessages = DefaultConfig().GrowthMessages
	}
	if cfg.GrowthCooldown <= 0 {
		cfg.GrowthCooldown = DefaultConfig().GrowthCooldown
	}
	if cfg.RecencyDepth <= 0 {
		cfg.RecencyDepth = DefaultConfig().RecencyDepth
	}
	return &Evaluator{cfg: cfg, matcher: matcher, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (e *Evaluator) SetClock(now func() time.Time) { e.now = now }

// ShouldAnalyzeNow evaluates the trigger rules for a dialogue after the
// given message text arrived. The dialogue is a snapshot; nothing here
// mutates engine state.
func (e *Evaluator) ShouldAnalyzeNow(d *models.DialogueContext, messageText string) Decision {
	now := e.now()
	ultra := e.matcher.IsUltraStrong(messageText)

	var reasons []string
	neverAnalyzed := len(d.Trigger.Analyses) == 0
	msgs := len(d.Messages)

	if msgs >= e.cfg.MinMessages {
		reasons = append(reasons, "volume")
	}
	if len(d.Participants) >= e.cfg.MinParticipants {
		reasons = append(reasons, "participation")
	}
	// Signal and elapsed-time triggers need a bit of context first: a
	// single message never fires them on its own.
	if msgs >= 2 && d.Trigger.SignalTotal >= e.cfg.MinSignals {
		reasons = append(reasons, "signals")
	}
	if last, ok := d.Trigger.LastAnalysis(); ok {
		if now.Sub(last) >= e.cfg.ElapsedInterval {
			reasons = append(reasons, "elapsed")
		}
	} else if msgs >= 2 {
		reasons = append(reasons, "elapsed")
	}
	if msgs >= 2 && e.recentUrgency(d) {
		reasons = append(reasons, "urgency")
	}

	if ultra {
		reasons = append(reasons, "ultra_strong")
		return Decision{Analyze: true, Reasons: reasons, UltraStrong: true}
	}

	if len(reasons) == 0 {
		return Decision{}
	}

	// Cooldowns apply only once an analysis has happened. A burst that
	// grew the dialogue by GrowthMessages is re-analyzed on the longer
	// cooldown so the burst is scored once, not per message.
	if !neverAnalyzed {
		last, _ := d.Trigger.LastAnalysis()
		since := now.Sub(last)
		grown := msgs-d.Trigger.MessagesAtLastAnalysis >= e.cfg.GrowthMessages
		if grown {
			reasons = append(reasons, "sustained_growth")
			if since < e.cfg.GrowthCooldown {
				return Decision{Reasons: reasons}
			}
		} else if since < e.cfg.Cooldown {
			return Decision{Reasons: reasons}
		}
	}

	return Decision{Analyze: true, Reasons: reasons}
}

func (e *Evaluator) recentUrgency(d *models.DialogueContext) bool {
	msgs := d.Messages
	if len(msgs) > e.cfg.RecencyDepth {
		msgs = msgs[len(msgs)-e.cfg.RecencyDepth:]
	}
	for _, m := range msgs {
		if m.Urgency == models.UrgencyHigh || m.Urgency == models.UrgencyImmediate {
			return true
		}
	}
	return false
}
