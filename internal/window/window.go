// Package window maintains per-channel recent-message buffers and
// classifies the conversational shape of each new message: a standalone
// individual message, a two-party dialogue, or a multi-party group chat.
package window

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

// Config bounds the detection buffer.
type Config struct {
	// Size is the number of recent messages a classification looks at.
	Size int `koanf:"size"`
	// Horizon evicts messages older than this from the buffer.
	Horizon time.Duration `koanf:"horizon"`
	// QuickResponseGap is the maximum sender-to-sender gap that still
	// counts as a quick response.
	QuickResponseGap time.Duration `koanf:"quick_response_gap"`
}

// DefaultConfig returns the standard detection bounds.
func DefaultConfig() Config {
	return Config{
		Size:             8,
		Horizon:          15 * time.Minute,
		QuickResponseGap: 2 * time.Minute,
	}
}

// Window is the transient classification result for one incoming message.
// It is consumed immediately by the lifecycle manager and never stored.
type Window struct {
	Kind     models.WindowKind
	Messages []models.InboundMessage
	// Senders is the distinct sender count across the window.
	Senders int
	// Business is set when any window message carries business vocabulary.
	Business bool
	// QuickResponses counts cross-sender replies within the quick gap.
	QuickResponses int
	// HasReplyLink is set when any window message replies to another
	// sender's message.
	HasReplyLink bool
}

// Classifier keeps a bounded ring of recent messages per channel. All
// methods are safe for concurrent use, though the ingest layer already
// serializes per channel.
type Classifier struct {
	cfg     Config
	matcher *signals.Matcher
	logger  zerolog.Logger

	mu      sync.Mutex
	buffers map[int64][]models.InboundMessage
}

// NewClassifier builds a classifier over the given matcher.
func NewClassifier(cfg Config, matcher *signals.Matcher, logger zerolog.Logger) *Classifier {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultConfig().Horizon
	}
	if cfg.QuickResponseGap <= 0 {
		cfg.QuickResponseGap = DefaultConfig().QuickResponseGap
	}
	return &Classifier{
		cfg:     cfg,
		matcher: matcher,
		logger:  logger.With().Str("component", "window").Logger(),
		buffers: make(map[int64][]models.InboundMessage),
	}
}

// Classify appends the message to the channel buffer, evicts stale
// entries, and classifies the resulting window.
func (c *Classifier) Classify(channelID int64, msg models.InboundMessage) Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := append(c.buffers[channelID], msg)

	// Evict beyond the horizon, then beyond twice the window size.
	cutoff := msg.Timestamp.Add(-c.cfg.Horizon)
	start := 0
	for start < len(buf)-1 && buf[start].Timestamp.Before(cutoff) {
		start++
	}
	buf = buf[start:]
	if limit := 2 * c.cfg.Size; len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	c.buffers[channelID] = buf

	recent := buf
	if len(recent) > c.cfg.Size {
		recent = recent[len(recent)-c.cfg.Size:]
	}

	w := c.annotate(recent)
	w.Kind = c.classify(w, recent)

	c.logger.Debug().
		Int64("channel_id", channelID).
		Str("kind", string(w.Kind)).
		Int("senders", w.Senders).
		Int("window_messages", len(recent)).
		Bool("business", w.Business).
		Msg("classified message window")

	return w
}

// Forget drops a channel's buffer, used when a channel leaves the
// allowlist at runtime.
func (c *Classifier) Forget(channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, channelID)
}

func (c *Classifier) annotate(msgs []models.InboundMessage) Window {
	w := Window{Messages: msgs}

	senders := make(map[int64]int, len(msgs))
	idByMessage := make(map[int64]int64, len(msgs))
	for _, m := range msgs {
		senders[m.SenderID]++
		idByMessage[m.MessageID] = m.SenderID
		if !w.Business && c.matcher.HasBusiness(m.Text) {
			w.Business = true
		}
	}
	w.Senders = len(senders)

	for i, m := range msgs {
		if m.ReplyToMessageID != 0 {
			if origin, ok := idByMessage[m.ReplyToMessageID]; ok && origin != m.SenderID {
				w.HasReplyLink = true
			}
		}
		if m.ReplyToUserID != 0 && m.ReplyToUserID != m.SenderID {
			w.HasReplyLink = true
		}
		if i == 0 {
			continue
		}
		prev := msgs[i-1]
		if prev.SenderID != m.SenderID && m.Timestamp.Sub(prev.Timestamp) <= c.cfg.QuickResponseGap {
			w.QuickResponses++
		}
	}
	return w
}

func (c *Classifier) classify(w Window, msgs []models.InboundMessage) models.WindowKind {
	perSender := make(map[int64]int, w.Senders)
	for _, m := range msgs {
		perSender[m.SenderID]++
	}
	multiMessage := 0
	for _, n := range perSender {
		if n >= 2 {
			multiMessage++
		}
	}

	switch {
	case w.Senders <= 1:
		return models.WindowIndividual
	case w.Senders == 2:
		if w.HasReplyLink || w.QuickResponses >= 1 || multiMessage == 2 {
			return models.WindowDialogue
		}
		return models.WindowIndividual
	default:
		if w.QuickResponses >= 2 || multiMessage >= 3 {
			return models.WindowGroupChat
		}
		if multiMessage >= 2 || w.HasReplyLink {
			return models.WindowDialogue
		}
		return models.WindowIndividual
	}
}
