// Package ingest is the front door of the engine: every inbound message
// passes through here, gets classified, routed into the dialogue set or
// the standalone path, and may fan out into an asynchronous analysis.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/dialogue"
	"github.com/leadwatch/internal/individual"
	"github.com/leadwatch/internal/orchestrator"
	"github.com/leadwatch/internal/trigger"
	"github.com/leadwatch/internal/window"
	"github.com/leadwatch/pkg/models"
)

// Config tunes the pipeline.
type Config struct {
	// Channels is the monitored allowlist, entries are numeric ids or
	// @usernames. Empty means monitor everything.
	Channels []string `koanf:"channels"`
	// Workers caps concurrent analyses.
	Workers int `koanf:"workers"`
	// SweepInterval schedules the background expiry and re-trigger pass.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		SweepInterval: 30 * time.Second,
	}
}

// Stats are the pipeline's lifetime counters.
type Stats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	MessagesIgnored   int64 `json:"messages_ignored"`
	DialoguesCreated  int64 `json:"dialogues_created"`
	AnalysesQueued    int64 `json:"analyses_queued"`
	Sweeps            int64 `json:"sweeps"`
	DialoguesExpired  int64 `json:"dialogues_expired"`
}

// Processor runs the message pipeline. Per-channel mutexes serialize
// window classification and dialogue mutation for a channel while keeping
// channels independent; analyses run on worker slots off the hot path.
type Processor struct {
	cfg          Config
	classifier   *window.Classifier
	dialogues    *dialogue.Manager
	triggers     *trigger.Evaluator
	orchestrator *orchestrator.Orchestrator
	individual   *individual.Processor
	logger       zerolog.Logger

	allowIDs   map[int64]struct{}
	allowNames map[string]struct{}

	mu           sync.Mutex
	channelLocks map[int64]*sync.Mutex

	sem  chan struct{}
	wg   sync.WaitGroup
	cron *cron.Cron

	messages         atomic.Int64
	ignored          atomic.Int64
	dialoguesCreated atomic.Int64
	analysesQueued   atomic.Int64
	sweeps           atomic.Int64
	expired          atomic.Int64
}

// New wires the pipeline.
func New(cfg Config, classifier *window.Classifier, dialogues *dialogue.Manager, triggers *trigger.Evaluator, orch *orchestrator.Orchestrator, indiv *individual.Processor, logger zerolog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	p := &Processor{
		cfg:          cfg,
		classifier:   classifier,
		dialogues:    dialogues,
		triggers:     triggers,
		orchestrator: orch,
		individual:   indiv,
		logger:       logger.With().Str("component", "ingest").Logger(),
		allowIDs:     make(map[int64]struct{}),
		allowNames:   make(map[string]struct{}),
		channelLocks: make(map[int64]*sync.Mutex),
		sem:          make(chan struct{}, cfg.Workers),
	}
	for _, entry := range cfg.Channels {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if id, err := strconv.ParseInt(entry, 10, 64); err == nil {
			p.allowIDs[id] = struct{}{}
			continue
		}
		p.allowNames[strings.ToLower(strings.TrimPrefix(entry, "@"))] = struct{}{}
	}
	return p
}

// Monitored reports whether the channel is on the allowlist.
func (p *Processor) Monitored(msg models.InboundMessage) bool {
	if len(p.allowIDs) == 0 && len(p.allowNames) == 0 {
		return true
	}
	if _, ok := p.allowIDs[msg.ChannelID]; ok {
		return true
	}
	name := strings.ToLower(strings.TrimPrefix(msg.ChannelUsername, "@"))
	_, ok := p.allowNames[name]
	return ok && name != ""
}

// HandleMessage runs one message through the pipeline. Safe for concurrent
// use across channels; messages of the same channel are serialized.
func (p *Processor) HandleMessage(ctx context.Context, msg models.InboundMessage) {
	if !p.Monitored(msg) {
		p.ignored.Add(1)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		p.ignored.Add(1)
		return
	}
	p.messages.Add(1)

	lock := p.channelLock(msg.ChannelID)
	lock.Lock()

	w := p.classifier.Classify(msg.ChannelID, msg)
	if w.Kind == models.WindowIndividual {
		lock.Unlock()
		// Standalone scoring may call the analyzer, so it takes a worker
		// slot like dialogue analyses do.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-ctx.Done():
				return
			}
			p.individual.Process(ctx, msg)
		}()
		return
	}

	dialogueID, created := p.dialogues.Process(msg.ChannelID, msg, w)
	lock.Unlock()

	if created {
		p.dialoguesCreated.Add(1)
	}
	if dialogueID == "" {
		return
	}

	snap, ok := p.dialogues.Snapshot(dialogueID)
	if !ok {
		return
	}
	decision := p.triggers.ShouldAnalyzeNow(&snap, msg.Text)
	if !decision.Analyze {
		return
	}

	p.logger.Debug().
		Str("dialogue_id", dialogueID).
		Strs("reasons", decision.Reasons).
		Bool("ultra_strong", decision.UltraStrong).
		Msg("analysis triggered")

	p.queueAnalysis(ctx, dialogueID)
}

func (p *Processor) queueAnalysis(ctx context.Context, dialogueID string) {
	p.analysesQueued.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			return
		}
		p.orchestrator.AnalyzeNow(ctx, dialogueID)
	}()
}

// Start launches the background sweep.
func (p *Processor) Start(ctx context.Context) error {
	p.cron = cron.New()
	_, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.cfg.SweepInterval), func() {
		p.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	p.cron.Start()
	p.logger.Info().Dur("interval", p.cfg.SweepInterval).Msg("sweep scheduled")
	return nil
}

// Stop halts the sweep and waits for in-flight analyses.
func (p *Processor) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	p.wg.Wait()
}

// Sweep expires stale dialogues and re-evaluates aged triggers so a
// dialogue that went quiet right after qualifying still gets its analysis.
func (p *Processor) Sweep(ctx context.Context) {
	p.sweeps.Add(1)

	expired := p.dialogues.Expire()
	p.expired.Add(int64(len(expired)))

	for _, id := range p.dialogues.ActiveIDs() {
		snap, ok := p.dialogues.Snapshot(id)
		if !ok || snap.Trigger.Analyzing {
			continue
		}
		decision := p.triggers.ShouldAnalyzeNow(&snap, "")
		if decision.Analyze {
			p.queueAnalysis(ctx, id)
		}
	}
}

func (p *Processor) channelLock(channelID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.channelLocks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		p.channelLocks[channelID] = lock
	}
	return lock
}

// Snapshot returns the pipeline counters.
func (p *Processor) Snapshot() Stats {
	return Stats{
		MessagesProcessed: p.messages.Load(),
		MessagesIgnored:   p.ignored.Load(),
		DialoguesCreated:  p.dialoguesCreated.Load(),
		AnalysesQueued:    p.analysesQueued.Load(),
		Sweeps:            p.sweeps.Load(),
		DialoguesExpired:  p.expired.Load(),
	}
}
