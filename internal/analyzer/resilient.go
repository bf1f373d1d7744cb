package analyzer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/leadwatch/internal/retry"
	"github.com/leadwatch/pkg/models"
)

// Resilient wraps a primary analyzer with a timeout, a rate limiter,
// bounded retries, and a heuristic fallback. Every call returns a scored
// result; primary failure is a logged degradation, never an error the
// ingest path sees.
type Resilient struct {
	primary  Analyzer
	fallback Analyzer
	limiter  *rate.Limiter
	timeout  time.Duration
	retryCfg retry.Config
	logger   zerolog.Logger

	llmCalls      atomic.Int64
	fallbackCalls atomic.Int64
}

// NewResilient builds the wrapper. primary may be nil, in which case every
// call goes straight to the fallback.
func NewResilient(primary, fallback Analyzer, cfg Config, logger zerolog.Logger) *Resilient {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = DefaultConfig().RatePerMinute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Resilient{
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		timeout:  timeout,
		retryCfg: retry.AnalyzerConfig(),
		logger:   logger.With().Str("component", "analyzer").Logger(),
	}
}

// AnalyzeDialogue scores a dialogue, degrading to the fallback on any
// primary failure.
func (r *Resilient) AnalyzeDialogue(ctx context.Context, d models.DialogueContext) (models.DialogueAnalysis, error) {
	return r.analyze(ctx, func(ctx context.Context, a Analyzer) (models.DialogueAnalysis, error) {
		return a.AnalyzeDialogue(ctx, d)
	})
}

// AnalyzeMessage scores a standalone message with the same degradation.
func (r *Resilient) AnalyzeMessage(ctx context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error) {
	return r.analyze(ctx, func(ctx context.Context, a Analyzer) (models.DialogueAnalysis, error) {
		return a.AnalyzeMessage(ctx, msg, sigs)
	})
}

func (r *Resilient) analyze(ctx context.Context, call func(context.Context, Analyzer) (models.DialogueAnalysis, error)) (models.DialogueAnalysis, error) {
	if r.primary != nil && r.limiter.Allow() {
		var analysis models.DialogueAnalysis
		result := retry.Do(ctx, r.retryCfg, r.logger, func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			var err error
			analysis, err = call(callCtx, r.primary)
			return err
		})
		if result.Success {
			r.llmCalls.Add(1)
			return analysis, nil
		}
		r.logger.Warn().
			Err(result.LastError).
			Int("attempts", result.Attempts).
			Msg("primary analyzer failed, falling back to heuristic")
	} else if r.primary != nil {
		r.logger.Debug().Msg("analyzer rate limit reached, using heuristic")
	}

	r.fallbackCalls.Add(1)
	return call(ctx, r.fallback)
}

// Stats reports how often each path was taken, for the status endpoint.
func (r *Resilient) Stats() (llmCalls, fallbackCalls int64) {
	return r.llmCalls.Load(), r.fallbackCalls.Load()
}
