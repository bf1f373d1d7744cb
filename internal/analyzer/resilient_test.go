package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwatch/pkg/models"
)

type fakeAnalyzer struct {
	analysis models.DialogueAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzeDialogue(context.Context, models.DialogueContext) (models.DialogueAnalysis, error) {
	f.calls++
	return f.analysis, f.err
}

func (f *fakeAnalyzer) AnalyzeMessage(context.Context, models.InboundMessage, []string) (models.DialogueAnalysis, error) {
	f.calls++
	return f.analysis, f.err
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.RatePerMinute = 1000
	return cfg
}

func TestResilientPrefersPrimary(t *testing.T) {
	primary := &fakeAnalyzer{analysis: models.DialogueAnalysis{Valuable: true, Source: SourceLLM}}
	fallback := &fakeAnalyzer{analysis: models.DialogueAnalysis{Source: SourceHeuristic}}

	r := NewResilient(primary, fallback, fastConfig(), zerolog.Nop())
	r.retryCfg.BaseDelay = time.Millisecond

	analysis, err := r.AnalyzeDialogue(context.Background(), models.DialogueContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, analysis.Source)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)

	llm, fb := r.Stats()
	assert.EqualValues(t, 1, llm)
	assert.EqualValues(t, 0, fb)
}

func TestResilientFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeAnalyzer{err: errors.New("503 service unavailable")}
	fallback := &fakeAnalyzer{analysis: models.DialogueAnalysis{Valuable: true, Source: SourceHeuristic}}

	r := NewResilient(primary, fallback, fastConfig(), zerolog.Nop())
	r.retryCfg.BaseDelay = time.Millisecond
	r.retryCfg.MaxDelay = 2 * time.Millisecond

	analysis, err := r.AnalyzeDialogue(context.Background(), models.DialogueContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, analysis.Source)
	assert.Greater(t, primary.calls, 1, "retryable failure should be retried before falling back")
	assert.Equal(t, 1, fallback.calls)
}

func TestResilientNilPrimaryUsesFallback(t *testing.T) {
	fallback := &fakeAnalyzer{analysis: models.DialogueAnalysis{Source: SourceHeuristic}}

	r := NewResilient(nil, fallback, fastConfig(), zerolog.Nop())
	analysis, err := r.AnalyzeMessage(context.Background(), models.InboundMessage{}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, analysis.Source)
}

func TestResilientRateLimitSkipsPrimary(t *testing.T) {
	primary := &fakeAnalyzer{analysis: models.DialogueAnalysis{Source: SourceLLM}}
	fallback := &fakeAnalyzer{analysis: models.DialogueAnalysis{Source: SourceHeuristic}}

	cfg := fastConfig()
	cfg.RatePerMinute = 1
	r := NewResilient(primary, fallback, cfg, zerolog.Nop())

	first, err := r.AnalyzeDialogue(context.Background(), models.DialogueContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, first.Source)

	second, err := r.AnalyzeDialogue(context.Background(), models.DialogueContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, second.Source, "over-quota calls degrade to the heuristic")
}
