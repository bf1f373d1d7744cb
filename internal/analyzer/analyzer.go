// Package analyzer scores dialogues and individual messages for lead
// potential. The expensive path talks to a language model; a keyword
// heuristic provides the always-available fallback so no triggered
// analysis ever goes unscored.
package analyzer

import (
	"context"
	"time"

	"github.com/leadwatch/pkg/models"
)

// Source labels on analysis results.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Analyzer scores conversations. Implementations must honor ctx deadlines.
type Analyzer interface {
	// AnalyzeDialogue scores a dialogue snapshot.
	AnalyzeDialogue(ctx context.Context, d models.DialogueContext) (models.DialogueAnalysis, error)
	// AnalyzeMessage scores a standalone message outside any dialogue.
	AnalyzeMessage(ctx context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error)
}

// Config selects and tunes the model-backed analyzer.
type Config struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	// RatePerMinute caps analyzer invocations across the engine.
	RatePerMinute int `koanf:"rate_per_minute"`
}

// DefaultConfig returns conservative analyzer settings.
func DefaultConfig() Config {
	return Config{
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		Temperature:   0.3,
		MaxTokens:     1500,
		Timeout:       20 * time.Second,
		RatePerMinute: 20,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func qualityFor(probability int) string {
	switch {
	case probability >= 80:
		return models.QualityHot
	case probability >= 60:
		return models.QualityWarm
	default:
		return models.QualityCold
	}
}
