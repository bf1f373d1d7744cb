package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	internalllm "github.com/leadwatch/internal/llm"
	"github.com/leadwatch/pkg/models"
)

// LLMAnalyzer scores conversations through a langchaingo model.
type LLMAnalyzer struct {
	cfg    Config
	model  llms.Model
	logger zerolog.Logger
}

// NewLLMAnalyzer creates the model-backed analyzer for the configured
// provider.
func NewLLMAnalyzer(ctx context.Context, cfg Config, logger zerolog.Logger) (*LLMAnalyzer, error) {
	var (
		model llms.Model
		err   error
	)

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic", "claude":
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
	case "gemini", "googleai":
		model, err = googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey))
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithServerURL(base),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported analyzer provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s analyzer: %w", cfg.Provider, err)
	}

	return &LLMAnalyzer{
		cfg:    cfg,
		model:  model,
		logger: logger.With().Str("component", "llm_analyzer").Str("provider", cfg.Provider).Logger(),
	}, nil
}

// AnalyzeDialogue builds the dialogue prompt, calls the model, and parses
// the JSON verdict.
func (a *LLMAnalyzer) AnalyzeDialogue(ctx context.Context, d models.DialogueContext) (models.DialogueAnalysis, error) {
	prompt := a.dialoguePrompt(d)
	return a.generate(ctx, prompt)
}

// AnalyzeMessage scores a standalone message.
func (a *LLMAnalyzer) AnalyzeMessage(ctx context.Context, msg models.InboundMessage, sigs []string) (models.DialogueAnalysis, error) {
	prompt := a.messagePrompt(msg, sigs)
	return a.generate(ctx, prompt)
}

func (a *LLMAnalyzer) generate(ctx context.Context, prompt string) (models.DialogueAnalysis, error) {
	callOpts := []llms.CallOption{
		llms.WithTemperature(a.cfg.Temperature),
	}
	if a.cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(a.cfg.MaxTokens))
	}
	if strings.EqualFold(a.cfg.Provider, "gemini") || strings.EqualFold(a.cfg.Provider, "googleai") {
		callOpts = append(callOpts, llms.WithModel(a.cfg.Model))
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, a.model, prompt, callOpts...)
	if err != nil {
		return models.DialogueAnalysis{}, fmt.Errorf("model call: %w", err)
	}

	cleaned, err := internalllm.ExtractJSON(raw)
	if err != nil {
		return models.DialogueAnalysis{}, fmt.Errorf("parsing model verdict: %w", err)
	}

	var analysis models.DialogueAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return models.DialogueAnalysis{}, fmt.Errorf("decoding model verdict: %w", err)
	}

	normalize(&analysis)
	analysis.Source = SourceLLM

	a.logger.Debug().
		Bool("valuable", analysis.Valuable).
		Int("confidence", analysis.ConfidenceScore).
		Int("leads", len(analysis.PotentialLeads)).
		Msg("model analysis parsed")

	return analysis, nil
}

// normalize clamps scores and fills missing quality labels so downstream
// thresholds never see out-of-range values.
func normalize(a *models.DialogueAnalysis) {
	a.ConfidenceScore = clampScore(a.ConfidenceScore)
	a.BusinessRelevance = clampScore(a.BusinessRelevance)
	for i := range a.PotentialLeads {
		lead := &a.PotentialLeads[i]
		lead.LeadProbability = clampScore(lead.LeadProbability)
		if lead.LeadQuality == "" {
			lead.LeadQuality = qualityFor(lead.LeadProbability)
		}
	}
	if a.PriorityLevel == "" {
		a.PriorityLevel = priorityFor(a.ConfidenceScore)
	}
}

func (a *LLMAnalyzer) dialoguePrompt(d models.DialogueContext) string {
	var b strings.Builder
	b.WriteString("You are a B2B lead qualification analyst for a software services business.\n")
	b.WriteString("Analyze this group chat conversation and assess each participant's purchase intent.\n\n")

	fmt.Fprintf(&b, "Channel: %s\nParticipants:\n", d.ChannelTitle)
	for _, p := range d.Participants {
		fmt.Fprintf(&b, "- user_id=%d name=%s role=%s messages=%d signals=%d\n",
			p.UserID, p.DisplayName(), p.Role, p.MessageCount, p.SignalCount)
	}

	b.WriteString("\nConversation:\n")
	for _, line := range d.Transcript(30) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString(`
Respond with ONLY a JSON object in this exact shape:
{
  "is_valuable_dialogue": true,
  "confidence_score": 0,
  "business_relevance_score": 0,
  "potential_leads": [
    {
      "user_id": 0,
      "lead_probability": 0,
      "lead_quality": "hot|warm|cold",
      "key_signals": [""],
      "role_in_decision": "",
      "urgency_indicators": [""],
      "estimated_budget_range": ""
    }
  ],
  "dialogue_summary": "",
  "key_insights": [""],
  "recommended_actions": [""],
  "next_best_action": "",
  "priority_level": "urgent|high|medium|low",
  "estimated_timeline": "",
  "group_budget_estimate": ""
}
Scores are integers from 0 to 100. The conversation may be in Russian; answer in the language of the conversation.`)

	return b.String()
}

func (a *LLMAnalyzer) messagePrompt(msg models.InboundMessage, sigs []string) string {
	var b strings.Builder
	b.WriteString("You are a B2B lead qualification analyst.\n")
	b.WriteString("Assess the purchase intent of this single chat message.\n\n")
	fmt.Fprintf(&b, "Channel: %s\nSender: %s (user_id=%d)\n", msg.ChannelTitle, msg.DisplayName(), msg.SenderID)
	if len(sigs) > 0 {
		fmt.Fprintf(&b, "Detected signals: %s\n", strings.Join(sigs, ", "))
	}
	fmt.Fprintf(&b, "Message: %s\n", msg.Text)
	b.WriteString(`
Respond with ONLY a JSON object:
{
  "is_valuable_dialogue": false,
  "confidence_score": 0,
  "business_relevance_score": 0,
  "potential_leads": [
    {"user_id": 0, "lead_probability": 0, "lead_quality": "hot|warm|cold", "key_signals": [""], "role_in_decision": ""}
  ],
  "dialogue_summary": "",
  "next_best_action": "",
  "priority_level": "urgent|high|medium|low"
}
Scores are integers from 0 to 100.`)
	return b.String()
}
