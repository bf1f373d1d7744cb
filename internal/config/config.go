// Package config loads engine configuration from defaults, an optional
// TOML file, and LEADWATCH_-prefixed environment variables, in that order
// of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/leadwatch/internal/analyzer"
	"github.com/leadwatch/internal/api"
	"github.com/leadwatch/internal/dialogue"
	"github.com/leadwatch/internal/individual"
	"github.com/leadwatch/internal/ingest"
	"github.com/leadwatch/internal/notify"
	"github.com/leadwatch/internal/orchestrator"
	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/internal/trigger"
	"github.com/leadwatch/internal/window"
)

const envPrefix = "LEADWATCH_"

// Logging controls log output.
type Logging struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "console" or "json".
	Format string `koanf:"format"`
}

// Storage selects the lead sink.
type Storage struct {
	// DSN is the Postgres connection string; empty keeps leads in memory.
	DSN string `koanf:"dsn"`
}

// Config is the full engine configuration.
type Config struct {
	Logging      Logging             `koanf:"logging"`
	Ingest       ingest.Config       `koanf:"ingest"`
	Window       window.Config       `koanf:"window"`
	Dialogue     dialogue.Config     `koanf:"dialogue"`
	Trigger      trigger.Config      `koanf:"trigger"`
	Analyzer     analyzer.Config     `koanf:"analyzer"`
	Orchestrator orchestrator.Config `koanf:"orchestrator"`
	Individual   individual.Config   `koanf:"individual"`
	Keywords     signals.Config      `koanf:"keywords"`
	Notify       notify.Config       `koanf:"notify"`
	Storage      Storage             `koanf:"storage"`
	API          api.Config          `koanf:"api"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:      Logging{Level: "info", Format: "console"},
		Ingest:       ingest.DefaultConfig(),
		Window:       window.DefaultConfig(),
		Dialogue:     dialogue.DefaultConfig(),
		Trigger:      trigger.DefaultConfig(),
		Analyzer:     analyzer.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Individual:   individual.DefaultConfig(),
		Keywords:     signals.DefaultConfig(),
		API:          api.Config{Addr: ":8085"},
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// LEADWATCH_ANALYZER__API_KEY maps to analyzer.api_key; the double
	// underscore separates nesting levels so snake_case keys survive.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}

	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	switch strings.ToLower(c.Analyzer.Provider) {
	case "", "none", "openai", "anthropic", "claude", "gemini", "googleai", "ollama":
	default:
		return fmt.Errorf("unknown analyzer provider %q", c.Analyzer.Provider)
	}

	if c.Orchestrator.LeadThreshold < 0 || c.Orchestrator.LeadThreshold > 100 {
		return fmt.Errorf("orchestrator lead_threshold must be 0-100, got %d", c.Orchestrator.LeadThreshold)
	}
	if c.Orchestrator.RelaxedThreshold > c.Orchestrator.LeadThreshold {
		return fmt.Errorf("orchestrator relaxed_threshold %d must not exceed lead_threshold %d",
			c.Orchestrator.RelaxedThreshold, c.Orchestrator.LeadThreshold)
	}
	if c.Individual.NotifyThreshold < c.Individual.LeadThreshold {
		return fmt.Errorf("individual notify_threshold %d must not be below lead_threshold %d",
			c.Individual.NotifyThreshold, c.Individual.LeadThreshold)
	}

	if c.Notify.BotToken != "" && c.Notify.ChatID == 0 {
		return fmt.Errorf("notify.chat_id is required when notify.bot_token is set")
	}

	return nil
}

// LLMEnabled reports whether a model-backed analyzer should be built.
func (c Config) LLMEnabled() bool {
	p := strings.ToLower(c.Analyzer.Provider)
	if p == "" || p == "none" {
		return false
	}
	// Ollama runs without an API key; everything else needs one.
	return p == "ollama" || c.Analyzer.APIKey != ""
}
