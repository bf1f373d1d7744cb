package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/leadwatch/internal/analyzer"
	"github.com/leadwatch/internal/api"
	"github.com/leadwatch/internal/config"
	"github.com/leadwatch/internal/dialogue"
	"github.com/leadwatch/internal/individual"
	"github.com/leadwatch/internal/ingest"
	"github.com/leadwatch/internal/leads"
	"github.com/leadwatch/internal/logging"
	"github.com/leadwatch/internal/notify"
	"github.com/leadwatch/internal/orchestrator"
	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/internal/trigger"
	"github.com/leadwatch/internal/window"
	"github.com/leadwatch/pkg/models"
)

// RunCommand returns the run command
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the lead detection engine",
		Action: func(c *cli.Context) error {
			configPath := c.String("config")
			if _, err := os.Stat(configPath); err != nil {
				// Missing default config file is fine, env and defaults apply.
				configPath = ""
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return run(c.Context, cfg)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info().Msg("starting leadwatch")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matcher := signals.NewMatcher(cfg.Keywords)

	// Lead sink: Postgres when configured, memory otherwise.
	var sink leads.Sink
	if cfg.Storage.DSN != "" {
		store, err := leads.NewPostgresStore(ctx, cfg.Storage.DSN, logger)
		if err != nil {
			return fmt.Errorf("initializing lead store: %w", err)
		}
		defer store.Close()
		sink = store
		logger.Info().Msg("leads persisted to Postgres")
	} else {
		sink = leads.NewMemoryStore()
		logger.Warn().Msg("no storage.dsn configured, leads kept in memory only")
	}

	// Operator alerts: Telegram when a bot token is configured.
	var notifier notify.Notifier
	if cfg.Notify.BotToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.Notify, logger)
		logger.Info().Int64("chat_id", cfg.Notify.ChatID).Msg("operator alerts go to Telegram")
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Warn().Msg("no notify.bot_token configured, alerts logged only")
	}

	// Analyzer: model-backed when credentials allow, heuristic always as
	// the fallback.
	heuristic := analyzer.NewHeuristic(matcher, logger)
	var primary analyzer.Analyzer
	if cfg.LLMEnabled() {
		llm, err := analyzer.NewLLMAnalyzer(ctx, cfg.Analyzer, logger)
		if err != nil {
			return fmt.Errorf("initializing analyzer: %w", err)
		}
		primary = llm
		logger.Info().
			Str("provider", cfg.Analyzer.Provider).
			Str("model", cfg.Analyzer.Model).
			Msg("model-backed analyzer enabled")
	} else {
		logger.Warn().Msg("no analyzer credentials, running on keyword heuristics only")
	}
	resilient := analyzer.NewResilient(primary, heuristic, cfg.Analyzer, logger)

	classifier := window.NewClassifier(cfg.Window, matcher, logger)
	manager := dialogue.NewManager(cfg.Dialogue, matcher, logger)
	evaluator := trigger.NewEvaluator(cfg.Trigger, matcher)
	orch := orchestrator.New(cfg.Orchestrator, manager, resilient, sink, notifier, logger)
	indiv := individual.New(cfg.Individual, matcher, resilient, sink, notifier, logger)
	pipeline := ingest.New(cfg.Ingest, classifier, manager, evaluator, orch, indiv, logger)

	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	server := api.New(cfg.API, api.Sources{
		Ingest:          pipeline.Snapshot,
		Orchestrator:    orch.Snapshot,
		ActiveDialogues: manager.ActiveCount,
		AnalyzerStats:   resilient.Stats,
		HandleMessage: func(ctx context.Context, msg models.InboundMessage) {
			pipeline.HandleMessage(ctx, msg)
		},
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status API: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown failed")
	}
	pipeline.Stop()

	logger.Info().Msg("leadwatch stopped")
	return nil
}
