// Package api exposes engine health and counters over HTTP for operators
// and deployment probes.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/leadwatch/internal/ingest"
	"github.com/leadwatch/internal/orchestrator"
	"github.com/leadwatch/pkg/models"
)

// Config holds the HTTP listener settings.
type Config struct {
	// Addr is the listen address, empty disables the API.
	Addr string `koanf:"addr"`
}

// Sources supplies the live counters the status endpoint reports and the
// handler the ingest endpoint feeds.
type Sources struct {
	Ingest          func() ingest.Stats
	Orchestrator    func() orchestrator.Stats
	ActiveDialogues func() int
	AnalyzerStats   func() (llmCalls, fallbackCalls int64)
	// HandleMessage receives messages posted to /ingest. Nil disables the
	// endpoint.
	HandleMessage func(ctx context.Context, msg models.InboundMessage)
}

// Server is the engine's HTTP surface.
type Server struct {
	echo    *echo.Echo
	cfg     Config
	sources Sources
	logger  zerolog.Logger
	started time.Time
}

type statusResponse struct {
	Status          string             `json:"status"`
	UptimeSeconds   int64              `json:"uptime_seconds"`
	ActiveDialogues int                `json:"active_dialogues"`
	Pipeline        ingest.Stats       `json:"pipeline"`
	Analysis        orchestrator.Stats `json:"analysis"`
	AnalyzerLLM     int64              `json:"analyzer_llm_calls"`
	AnalyzerLocal   int64              `json:"analyzer_heuristic_calls"`
}

// New builds the server and registers its routes.
func New(cfg Config, sources Sources, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		cfg:     cfg,
		sources: sources,
		logger:  logger.With().Str("component", "api").Logger(),
		started: time.Now(),
	}

	e.GET("/healthz", s.health)
	e.GET("/status", s.status)
	if sources.HandleMessage != nil {
		e.POST("/ingest", s.ingestMessages)
	}
	return s
}

// ingestMessages accepts a single message object or an array of them from
// the transport layer.
func (s *Server) ingestMessages(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 4<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading payload")
	}

	var batch []models.InboundMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		var single models.InboundMessage
		if err := json.Unmarshal(body, &single); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid message payload")
		}
		batch = []models.InboundMessage{single}
	}

	accepted := 0
	for _, msg := range batch {
		if msg.ChannelID == 0 || msg.SenderID == 0 {
			continue
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		s.sources.HandleMessage(c.Request().Context(), msg)
		accepted++
	}
	return c.JSON(http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(c echo.Context) error {
	resp := statusResponse{
		Status:        "running",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.sources.ActiveDialogues != nil {
		resp.ActiveDialogues = s.sources.ActiveDialogues()
	}
	if s.sources.Ingest != nil {
		resp.Pipeline = s.sources.Ingest()
	}
	if s.sources.Orchestrator != nil {
		resp.Analysis = s.sources.Orchestrator()
	}
	if s.sources.AnalyzerStats != nil {
		resp.AnalyzerLLM, resp.AnalyzerLocal = s.sources.AnalyzerStats()
	}
	return c.JSON(http.StatusOK, resp)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("status API listening")
	err := s.echo.Start(s.cfg.Addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
