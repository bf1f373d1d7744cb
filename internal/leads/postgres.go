package leads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/leadwatch/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS leads (
    telegram_id        BIGINT PRIMARY KEY,
    username           TEXT,
    first_name         TEXT,
    last_name          TEXT,
    source_channel     TEXT NOT NULL,
    interest_score     INT NOT NULL,
    quality            TEXT NOT NULL,
    signals            TEXT[],
    transcript_excerpt TEXT,
    dialogue_id        TEXT,
    role_in_decision   TEXT,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS leads_quality_idx ON leads (quality);
CREATE INDEX IF NOT EXISTS leads_source_channel_idx ON leads (source_channel);
`

const upsertLead = `
INSERT INTO leads (
    telegram_id, username, first_name, last_name, source_channel,
    interest_score, quality, signals, transcript_excerpt, dialogue_id,
    role_in_decision, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (telegram_id) DO UPDATE SET
    username           = EXCLUDED.username,
    first_name         = EXCLUDED.first_name,
    last_name          = EXCLUDED.last_name,
    source_channel     = EXCLUDED.source_channel,
    interest_score     = EXCLUDED.interest_score,
    quality            = EXCLUDED.quality,
    signals            = EXCLUDED.signals,
    transcript_excerpt = EXCLUDED.transcript_excerpt,
    dialogue_id        = EXCLUDED.dialogue_id,
    role_in_decision   = EXCLUDED.role_in_decision,
    updated_at         = now()
WHERE EXCLUDED.interest_score >= leads.interest_score
`

// PostgresStore writes leads to a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to the database and ensures the leads schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to leads database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging leads database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring leads schema: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "lead_store").Logger(),
	}, nil
}

// CreateOrUpdate upserts the lead; a weaker score never overwrites a
// stronger stored one.
func (s *PostgresStore) CreateOrUpdate(ctx context.Context, lead models.Lead) error {
	_, err := s.pool.Exec(ctx, upsertLead,
		lead.TelegramID, lead.Username, lead.FirstName, lead.LastName,
		lead.SourceChannel, lead.InterestScore, lead.Quality, lead.Signals,
		lead.TranscriptExcerpt, lead.DialogueID, lead.RoleInDecision,
		lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting lead %d: %w", lead.TelegramID, err)
	}
	s.logger.Debug().
		Int64("telegram_id", lead.TelegramID).
		Int("score", lead.InterestScore).
		Str("quality", lead.Quality).
		Msg("lead stored")
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
