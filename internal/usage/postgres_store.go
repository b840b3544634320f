package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS translation_usage (
		id          BIGSERIAL PRIMARY KEY,
		request_id  TEXT NOT NULL,
		model       TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		chars_in    INTEGER NOT NULL,
		chars_out   INTEGER NOT NULL,
		latency_ms  BIGINT NOT NULL,
		stream      BOOLEAN NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create usage table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Log(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO translation_usage
			(request_id, model, source_lang, target_lang, chars_in, chars_out, latency_ms, stream)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		rec.RequestID, rec.Model, rec.SourceLang, rec.TargetLang,
		rec.CharsIn, rec.CharsOut, rec.LatencyMs, rec.Stream,
	)
	if err != nil {
		return fmt.Errorf("failed to log usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) Summarize(ctx context.Context, from, to time.Time) (*Summary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(chars_in), 0), COALESCE(SUM(chars_out), 0)
		FROM translation_usage
		WHERE created_at >= $1 AND created_at <= $2
	`
	sum := &Summary{From: from, To: to}
	err := s.db.QueryRow(ctx, query, from, to).Scan(&sum.TotalRequests, &sum.CharsIn, &sum.CharsOut)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return sum, nil
}
