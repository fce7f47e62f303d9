package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id            BIGSERIAL    PRIMARY KEY,
    session_id    TEXT         NOT NULL,
    source        TEXT         NOT NULL,
    speaker_id    TEXT         NOT NULL DEFAULT '',
    text          TEXT         NOT NULL,
    language      TEXT         NOT NULL,
    translations  JSONB        NOT NULL DEFAULT '{}'::jsonb,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_created
    ON transcripts (session_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transcripts_created
    ON transcripts (created_at DESC);
`

// Migrate creates the transcripts table and its indexes if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("transcript: migrate: %w", err)
	}
	return nil
}

// PostgresStore is a [Store] backed by a PostgreSQL transcripts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, pings the server and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Ping checks connectivity. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO transcripts
		    (session_id, source, speaker_id, text, language, translations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	translations := e.Translations
	if translations == nil {
		translations = map[string]string{}
	}
	if _, err := s.pool.Exec(ctx, q,
		e.SessionID, string(e.Source), e.SpeakerID, e.Text, e.Language, translations, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var (
		args  []any
		where []string
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.SessionID != "" {
		where = append(where, "session_id = "+next(q.SessionID))
	}
	if q.Source != "" {
		where = append(where, "source = "+next(string(q.Source)))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	sql := "SELECT session_id, source, speaker_id, text, language, translations, created_at\nFROM   transcripts"
	if len(where) > 0 {
		sql += "\nWHERE  " + strings.Join(where, "\n  AND  ")
	}
	sql += "\nORDER  BY created_at DESC, id DESC\nLIMIT  " + next(limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			source string
		)
		err := row.Scan(&e.SessionID, &source, &e.SpeakerID, &e.Text, &e.Language, &e.Translations, &e.CreatedAt)
		e.Source = Source(source)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
