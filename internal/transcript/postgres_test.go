package transcript_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lingualink/internal/transcript"
)

// testDSN returns the integration database DSN or skips the test.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LINGUALINK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LINGUALINK_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestPostgres(t *testing.T) *transcript.PostgresStore {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS transcripts CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := transcript.NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgres_AppendRecent(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	entries := []transcript.Entry{
		{SessionID: "s1", Source: transcript.SourceStream, Text: "hello", Language: "en",
			Translations: map[string]string{"ar": "مرحبا"}, CreatedAt: now.Add(-2 * time.Second)},
		{SessionID: "s1", Source: transcript.SourceStream, Text: "bye", Language: "en", CreatedAt: now.Add(-time.Second)},
		{SessionID: "broadcast", Source: transcript.SourceBroadcast, SpeakerID: "speaker_0", Text: "hi all", Language: "en",
			Translations: map[string]string{"user-1": "hola"}, CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, transcript.Query{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Text != "bye" || got[1].Text != "hello" {
		t.Fatalf("Recent = %+v", got)
	}
	if got[1].Translations["ar"] != "مرحبا" {
		t.Errorf("translations = %v", got[1].Translations)
	}

	bc, err := s.Recent(ctx, transcript.Query{Source: transcript.SourceBroadcast, Limit: 1})
	if err != nil {
		t.Fatalf("Recent broadcast: %v", err)
	}
	if len(bc) != 1 || bc[0].SpeakerID != "speaker_0" || bc[0].Translations["user-1"] != "hola" {
		t.Errorf("broadcast = %+v", bc)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewPostgresStore_BadDSN(t *testing.T) {
	t.Parallel()
	if _, err := transcript.NewPostgresStore(context.Background(), "://not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
