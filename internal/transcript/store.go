// Package transcript persists the results lingualink emits: every streaming
// `final` and every broadcast batch.
//
// Persistence is best effort. Callers log a failed Append and carry on; a
// broken store never changes what clients receive.
package transcript

import (
	"context"
	"time"
)

// Source identifies which pipeline produced an entry.
type Source string

const (
	SourceStream    Source = "stream"
	SourceBroadcast Source = "broadcast"
)

// Entry is one persisted result.
type Entry struct {
	// SessionID is the stream session ID, or "broadcast" for broadcast
	// batches.
	SessionID string

	Source    Source
	SpeakerID string

	// Text is the transcribed text in Language.
	Text     string
	Language string

	// Translations maps a target (a language code for stream entries, a
	// user ID for broadcast entries) to translated text.
	Translations map[string]string

	CreatedAt time.Time
}

// Query filters [Store.Recent].
type Query struct {
	// SessionID restricts results to one session when non-empty.
	SessionID string

	// Source restricts results to one pipeline when non-empty.
	Source Source

	// Limit caps the number of entries. Zero means 50.
	Limit int
}

// DefaultLimit is used when Query.Limit is zero.
const DefaultLimit = 50

// Store is an append-only transcript log. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append records e. A zero CreatedAt is set to the current time.
	Append(ctx context.Context, e Entry) error

	// Recent returns matching entries, newest first.
	Recent(ctx context.Context, q Query) ([]Entry, error)

	// Close releases the store's resources.
	Close() error
}
