// Package broadcast implements multi-listener mode: one shared capture feeds
// many registered users, each receiving the same transcription together with
// a translation into their own preferred language.
//
// The [Registry] is the only state shared between the websocket handlers and
// the capture [Loop]. Entries are evicted the instant a send to their
// connection fails, and when the connection goes away.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/observe"
)

// ErrNotRegistered is returned when updating a user that has no entry.
var ErrNotRegistered = errors.New("broadcast: user not registered")

// ErrEmptyUserID is returned when a registration carries no user id.
var ErrEmptyUserID = errors.New("broadcast: user_id is required")

// Sender delivers one JSON message to a listener's connection.
type Sender interface {
	Write(ctx context.Context, v any) error
}

// Listener is a snapshot of one registry entry.
type Listener struct {
	UserID   string
	Language string
	Conn     Sender
}

// Registry maps user ids to their connection and preferred language. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	users   map[string]Listener
	metrics *observe.Metrics
}

// NewRegistry returns an empty registry. A nil m selects
// [observe.DefaultMetrics].
func NewRegistry(m *observe.Metrics) *Registry {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Registry{users: make(map[string]Listener), metrics: m}
}

func resolveLanguage(lang string) (string, error) {
	if lang == "" {
		return language.Default, nil
	}
	code, ok := language.Normalize(lang)
	if !ok {
		return "", fmt.Errorf("unsupported language: %s", lang)
	}
	return code, nil
}

// Register adds or replaces the entry for userID and returns the resolved
// preferred language. An empty lang selects [language.Default].
func (r *Registry) Register(userID, lang string, conn Sender) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	code, err := resolveLanguage(lang)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	_, existed := r.users[userID]
	r.users[userID] = Listener{UserID: userID, Language: code, Conn: conn}
	r.mu.Unlock()

	if !existed {
		r.metrics.BroadcastListeners.Add(context.Background(), 1)
	}
	return code, nil
}

// UpdatePreference changes the preferred language of a registered user.
func (r *Registry) UpdatePreference(userID, lang string) (string, error) {
	code, err := resolveLanguage(lang)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.users[userID]
	if !ok {
		return "", ErrNotRegistered
	}
	l.Language = code
	r.users[userID] = l
	return code, nil
}

// Evict removes userID if it is still bound to conn. A nil conn removes the
// entry unconditionally. It reports whether an entry was removed.
func (r *Registry) Evict(userID string, conn Sender) bool {
	r.mu.Lock()
	l, ok := r.users[userID]
	if ok && (conn == nil || l.Conn == conn) {
		delete(r.users, userID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.metrics.BroadcastListeners.Add(context.Background(), -1)
	}
	return ok
}

// EvictConn removes every user registered through conn and returns their ids.
func (r *Registry) EvictConn(conn Sender) []string {
	r.mu.Lock()
	var removed []string
	for id, l := range r.users {
		if l.Conn == conn {
			delete(r.users, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	if n := len(removed); n > 0 {
		r.metrics.BroadcastListeners.Add(context.Background(), -int64(n))
	}
	sort.Strings(removed)
	return removed
}

// Snapshot returns the current entries ordered by user id.
func (r *Registry) Snapshot() []Listener {
	r.mu.RLock()
	out := make([]Listener, 0, len(r.users))
	for _, l := range r.users {
		out = append(out, l)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Preference returns the preferred language of userID.
func (r *Registry) Preference(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.users[userID]
	return l.Language, ok
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
