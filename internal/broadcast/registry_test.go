package broadcast_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/lingualink/internal/broadcast"
)

// fakeConn records messages and optionally fails every write.
type fakeConn struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (c *fakeConn) Write(_ context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, v)
	return nil
}

func (c *fakeConn) results() []broadcast.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []broadcast.Result
	for _, m := range c.msgs {
		if r, ok := m.(broadcast.Result); ok {
			out = append(out, r)
		}
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		user    string
		lang    string
		want    string
		wantErr bool
	}{
		{name: "default language", user: "u1", lang: "", want: "en"},
		{name: "normalised", user: "u1", lang: "AR", want: "ar"},
		{name: "english name", user: "u1", lang: "Spanish", want: "es"},
		{name: "unsupported", user: "u1", lang: "tlh", wantErr: true},
		{name: "empty user", user: "", lang: "en", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := broadcast.NewRegistry(nil)
			got, err := r.Register(tt.user, tt.lang, &fakeConn{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if r.Len() != 0 {
					t.Error("failed registration added an entry")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("language = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_UpdateAndEvict(t *testing.T) {
	t.Parallel()

	r := broadcast.NewRegistry(nil)
	a, b := &fakeConn{}, &fakeConn{}
	if _, err := r.Register("alice", "en", a); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("bob", "en", b); err != nil {
		t.Fatal(err)
	}

	if got, err := r.UpdatePreference("alice", "fr"); err != nil || got != "fr" {
		t.Fatalf("UpdatePreference = %q, %v", got, err)
	}
	if lang, _ := r.Preference("alice"); lang != "fr" {
		t.Errorf("alice preference = %q", lang)
	}
	if _, err := r.UpdatePreference("nobody", "fr"); !errors.Is(err, broadcast.ErrNotRegistered) {
		t.Errorf("unknown user err = %v", err)
	}
	if _, err := r.UpdatePreference("alice", "xx"); err == nil {
		t.Error("unsupported preference accepted")
	}

	// Evicting through a stale connection is a no-op.
	if r.Evict("alice", b) {
		t.Error("evicted alice through bob's connection")
	}
	if !r.Evict("alice", a) || r.Len() != 1 {
		t.Errorf("Evict(alice) failed, len %d", r.Len())
	}
	if _, ok := r.Preference("alice"); ok {
		t.Error("preference survived eviction")
	}
}

func TestRegistry_ReRegisterMovesConnection(t *testing.T) {
	t.Parallel()

	r := broadcast.NewRegistry(nil)
	old, cur := &fakeConn{}, &fakeConn{}
	_, _ = r.Register("alice", "en", old)
	_, _ = r.Register("alice", "ar", cur)

	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
	// The old connection going away must not remove the new binding.
	if removed := r.EvictConn(old); len(removed) != 0 {
		t.Errorf("EvictConn(old) removed %v", removed)
	}
	if removed := r.EvictConn(cur); len(removed) != 1 || removed[0] != "alice" {
		t.Errorf("EvictConn(cur) removed %v", removed)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := broadcast.NewRegistry(nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(3)
		id := fmt.Sprintf("user-%d", i)
		c := &fakeConn{}
		go func() {
			defer wg.Done()
			_, _ = r.Register(id, "ar", c)
		}()
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
		}()
		go func() {
			defer wg.Done()
			_ = r.Evict(id, c)
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	if len(snap) != r.Len() {
		t.Errorf("snapshot %d entries, Len %d", len(snap), r.Len())
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].UserID >= snap[i].UserID {
			t.Fatal("snapshot not ordered by user id")
		}
	}
}
