package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  transcriber:
    name: whisper
    base_url: http://localhost:8080
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  transcriber:
    name: whisper
    base_url: http://localhost:9090
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's mtime forward so coarse filesystem timestamps
// still register a change.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	at := time.Now().Add(by)
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Providers.Transcriber.BaseURL != "http://localhost:8080" {
		t.Errorf("base_url: got %q", cfg.Providers.Transcriber.BaseURL)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var (
		mu    sync.Mutex
		diffs []config.ConfigDiff
	)
	changed := make(chan struct{}, 1)
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		diffs = append(diffs, config.Diff(old, new))
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherUpdatedYAML)
	bumpMtime(t, cfgPath, time.Second)

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called")
	}

	mu.Lock()
	d := diffs[0]
	mu.Unlock()
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("expected log level change to debug, got %+v", d)
	}
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "providers" {
		t.Errorf("RestartRequired: got %v", d.RestartRequired)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current log level: got %q", got)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(cfgPath, func(_, _ *config.Config) {
		called <- struct{}{}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherInvalidYAML)
	bumpMtime(t, cfgPath, time.Second)

	select {
	case <-called:
		t.Fatal("onChange called for an invalid config")
	case <-time.After(200 * time.Millisecond):
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log level: got %q, want previous %q", got, config.LogInfo)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(cfgPath, func(_, _ *config.Config) {
		called <- struct{}{}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	bumpMtime(t, cfgPath, time.Second)

	select {
	case <-called:
		t.Fatal("onChange called although content is identical")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Stop()
	w.Stop()
}
