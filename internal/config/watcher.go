package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and calls a callback when its content changes
// to a new valid config. Invalid edits are logged and the previous config is
// kept.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	environ  map[string]string

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// withEnviron replaces the process environment for overrides. Tests only.
func withEnviron(environ map[string]string) WatcherOption {
	return func(w *Watcher) { w.environ = environ }
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. onChange runs on the polling goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash, w.lastMtime = cfg, hash, mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling and waits for an in-flight check to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its mtime moved and its hash differs.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, hash, mtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		w.mu.Lock()
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.lastHash, w.lastMtime = cfg, hash, mtime
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := load(data, w.environ)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}

// LogLevelApplier returns an onChange callback that applies log level changes
// to lv and logs sections that need a restart.
func LogLevelApplier(lv *slog.LevelVar) func(old, new *Config) {
	return func(old, new *Config) {
		d := Diff(old, new)
		if d.LogLevelChanged {
			lv.Set(SlogLevel(d.NewLogLevel))
			slog.Info("config watcher: log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config watcher: changes require a restart to take effect", "sections", d.RestartRequired)
		}
	}
}

// SlogLevel maps l to a [slog.Level]. Unknown levels map to info.
func SlogLevel(l LogLevel) slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
