package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [Chain] produced a result.
var ErrAllFailed = errors.New("resilience: all backends failed")

type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain is an ordered list of interchangeable backends, each behind its own
// [Breaker]. Build it fully before sharing; calls are then safe for
// concurrent use.
type Chain[T any] struct {
	cfg   BreakerConfig
	links []link[T]
}

// NewChain returns a chain whose first backend is primary.
func NewChain[T any](name string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	return c.Add(name, primary)
}

// Add appends a fallback backend and returns c.
func (c *Chain[T]) Add(name string, backend T) *Chain[T] {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{name: name, backend: backend, breaker: NewBreaker(cfg)})
	return c
}

// Len returns the number of backends.
func (c *Chain[T]) Len() int { return len(c.links) }

// States reports each backend's breaker state by name.
func (c *Chain[T]) States() map[string]State {
	out := make(map[string]State, len(c.links))
	for _, l := range c.links {
		out[l.name] = l.breaker.State()
	}
	return out
}

// Call runs fn against each backend in order until one succeeds. Backends
// with an open breaker are skipped. A cancelled ctx or a [Permanent] error
// ends the chain immediately. When every backend fails the error wraps
// [ErrAllFailed] and each attempt's error.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := l.breaker.Do(func() error {
			var err error
			out, err = fn(ctx, l.backend)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case IsPermanent(err), errors.Is(err, context.Canceled):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping backend", "backend", l.name)
		default:
			slog.Warn("resilience: backend failed, trying next", "backend", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
