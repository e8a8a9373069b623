// Package cache throttles polling of the gateway. Reads are served from the
// last fetched value until it is older than the update interval.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/franklin"
	"github.com/raterudder/franklinwh/pkg/log"
)

const (
	// DefaultInterval is how long a fetched value is served before refreshing.
	DefaultInterval = 60 * time.Second

	defaultAttempts   = 3
	defaultRetryDelay = time.Second
	staleWarning      = 5 * time.Minute
)

// Result is a value returned from a Cached along with how fresh it is.
type Result[T any] struct {
	Value     T
	FetchedAt time.Time
	// Stale is set when the last refresh failed and Value is from an earlier
	// successful fetch.
	Stale bool
}

// Cached wraps a fetch func so it runs at most once per interval. Fetches are
// serialized.
type Cached[T any] struct {
	name       string
	fetch      func(context.Context) (T, error)
	interval   time.Duration
	attempts   int
	retryDelay time.Duration
	now        func() time.Time

	mu          sync.Mutex
	value       T
	hasValue    bool
	fetchedAt   time.Time
	lastAttempt time.Time
	lastErr     error
}

// New returns a Cached that calls fetch at most once per interval. A
// non-positive interval uses DefaultInterval.
func New[T any](name string, interval time.Duration, fetch func(context.Context) (T, error)) *Cached[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Cached[T]{
		name:       name,
		fetch:      fetch,
		interval:   interval,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
}

// Configured registers the cache-interval flag.
func Configured() *time.Duration {
	interval := lflag.Duration("cache-interval", DefaultInterval, "How long gateway readings are cached before polling again")
	d := new(time.Duration)
	lflag.Do(func() {
		*d = *interval
	})
	return d
}

// retryable reports whether err is a transient gateway condition worth
// retrying right away.
func retryable(err error) bool {
	return errors.Is(err, franklin.ErrDeviceTimeout) || errors.Is(err, franklin.ErrGatewayOffline)
}

// Get returns the cached value, refreshing it first if the interval has
// passed. If the refresh fails the previous value is returned with Stale set
// along with the error. Without any previous value only the error is useful.
func (c *Cached[T]) Get(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.lastAttempt.IsZero() || now.Sub(c.lastAttempt) >= c.interval {
		c.lastAttempt = now
		c.refresh(ctx)
		now = c.now()
	}

	res := Result[T]{Value: c.value, FetchedAt: c.fetchedAt, Stale: c.hasValue && c.lastErr != nil}
	if c.hasValue && now.Sub(c.fetchedAt) > staleWarning {
		log.Ctx(ctx).WarnContext(
			ctx,
			"cached data is older than 5 minutes",
			slog.String("cache", c.name),
			slog.Time("fetchedAt", c.fetchedAt),
		)
	}
	return res, c.lastErr
}

// refresh fetches a new value. Must be called with c.mu held.
func (c *Cached[T]) refresh(ctx context.Context) {
	var err error
retry:
	for attempt := 1; attempt <= c.attempts; attempt++ {
		var v T
		v, err = c.fetch(ctx)
		if err == nil {
			c.value = v
			c.hasValue = true
			c.fetchedAt = c.now()
			c.lastErr = nil
			return
		}
		if !retryable(err) {
			break retry
		}
		log.Ctx(ctx).WarnContext(
			ctx,
			"gateway fetch failed",
			slog.String("cache", c.name),
			slog.Int("attempt", attempt),
			slog.Int("attempts", c.attempts),
			slog.Any("error", err),
		)
		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break retry
			case <-time.After(c.retryDelay):
			}
		}
	}

	log.Ctx(ctx).ErrorContext(
		ctx,
		"all fetch attempts failed, keeping last known data",
		slog.String("cache", c.name),
		slog.Bool("hasValue", c.hasValue),
		slog.Any("error", err),
	)
	c.lastErr = err
}

// Invalidate forces the next Get to fetch.
func (c *Cached[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAttempt = time.Time{}
}
