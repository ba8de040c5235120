// Package guard keeps redelivered task-completion events from merging twice.
//
// It holds a short Redis lock per task while a merge runs and remembers
// tasks whose merge committed. Both are best effort: the record store's row
// locks are what serialize merges, the guard only spares the database
// redundant work.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another worker holds the task's lock past the
// wait budget.
var ErrBusy = errors.New("merge already in progress")

const (
	lockPrefix = "dedup:merge:lock:"
	donePrefix = "dedup:merge:done:"
)

type Guard struct {
	rdb          redis.UniversalClient
	locker       *redislock.Client
	lockTTL      time.Duration
	processedTTL time.Duration
	wait         time.Duration
	logger       *slog.Logger
}

type Option func(*Guard)

func WithLockTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lockTTL = d
		}
	}
}

// WithProcessedTTL bounds how long a committed task is remembered.
func WithProcessedTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.processedTTL = d
		}
	}
}

// WithWait bounds how long Acquire waits for a held lock.
func WithWait(d time.Duration) Option {
	return func(g *Guard) {
		if d >= 0 {
			g.wait = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Guard {
	g := &Guard{
		rdb:          rdb,
		locker:       redislock.New(rdb),
		lockTTL:      30 * time.Second,
		processedTTL: 7 * 24 * time.Hour,
		wait:         5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire takes the task's lock, waiting up to the configured budget. The
// returned release is safe to call once.
func (g *Guard) Acquire(ctx context.Context, taskID string) (func(), error) {
	const step = 100 * time.Millisecond
	retries := int(g.wait / step)
	lock, err := g.locker.Obtain(ctx, lockPrefix+taskID, g.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(step), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain merge lock: %w", err)
	}
	return func() {
		// The merge may have outlived ctx; release on a fresh budget.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.logger.WarnContext(ctx, "failed to release merge lock", "task_id", taskID, "error", err)
		}
	}, nil
}

// Seen reports whether taskID's merge already committed.
func (g *Guard) Seen(ctx context.Context, taskID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, donePrefix+taskID).Result()
	if err != nil {
		return false, fmt.Errorf("check merge marker: %w", err)
	}
	return n > 0, nil
}

// MarkDone remembers that taskID's merge committed.
func (g *Guard) MarkDone(ctx context.Context, taskID string) error {
	if err := g.rdb.Set(ctx, donePrefix+taskID, time.Now().UTC().Format(time.RFC3339), g.processedTTL).Err(); err != nil {
		return fmt.Errorf("set merge marker: %w", err)
	}
	return nil
}
