// Package worker relays audit outbox entries to the event bus.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "dedup/pkg/platform/audit"
)

// OutboxStore claims pending outbox entries and records their outcome.
type OutboxStore interface {
	ProcessPending(ctx context.Context, limit int, publish func(context.Context, audit.OutboxEntry) error) (int, error)
}

// Publisher delivers one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Worker polls the outbox and publishes entries keyed by their aggregate so
// events for one beneficiary stay ordered within a partition.
type Worker struct {
	store     OutboxStore
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(store OutboxStore, publisher Publisher, topic string, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		topic:     topic,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another poll; otherwise the worker waits for the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		n, err := w.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if err == nil && n == w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	return w.store.ProcessPending(ctx, w.batchSize, func(ctx context.Context, e audit.OutboxEntry) error {
		if err := w.publisher.Publish(ctx, w.topic, []byte(e.AggregateID), e.Payload); err != nil {
			w.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", e.ID,
				"event_type", e.EventType,
				"attempts", e.Attempts+1,
				"error", err,
			)
			return err
		}
		return nil
	})
}
