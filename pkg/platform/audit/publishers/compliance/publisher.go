// Package compliance provides a fail-closed audit publisher for regulatory
// events.
//
// When the store is the Postgres outbox and ctx carries a transaction, the
// event commits or rolls back with the merge that produced it. A failed write
// must fail the calling operation.
package compliance

import (
	"context"
	"log/slog"
	"time"

	dErrors "dedup/pkg/domain-errors"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/requestcontext"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the timestamp source for events emitted without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit writes event to the audit store. Events need an acting user, an
// action and a subject; the request id is taken from ctx when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	start := time.Now()

	switch {
	case event.UserID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "compliance event requires a user")
	case event.Action == "":
		return dErrors.New(dErrors.CodeInvalidInput, "compliance event requires an action")
	case event.Subject == "":
		return dErrors.New(dErrors.CodeInvalidInput, "compliance event requires a subject")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		p.logger.ErrorContext(ctx, "compliance audit write failed",
			"action", event.Action,
			"subject", event.Subject,
			"user_id", event.UserID.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "compliance audit persistence failed")
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(start)
		p.metrics.IncEventsEmitted()
	}
	return nil
}
