// Package ops publishes operational audit events on a best-effort basis.
//
// Track never fails the caller. Events may be sampled away, and while the
// audit store keeps failing a circuit breaker drops them without trying.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "dedup/pkg/platform/audit"
	txctx "dedup/pkg/platform/tx"
	"dedup/pkg/requestcontext"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

type Publisher struct {
	store   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

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

// WithSampler replaces the default keep-everything sampler.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		if s != nil {
			p.sampler = s
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		sampler: NewSampler(1),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = NewCircuitBreaker(defaultFailureThreshold, defaultCooldown, p.now)
	}
	return p
}

// Track writes event to the audit store outside any transaction carried by
// ctx, so a failed write cannot poison the caller's work.
func (p *Publisher) Track(ctx context.Context, event audit.OpsEvent) {
	if event.Action == "" {
		return
	}
	if !p.sampler.ShouldSample(event.Action) {
		p.inc(func(m *Metrics) { m.IncSampled() })
		return
	}
	if !p.breaker.Allow() {
		p.inc(func(m *Metrics) { m.IncCircuitBreakerDropped() })
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	err := p.store.Append(txctx.Detach(context.WithoutCancel(ctx)), event.ToEvent())
	if err != nil {
		p.breaker.RecordFailure()
		p.inc(func(m *Metrics) {
			m.IncPersistFailures()
			m.SetCircuitBreakerState(p.breaker.IsOpen())
		})
		p.logger.WarnContext(ctx, "ops audit write dropped",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
		return
	}
	p.breaker.RecordSuccess()
	p.inc(func(m *Metrics) {
		m.IncTracked()
		m.SetCircuitBreakerState(false)
	})
}

func (p *Publisher) inc(fn func(*Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}
