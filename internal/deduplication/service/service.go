// Package service implements duplicate detection, review task creation and
// merge resolution for beneficiaries.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"dedup/internal/deduplication/metrics"
	dmodels "dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/platform/middleware/request"
)

// GroupingStore computes duplicate groups within one plan.
type GroupingStore interface {
	AggregateDuplicates(ctx context.Context, q dmodels.GroupingQuery) ([]dmodels.DuplicateGroup, error)
}

// RecordReader loads registry rows. Missing and soft-deleted rows are
// reported as sentinel.ErrNotFound.
type RecordReader interface {
	FindBeneficiary(ctx context.Context, bid id.BeneficiaryID) (*regmodels.Beneficiary, error)
	FindIndividual(ctx context.Context, iid id.IndividualID) (*regmodels.Individual, error)
	FindBenefitPlan(ctx context.Context, pid id.BenefitPlanID) (*regmodels.BenefitPlan, error)
}

// Registry is the read side of the record store.
type Registry interface {
	GroupingStore
	RecordReader
}

//go:generate mockgen -source=service.go -destination=mocks/service-mocks.go -package=mocks TaskClient AuditPublisher OpsPublisher MergeGuard

// TaskClient submits review tasks to the task subsystem.
type TaskClient interface {
	CreateTask(ctx context.Context, desc dmodels.TaskDescriptor) (dmodels.TaskHandle, error)
}

// AuditPublisher persists compliance events. It must fail closed.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// OpsPublisher records routine events. It never fails the caller.
type OpsPublisher interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

// MergeGuard spares the database redelivered merges. Implementations are
// best effort; their errors never fail a merge.
type MergeGuard interface {
	Acquire(ctx context.Context, taskID string) (release func(), err error)
	Seen(ctx context.Context, taskID string) (bool, error)
	MarkDone(ctx context.Context, taskID string) error
}

const defaultConcurrency = 4

// Service orchestrates the deduplication workflow.
type Service struct {
	registry       Registry
	tx             MergeTx
	tasks          TaskClient
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	auditPublisher AuditPublisher
	opsPublisher   OpsPublisher
	guard          MergeGuard
	concurrency    int
	serializers    map[dmodels.SerializerRef]serializerFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithOpsPublisher(publisher OpsPublisher) Option {
	return func(s *Service) {
		s.opsPublisher = publisher
	}
}

func WithGuard(g MergeGuard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// WithConcurrency bounds parallel task creation.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New constructs a Service. tasks may be nil for deployments that only
// summarize and merge.
func New(registry Registry, tx MergeTx, tasks TaskClient, opts ...Option) *Service {
	s := &Service{
		registry:    registry,
		tx:          tx,
		tasks:       tasks,
		logger:      slog.Default(),
		tracer:      otel.Tracer("dedup/deduplication"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.serializers = map[dmodels.SerializerRef]serializerFunc{
		dmodels.SerializerBeneficiaryPayloadV1: s.BuildPayload,
	}
	return s
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) trackOps(ctx context.Context, event audit.OpsEvent) {
	if s.opsPublisher != nil {
		s.opsPublisher.Track(ctx, event)
	}
}

func (s *Service) observeAggregate(start time.Time, groups int) {
	if s.metrics != nil {
		s.metrics.ObserveAggregate(start)
		s.metrics.AddGroupsFound(groups)
	}
}

func (s *Service) observePayload(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePayload(start)
	}
}

func (s *Service) recordTaskOutcome(err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.IncTaskFailures()
		return
	}
	s.metrics.IncTasksCreated()
}

func (s *Service) recordMerge(start time.Time, state dmodels.MergeState) {
	if s.metrics != nil {
		s.metrics.ObserveMerge(start)
		s.metrics.IncMerge(string(state))
	}
}
