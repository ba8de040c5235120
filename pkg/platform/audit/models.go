package audit

import (
	"context"
	"time"

	id "dedup/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance.
	// Registry mutations such as merges belong here.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// Details carries action-specific data (ids touched, fields changed).
	// Values must be JSON-encodable.
	Details map[string]any
}

type AuditEvent string

const (
	EventBeneficiariesMerged AuditEvent = "beneficiaries_merged"
	EventMergeFailed         AuditEvent = "beneficiaries_merge_failed"
	EventReviewTasksCreated  AuditEvent = "review_tasks_created"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventBeneficiariesMerged: CategoryCompliance,
	EventMergeFailed:         CategoryOperations,
	EventReviewTasksCreated:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures regulatory-significant actions requiring
// guaranteed persistence. Use with the compliance publisher for fail-closed
// semantics.
type ComplianceEvent struct {
	Timestamp time.Time
	UserID    id.UserID // acting user (required)
	Subject   string    // primary entity touched, e.g. the canonical beneficiary
	Action    string
	Decision  string
	RequestID string
	Details   map[string]any
}

func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Subject:   e.Subject,
		Action:    e.Action,
		Decision:  e.Decision,
		RequestID: e.RequestID,
		Details:   e.Details,
	}
}

// OpsEvent records routine activity (failed merges, task batches). Delivery is
// best effort; use the ops publisher.
type OpsEvent struct {
	Timestamp time.Time
	UserID    id.UserID
	Subject   string // task or plan the event is about
	Action    string
	Reason    string
	RequestID string
	Details   map[string]any
}

func (e OpsEvent) Category() EventCategory { return CategoryOperations }

func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Subject:   e.Subject,
		Action:    e.Action,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		Details:   e.Details,
	}
}

// Store persists audit events. The Postgres implementation writes to the
// outbox inside the caller's transaction.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is one pending outbox row awaiting relay.
type OutboxEntry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	Attempts      int
}
