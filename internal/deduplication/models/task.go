package models

import (
	id "dedup/pkg/domain"
)

const (
	// TaskSource tags every review task this workflow creates.
	TaskSource = "deduplication"
	// TaskStatusCompleted is the only task status that triggers a merge.
	TaskStatusCompleted = "COMPLETED"
)

// SerializerRef names the payload builder the task subsystem calls back to
// re-render a task's data.
type SerializerRef string

const SerializerBeneficiaryPayloadV1 SerializerRef = "deduplication.beneficiary_payload.v1"

// TaskDescriptor is the creation request sent to the task subsystem.
// BusinessEvent is left empty; the task policy layer assigns it.
type TaskDescriptor struct {
	Source        string        `json:"source"`
	BusinessEvent string        `json:"business_event"`
	Serializer    SerializerRef `json:"json_serializer"`
	Data          TaskPayload   `json:"data"`
	ActingUser    id.UserID     `json:"user_id"`
}

// TaskHandle identifies a created task.
type TaskHandle struct {
	ID     id.TaskID `json:"id"`
	Status string    `json:"status,omitempty"`
}

// GroupFailure records a group whose task could not be created.
type GroupFailure struct {
	Values map[string]string `json:"column_values"`
	Error  string            `json:"error"`
}

// BatchResult is the outcome of creating review tasks for many groups.
// Success is true only when no group failed.
type BatchResult struct {
	Success  bool           `json:"success"`
	Tasks    []TaskHandle   `json:"tasks"`
	Failures []GroupFailure `json:"failures,omitempty"`
}

// TaskCompletedEvent is published by the task subsystem once a task's own
// completion processing has committed.
type TaskCompletedEvent struct {
	Success bool              `json:"success"`
	Data    TaskCompletedData `json:"data"`
}

type TaskCompletedData struct {
	Task CompletedTask `json:"task"`
	User EventUser     `json:"user"`
}

type EventUser struct {
	ID string `json:"id"`
}

type CompletedTask struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`
	Status        string         `json:"status"`
	BusinessEvent string         `json:"business_event"`
	JSONExt       map[string]any `json:"json_ext"`
	Data          map[string]any `json:"data"`
}

// Operation is the closed set of actions a completed task can request.
type Operation int

const (
	OperationUnknown Operation = iota
	OperationMergeBeneficiaries
)

const BusinessEventMergeBeneficiaries = "deduplication.merge_beneficiaries"

var operationsByEvent = map[string]Operation{
	BusinessEventMergeBeneficiaries: OperationMergeBeneficiaries,
}

// ParseOperation maps a task's business event onto an Operation.
func ParseOperation(businessEvent string) (Operation, bool) {
	op, ok := operationsByEvent[businessEvent]
	return op, ok
}

func (o Operation) String() string {
	switch o {
	case OperationMergeBeneficiaries:
		return BusinessEventMergeBeneficiaries
	default:
		return "unknown"
	}
}
