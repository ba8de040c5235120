// Package consumer turns task subsystem completion events into merges.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	dmodels "dedup/internal/deduplication/models"
	kafka "dedup/internal/platform/kafka/consumer"
	"dedup/pkg/requestcontext"
)

// HeaderRequestID correlates an event with the request that completed the task.
const HeaderRequestID = "request_id"

// Service is the part of the deduplication service driven by task events.
type Service interface {
	HandleTaskCompleted(ctx context.Context, event dmodels.TaskCompletedEvent) []string
}

// TaskCompletedHandler consumes task completion events. It never returns an
// error: merge failures are terminal for the event and are logged instead of
// redelivered.
type TaskCompletedHandler struct {
	service Service
	logger  *slog.Logger
}

func NewTaskCompletedHandler(service Service, logger *slog.Logger) *TaskCompletedHandler {
	return &TaskCompletedHandler{service: service, logger: logger}
}

func (h *TaskCompletedHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	requestID := strings.TrimSpace(msg.Headers[HeaderRequestID])
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = requestcontext.WithRequestID(ctx, requestID)

	var event dmodels.TaskCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.ErrorContext(ctx, "dropping undecodable task event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	errs := h.service.HandleTaskCompleted(ctx, event)
	for _, e := range errs {
		h.logger.ErrorContext(ctx, "task completion handling failed",
			"task_id", event.Data.Task.ID,
			"offset", msg.Offset,
			"error", e,
		)
	}
	return nil
}
