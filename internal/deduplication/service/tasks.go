package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	audit "dedup/pkg/platform/audit"
)

// CreateReviewTasks opens one review task per group. Groups are processed in
// parallel and independently: a failure is recorded against its group and
// never undoes tasks already created. Result order follows groups.
func (s *Service) CreateReviewTasks(ctx context.Context, groups []dmodels.DuplicateGroup, actingUser id.UserID) (dmodels.BatchResult, error) {
	if s.tasks == nil {
		return dmodels.BatchResult{}, dErrors.New(dErrors.CodeInternal, "task subsystem not configured")
	}
	if actingUser.IsNil() {
		return dmodels.BatchResult{}, dErrors.New(dErrors.CodeUnauthorized, "acting user required")
	}

	ctx, span := s.tracer.Start(ctx, "deduplication.CreateReviewTasks")
	defer span.End()
	span.SetAttributes(attribute.Int("groups", len(groups)))

	handles := make([]*dmodels.TaskHandle, len(groups))
	failures := make([]*dmodels.GroupFailure, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, group := range groups {
		g.Go(func() error {
			h, err := s.createReviewTask(gctx, group, actingUser)
			s.recordTaskOutcome(err)
			if err != nil {
				s.logger.WarnContext(gctx, "review task creation failed",
					"group", group,
					"error", err,
				)
				failures[i] = &dmodels.GroupFailure{Values: group.Values, Error: dErrors.MessageOf(err)}
				return nil
			}
			handles[i] = &h
			return nil
		})
	}
	_ = g.Wait()

	result := dmodels.BatchResult{Success: true, Tasks: []dmodels.TaskHandle{}}
	for i := range groups {
		if handles[i] != nil {
			result.Tasks = append(result.Tasks, *handles[i])
		}
		if failures[i] != nil {
			result.Success = false
			result.Failures = append(result.Failures, *failures[i])
		}
	}

	s.logAudit(ctx, string(audit.EventReviewTasksCreated),
		"user_id", actingUser,
		"created", len(result.Tasks),
		"failed", len(result.Failures),
	)
	taskIDs := make([]string, len(result.Tasks))
	for i, h := range result.Tasks {
		taskIDs[i] = h.ID.String()
	}
	s.trackOps(ctx, audit.OpsEvent{
		UserID: actingUser,
		Action: string(audit.EventReviewTasksCreated),
		Details: map[string]any{
			"task_ids": taskIDs,
			"failed":   len(result.Failures),
		},
	})
	return result, nil
}

func (s *Service) createReviewTask(ctx context.Context, group dmodels.DuplicateGroup, actingUser id.UserID) (dmodels.TaskHandle, error) {
	if err := ctx.Err(); err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeTimeout, "task creation cancelled")
	}
	group.IDs = group.SortedIDs()
	payload, err := s.BuildPayload(ctx, group)
	if err != nil {
		return dmodels.TaskHandle{}, err
	}
	return s.tasks.CreateTask(ctx, dmodels.TaskDescriptor{
		Source:     dmodels.TaskSource,
		Serializer: dmodels.SerializerBeneficiaryPayloadV1,
		Data:       payload,
		ActingUser: actingUser,
	})
}

// CreateReviewTasksForPlan aggregates planID by attributes and opens a review
// task for every group found.
func (s *Service) CreateReviewTasksForPlan(ctx context.Context, planID id.BenefitPlanID, attributes []string, actingUser id.UserID) (dmodels.BatchResult, error) {
	groups, err := s.Aggregate(ctx, planID, attributes)
	if err != nil {
		return dmodels.BatchResult{}, err
	}
	return s.CreateReviewTasks(ctx, groups, actingUser)
}
