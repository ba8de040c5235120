package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	dmodels "dedup/internal/deduplication/models"
	"dedup/internal/deduplication/service/mocks"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	audit "dedup/pkg/platform/audit"
)

func (s *ServiceSuite) TestCreateReviewTasks() {
	plan, members := s.seedDuplicates()
	user := newUser()

	groups, err := s.svc.Aggregate(s.ctx, plan.ID, []string{"individual__first_name", "k1"})
	s.Require().NoError(err)
	s.Require().Len(groups, 1)

	s.Run("submits one descriptor per group", func() {
		taskID := id.TaskID(uuid.New())
		s.tasks.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, desc dmodels.TaskDescriptor) (dmodels.TaskHandle, error) {
				s.Equal(dmodels.TaskSource, desc.Source)
				s.Empty(desc.BusinessEvent)
				s.Equal(dmodels.SerializerBeneficiaryPayloadV1, desc.Serializer)
				s.Equal(user, desc.ActingUser)
				s.Len(desc.Data.Members, 2)
				s.Equal(sortedIDs(members[0].ID, members[1].ID), desc.Data.Group.IDs)
				return dmodels.TaskHandle{ID: taskID, Status: "RECEIVED"}, nil
			})

		result, err := s.svc.CreateReviewTasks(s.ctx, groups, user)
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal([]dmodels.TaskHandle{{ID: taskID, Status: "RECEIVED"}}, result.Tasks)
		s.Empty(result.Failures)
	})

	s.Run("requires an acting user", func() {
		_, err := s.svc.CreateReviewTasks(s.ctx, groups, id.UserID{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("no groups is a successful empty batch", func() {
		result, err := s.svc.CreateReviewTasks(s.ctx, nil, user)
		s.Require().NoError(err)
		s.True(result.Success)
		s.NotNil(result.Tasks)
		s.Empty(result.Tasks)
	})
}

func (s *ServiceSuite) TestCreateReviewTasks_TracksBatch() {
	plan, _ := s.seedDuplicates()
	user := newUser()
	ops := mocks.NewMockOpsPublisher(s.ctrl)
	svc := s.newService(WithOpsPublisher(ops))

	groups, err := svc.Aggregate(s.ctx, plan.ID, []string{"individual__first_name", "k1"})
	s.Require().NoError(err)

	taskID := id.TaskID(uuid.New())
	s.tasks.EXPECT().CreateTask(gomock.Any(), gomock.Any()).Return(dmodels.TaskHandle{ID: taskID}, nil)
	var tracked audit.OpsEvent
	ops.EXPECT().Track(gomock.Any(), gomock.Any()).Times(1).
		Do(func(_ context.Context, ev audit.OpsEvent) { tracked = ev })

	_, err = svc.CreateReviewTasks(s.ctx, groups, user)
	s.Require().NoError(err)
	s.Equal(string(audit.EventReviewTasksCreated), tracked.Action)
	s.Equal(user, tracked.UserID)
	s.Equal([]string{taskID.String()}, tracked.Details["task_ids"])
	s.Equal(0, tracked.Details["failed"])
}

func sortedIDs(ids ...id.BeneficiaryID) []id.BeneficiaryID {
	return dmodels.DuplicateGroup{IDs: ids}.SortedIDs()
}

func (s *ServiceSuite) TestCreateReviewTasks_PartialFailure() {
	plan, _ := s.seedDuplicates()
	user := newUser()
	groups, err := s.svc.Aggregate(s.ctx, plan.ID, []string{"individual__first_name"})
	s.Require().NoError(err)
	s.Require().Len(groups, 1)

	failing := groups[0]
	failing.Values = map[string]string{"individual__first_name": "broken"}
	batch := []dmodels.DuplicateGroup{groups[0], failing}

	var mu sync.Mutex
	created := 0
	s.tasks.EXPECT().CreateTask(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, desc dmodels.TaskDescriptor) (dmodels.TaskHandle, error) {
			if desc.Data.Group.Values["individual__first_name"] == "broken" {
				return dmodels.TaskHandle{}, dErrors.Wrap(errors.New("503"), dErrors.CodeInternal, "task subsystem unavailable")
			}
			mu.Lock()
			created++
			mu.Unlock()
			return dmodels.TaskHandle{ID: id.TaskID(uuid.New())}, nil
		})

	result, err := s.svc.CreateReviewTasks(s.ctx, batch, user)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Len(result.Tasks, 1)
	s.Equal(1, created)
	s.Require().Len(result.Failures, 1)
	s.Equal(map[string]string{"individual__first_name": "broken"}, result.Failures[0].Values)
	s.Equal("task subsystem unavailable", result.Failures[0].Error)
}

func (s *ServiceSuite) TestCreateReviewTasks_NotConfigured() {
	svc := New(s.store, nil, nil)
	_, err := svc.CreateReviewTasks(s.ctx, nil, newUser())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestCreateReviewTasksForPlan() {
	plan, _ := s.seedDuplicates()

	s.tasks.EXPECT().CreateTask(gomock.Any(), gomock.Any()).
		Return(dmodels.TaskHandle{ID: id.TaskID(uuid.New())}, nil)

	result, err := s.svc.CreateReviewTasksForPlan(s.ctx, plan.ID, []string{"k1"}, newUser())
	s.Require().NoError(err)
	s.True(result.Success)
	s.Len(result.Tasks, 1)

	_, err = s.svc.CreateReviewTasksForPlan(s.ctx, plan.ID, nil, newUser())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
