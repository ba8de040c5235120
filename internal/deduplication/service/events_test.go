package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	"dedup/pkg/platform/sentinel"
)

func completedEvent(task dmodels.CompletedTask, user string) dmodels.TaskCompletedEvent {
	return dmodels.TaskCompletedEvent{
		Success: true,
		Data: dmodels.TaskCompletedData{
			Task: task,
			User: dmodels.EventUser{ID: user},
		},
	}
}

type panickingTx struct{}

func (panickingTx) RunInTx(context.Context, func(context.Context, MergeStore) error) error {
	panic("driver exploded")
}

func (s *ServiceSuite) TestHandleTaskCompleted() {
	_, members := s.seedDuplicates()
	user := uuid.NewString()

	s.Run("ignores unsuccessful events", func() {
		ev := completedEvent(decisionTask("t", map[string]any{}, members[0].ID, members[1].ID), user)
		ev.Success = false
		s.Nil(s.svc.HandleTaskCompleted(s.ctx, ev))
	})

	s.Run("ignores tasks that are not completed", func() {
		task := decisionTask("t", map[string]any{}, members[0].ID, members[1].ID)
		task.Status = "FAILED"
		s.Nil(s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, user)))
	})

	s.Run("ignores other sources and unknown business events", func() {
		task := decisionTask("t", map[string]any{}, members[0].ID, members[1].ID)
		task.Source = "grievance"
		s.Nil(s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, user)))

		task = decisionTask("t", map[string]any{}, members[0].ID, members[1].ID)
		task.BusinessEvent = "deduplication.split_beneficiaries"
		s.Nil(s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, user)))
	})

	s.Run("reports a missing acting user", func() {
		task := decisionTask("t", map[string]any{}, members[0].ID, members[1].ID)
		errs := s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, ""))
		s.Len(errs, 1)
	})

	s.Run("reports a malformed decision", func() {
		task := decisionTask("t", map[string]any{}, members[0].ID)
		task.JSONExt = map[string]any{"additional_resolve_data": "nope"}
		errs := s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, user))
		s.Require().Len(errs, 1)
		s.Contains(errs[0], "deduplication.merge_beneficiaries")
	})

	s.Run("merges approved decisions", func() {
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		task := decisionTask("t", map[string]any{"k2": "merged"}, members[0].ID, members[1].ID)
		s.Nil(s.svc.HandleTaskCompleted(s.ctx, completedEvent(task, user)))

		_, err := s.store.FindBeneficiary(s.ctx, members[1].ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ServiceSuite) TestHandleTaskCompleted_RecoversPanics() {
	svc := New(s.store, panickingTx{}, nil)
	task := decisionTask("boom", map[string]any{}, id.BeneficiaryID(uuid.New()))

	errs := svc.HandleTaskCompleted(s.ctx, completedEvent(task, uuid.NewString()))
	s.Require().Len(errs, 1)
	s.Contains(errs[0], "driver exploded")
}
