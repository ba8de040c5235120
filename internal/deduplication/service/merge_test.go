package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	dmodels "dedup/internal/deduplication/models"
	"dedup/internal/deduplication/service/mocks"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/platform/sentinel"
)

func decisionTask(taskID string, values map[string]any, ids ...id.BeneficiaryID) dmodels.CompletedTask {
	raw := make([]any, len(ids))
	for i, bid := range ids {
		raw[i] = bid.String()
	}
	return dmodels.CompletedTask{
		ID:            taskID,
		Source:        dmodels.TaskSource,
		Status:        dmodels.TaskStatusCompleted,
		BusinessEvent: dmodels.BusinessEventMergeBeneficiaries,
		JSONExt: map[string]any{
			dmodels.ResolveDataKey: map[string]any{
				"resolver": map[string]any{
					"values":         values,
					"beneficiaryIds": raw,
				},
			},
		},
	}
}

func (s *ServiceSuite) TestMerge() {
	_, members := s.seedDuplicates()
	user := newUser()
	task := decisionTask("task-1", map[string]any{
		"first_name":               "Merged",
		"individual__last_name":    "Doe",
		"dob":                      "1990-02-03",
		"status":                   "suspended",
		"k1":                       "k1 merged",
		"version":                  99,
		"id":                       uuid.NewString(),
		"benefit_plan":             "other",
		"individual__date_created": "2000-01-01",
	}, members[2].ID, members[1].ID, members[0].ID)

	var emitted []audit.ComplianceEvent
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Times(1).
		DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
			emitted = append(emitted, ev)
			return nil
		})

	s.Run("keeps the earliest member and deletes the rest", func() {
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.Require().NoError(err)
		s.Equal(dmodels.MergeStateMerged, outcome.State)
		s.Equal(members[0].ID, outcome.CanonicalID)
		s.ElementsMatch([]id.BeneficiaryID{members[1].ID, members[2].ID}, outcome.DeletedIDs)
		s.Equal([]string{"dob", "first_name", "k1", "last_name", "status"}, outcome.ChangedFields)

		canonical, err := s.store.FindBeneficiary(s.ctx, members[0].ID)
		s.Require().NoError(err)
		s.Equal(regmodels.StatusSuspended, canonical.Status)
		s.Equal("k1 merged", canonical.JSONExt["k1"])
		s.Equal("a", canonical.JSONExt["k2"])
		s.Equal(user, canonical.UserUpdated)

		ind, err := s.store.FindIndividual(s.ctx, canonical.IndividualID)
		s.Require().NoError(err)
		s.Equal("Merged", ind.FirstName)
		s.Equal("Doe", ind.LastName)
		s.Equal("1990-02-03", ind.DOB.String())
		s.Equal(members[0].DateCreated, canonical.DateCreated)

		for _, m := range members[1:] {
			_, err := s.store.FindBeneficiary(s.ctx, m.ID)
			s.ErrorIs(err, sentinel.ErrNotFound)
		}

		s.Require().Len(emitted, 1)
		s.Equal(string(audit.EventBeneficiariesMerged), emitted[0].Action)
		s.Equal(user, emitted[0].UserID)
		s.Equal(members[0].ID.String(), emitted[0].Subject)
		s.Equal("task-1", emitted[0].Details["task_id"])
	})

	s.Run("redelivery is a no-op", func() {
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.Require().NoError(err)
		s.Equal(dmodels.MergeStateMerged, outcome.State)
		s.Equal(members[0].ID, outcome.CanonicalID)
		s.Empty(outcome.DeletedIDs)
		s.Empty(outcome.ChangedFields)
	})
}

func (s *ServiceSuite) TestMerge_Failures() {
	_, members := s.seedDuplicates()
	user := newUser()

	s.Run("malformed decision fails without touching the registry", func() {
		task := dmodels.CompletedTask{ID: "t", JSONExt: map[string]any{}}
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedDecision))
		s.Equal(dmodels.MergeStateFailed, outcome.State)
	})

	s.Run("vanished members end failed without an error", func() {
		task := decisionTask("t", map[string]any{}, id.BeneficiaryID(uuid.New()))
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.Require().NoError(err)
		s.Equal(dmodels.MergeStateFailed, outcome.State)
	})

	s.Run("invalid status aborts the merge", func() {
		task := decisionTask("t", map[string]any{"status": "RETIRED"}, members[0].ID, members[1].ID)
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal(dmodels.MergeStateFailed, outcome.State)
		_, err = s.store.FindBeneficiary(s.ctx, members[1].ID)
		s.NoError(err)
	})

	s.Run("audit failure rolls back every write", func() {
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))

		task := decisionTask("t", map[string]any{"first_name": "Rolled back", "k1": "x"}, members[0].ID, members[1].ID)
		outcome, err := s.svc.Merge(s.ctx, task, user)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(dmodels.MergeStateFailed, outcome.State)
		s.Empty(outcome.DeletedIDs)

		b, err := s.store.FindBeneficiary(s.ctx, members[1].ID)
		s.Require().NoError(err)
		s.False(b.IsDeleted)
		canonical, err := s.store.FindBeneficiary(s.ctx, members[0].ID)
		s.Require().NoError(err)
		s.Equal("k1 v1", canonical.JSONExt["k1"])
		ind, err := s.store.FindIndividual(s.ctx, canonical.IndividualID)
		s.Require().NoError(err)
		s.Equal("first name 1", ind.FirstName)
	})
}

func (s *ServiceSuite) TestMerge_Guard() {
	_, members := s.seedDuplicates()
	user := newUser()
	guard := mocks.NewMockMergeGuard(s.ctrl)
	svc := s.newService(WithGuard(guard))
	task := decisionTask("guarded", map[string]any{}, members[0].ID, members[1].ID)

	s.Run("skips tasks already applied", func() {
		released := false
		guard.EXPECT().Acquire(gomock.Any(), "guarded").Return(func() { released = true }, nil)
		guard.EXPECT().Seen(gomock.Any(), "guarded").Return(true, nil)

		outcome, err := svc.Merge(s.ctx, task, user)
		s.Require().NoError(err)
		s.Equal(dmodels.MergeStateMerged, outcome.State)
		s.True(released)
		_, err = s.store.FindBeneficiary(s.ctx, members[1].ID)
		s.NoError(err)
	})

	s.Run("proceeds when redis is unavailable", func() {
		guard.EXPECT().Acquire(gomock.Any(), "guarded").Return(nil, errors.New("dial tcp: refused"))
		guard.EXPECT().Seen(gomock.Any(), "guarded").Return(false, errors.New("dial tcp: refused"))
		guard.EXPECT().MarkDone(gomock.Any(), "guarded").Return(errors.New("dial tcp: refused"))
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		outcome, err := svc.Merge(s.ctx, task, user)
		s.Require().NoError(err)
		s.Equal(dmodels.MergeStateMerged, outcome.State)
		s.Equal([]id.BeneficiaryID{members[1].ID}, outcome.DeletedIDs)
	})
}

func (s *ServiceSuite) TestPickCanonical() {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	low := id.BeneficiaryID(uuid.MustParse("00000000-0000-4000-8000-000000000001"))
	high := id.BeneficiaryID(uuid.MustParse("ffffffff-0000-4000-8000-000000000001"))
	older := id.BeneficiaryID(uuid.MustParse("99999999-0000-4000-8000-000000000001"))

	mk := func(bid id.BeneficiaryID, created time.Time) *regmodels.Beneficiary {
		return &regmodels.Beneficiary{ID: bid, History: regmodels.History{DateCreated: created}}
	}

	s.Run("ties go to the lowest id", func() {
		got := pickCanonical([]*regmodels.Beneficiary{mk(high, at), mk(low, at)})
		s.Equal(low, got.ID)
	})

	s.Run("earliest creation wins over id order", func() {
		got := pickCanonical([]*regmodels.Beneficiary{mk(low, at), mk(older, at.Add(-time.Hour)), mk(high, at)})
		s.Equal(older, got.ID)
	})
}

func (s *ServiceSuite) TestPartitionValues() {
	b := partitionValues(map[string]any{
		"first_name":          "a",
		"individual__dob":     "2000-01-01",
		"individual__version": 3,
		"individual__missing": "x",
		"status":              "ACTIVE",
		"json_ext":            map[string]any{},
		"date_created":        "2000-01-01",
		"user_updated":        "u",
		"household_size":      4,
	})
	s.Equal(map[string]any{"first_name": "a", "dob": "2000-01-01"}, b.individual)
	s.Equal(map[string]any{"status": "ACTIVE"}, b.beneficiary)
	s.Equal(map[string]any{"household_size": 4}, b.extension)
}

func (s *ServiceSuite) TestMerge_TracksFailures() {
	_, members := s.seedDuplicates()
	user := newUser()
	ops := mocks.NewMockOpsPublisher(s.ctrl)
	svc := s.newService(WithOpsPublisher(ops))

	s.Run("failed merge is tracked with its code", func() {
		var tracked audit.OpsEvent
		ops.EXPECT().Track(gomock.Any(), gomock.Any()).Times(1).
			Do(func(_ context.Context, ev audit.OpsEvent) { tracked = ev })

		_, err := svc.Merge(s.ctx, dmodels.CompletedTask{ID: "broken", JSONExt: map[string]any{}}, user)
		s.Require().Error(err)
		s.Equal(string(audit.EventMergeFailed), tracked.Action)
		s.Equal("broken", tracked.Subject)
		s.Equal(user, tracked.UserID)
		s.Equal(string(dErrors.CodeMalformedDecision), tracked.Details["code"])
	})

	s.Run("successful and empty merges are not tracked", func() {
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		ops.EXPECT().Track(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Merge(s.ctx, decisionTask("ok", map[string]any{}, members[0].ID, members[1].ID), user)
		s.Require().NoError(err)
		_, err = svc.Merge(s.ctx, decisionTask("gone", map[string]any{}, id.BeneficiaryID(uuid.New())), user)
		s.Require().NoError(err)
	})
}
