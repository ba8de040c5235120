package service

import (
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

func (s *ServiceSuite) TestAggregate() {
	plan, members := s.seedDuplicates()

	s.Run("groups members sharing structured and extension values", func() {
		groups, err := s.svc.Aggregate(s.ctx, plan.ID, []string{"individual__first_name", "k1"})
		s.Require().NoError(err)
		s.Require().Len(groups, 1)

		g := groups[0]
		s.Equal(2, g.Count)
		s.Equal(plan.ID, g.PlanID)
		s.Equal(map[string]string{"individual__first_name": "first name 1", "k1": "k1 v1"}, g.Values)
		s.ElementsMatch([]id.BeneficiaryID{members[0].ID, members[1].ID}, g.IDs)
	})

	s.Run("no shared values yields no groups", func() {
		groups, err := s.svc.Aggregate(s.ctx, plan.ID, []string{"k2"})
		s.Require().NoError(err)
		s.Empty(groups)
	})

	s.Run("other plans are not visited", func() {
		groups, err := s.svc.Aggregate(s.ctx, id.BenefitPlanID(uuid.New()), []string{"k1"})
		s.Require().NoError(err)
		s.Empty(groups)
	})

	s.Run("missing plan is rejected", func() {
		_, err := s.svc.Aggregate(s.ctx, id.BenefitPlanID{}, []string{"k1"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal("benefit plan not specified", dErrors.MessageOf(err))
	})

	s.Run("empty attributes are rejected", func() {
		_, err := s.svc.Aggregate(s.ctx, plan.ID, []string{" ", ""})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal("at least one column required", dErrors.MessageOf(err))
	})

	s.Run("unknown related field is rejected", func() {
		_, err := s.svc.Aggregate(s.ctx, plan.ID, []string{"individual__shoe_size"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestAggregate_StoreFailure() {
	svc := New(failingRegistry{InMemory: s.store, cause: errStoreDown}, nil, nil,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := svc.Aggregate(s.ctx, id.BenefitPlanID(uuid.New()), []string{"k1"})
	s.Require().Error(err)
	s.True(errors.Is(err, errStoreDown))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestSummarize() {
	plan, _ := s.seedDuplicates()

	s.Run("aliases individual fields and keys rows by the requested names", func() {
		rows, err := s.svc.Summarize(s.ctx, []string{"first_name", "last_name", "dob"}, plan.ID)
		s.Require().NoError(err)
		s.Equal([]dmodels.SummaryRow{{
			ColumnValues: map[string]string{"first_name": "first name 1", "last_name": "last", "dob": "1980-05-01"},
			Count:        2,
		}}, rows)
	})

	s.Run("qualified individual columns come back bare", func() {
		rows, err := s.svc.Summarize(s.ctx, []string{"individual__first_name", "first_name", "individual__dob"}, plan.ID)
		s.Require().NoError(err)
		s.Equal([]dmodels.SummaryRow{{
			ColumnValues: map[string]string{"first_name": "first name 1", "dob": "1980-05-01"},
			Count:        2,
		}}, rows)
	})

	s.Run("extension keys pass through", func() {
		rows, err := s.svc.Summarize(s.ctx, []string{"k1"}, plan.ID)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(map[string]string{"k1": "k1 v1"}, rows[0].ColumnValues)
	})

	s.Run("empty columns fail validation", func() {
		_, err := s.svc.Summarize(s.ctx, nil, plan.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("deduplication.validation.no_columns_provided", dErrors.MessageOf(err))
	})
}
