package service

import (
	"sync"

	"go.uber.org/mock/gomock"

	dmodels "dedup/internal/deduplication/models"
	"dedup/internal/registry/fixtures"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	"dedup/pkg/platform/sentinel"
)

// Two merges sharing m1 must behave as if one ran after the other: m1 is
// never kept by one merge while the other deletes it.
func (s *ServiceSuite) TestMerge_OverlappingMembersSerialize() {
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	user := newUser()

	for range 25 {
		plan := s.reg.Plan("CT", "k1")
		m := make([]*regmodels.Beneficiary, 3)
		for i := range m {
			m[i] = s.reg.Beneficiary(plan, fixtures.Person{FirstName: "same"}, map[string]any{"k1": "x"})
		}
		taskA := decisionTask("a", map[string]any{}, m[0].ID, m[1].ID)
		taskB := decisionTask("b", map[string]any{}, m[1].ID, m[2].ID)

		var wg sync.WaitGroup
		outcomes := make([]dmodels.MergeOutcome, 2)
		errs := make([]error, 2)
		for i, task := range []dmodels.CompletedTask{taskA, taskB} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i], errs[i] = s.svc.Merge(s.ctx, task, user)
			}()
		}
		wg.Wait()

		s.Require().NoError(errs[0])
		s.Require().NoError(errs[1])
		a, b := outcomes[0], outcomes[1]
		s.Equal(dmodels.MergeStateMerged, a.State)
		s.Equal(dmodels.MergeStateMerged, b.State)

		live := s.liveOf(m)
		s.Equal(m[0].ID, a.CanonicalID)
		s.Equal([]id.BeneficiaryID{m[1].ID}, a.DeletedIDs)
		switch b.CanonicalID {
		case m[1].ID: // b ran first
			s.Equal([]id.BeneficiaryID{m[2].ID}, b.DeletedIDs)
			s.Equal([]id.BeneficiaryID{m[0].ID}, live)
		case m[2].ID: // a ran first, b found m1 already gone
			s.Empty(b.DeletedIDs)
			s.Equal([]id.BeneficiaryID{m[0].ID, m[2].ID}, live)
		default:
			s.Failf("unexpected canonical", "merge b kept %s", b.CanonicalID)
		}
	}
}

func (s *ServiceSuite) liveOf(members []*regmodels.Beneficiary) []id.BeneficiaryID {
	var live []id.BeneficiaryID
	for _, m := range members {
		_, err := s.store.FindBeneficiary(s.ctx, m.ID)
		if err == nil {
			live = append(live, m.ID)
			continue
		}
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	}
	return live
}
