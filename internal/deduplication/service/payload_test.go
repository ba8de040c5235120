package service

import (
	"time"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

func (s *ServiceSuite) TestBuildPayload() {
	plan, members := s.seedDuplicates()
	group := dmodels.DuplicateGroup{
		PlanID:  plan.ID,
		Columns: []string{"individual__first_name", "k1"},
		Values:  map[string]string{"individual__first_name": "first name 1", "k1": "k1 v1"},
		Count:   2,
		IDs:     []id.BeneficiaryID{members[1].ID, members[0].ID},
	}

	s.Run("freezes members with the individual expanded and the plan labelled", func() {
		payload, err := s.svc.BuildPayload(s.ctx, group)
		s.Require().NoError(err)
		s.Require().Len(payload.Members, 2)

		byID := map[string]dmodels.Member{}
		for _, m := range payload.Members {
			byID[m["id"].(string)] = m
		}
		m := byID[members[0].ID.String()]
		s.Require().NotNil(m)
		s.Equal("CT - CT plan", m["benefit_plan"])
		s.Equal("ACTIVE", m["status"])
		s.Equal(map[string]any{"k1": "k1 v1", "k2": "a"}, m["json_ext"])
		s.Equal(members[0].DateCreated.UTC().Format(time.RFC3339Nano), m["date_created"])
		for _, f := range []string{"version", "is_deleted", "date_updated", "user_created", "user_updated"} {
			s.NotContains(m, f)
		}

		ind, ok := m["individual"].(map[string]any)
		s.Require().True(ok)
		s.Equal("first name 1", ind["first_name"])
		s.Equal("1980-05-01", ind["dob"])
		s.NotContains(ind, "version")
	})

	s.Run("headers list schema fields then plan keys without bookkeeping", func() {
		payload, err := s.svc.BuildPayload(s.ctx, group)
		s.Require().NoError(err)
		s.Equal([]string{
			"id", "first_name", "last_name", "dob", "json_ext", "date_created",
			"individual", "status", "k1", "k2",
		}, payload.Headers)
	})

	s.Run("renders with the group's column values", func() {
		payload, err := s.svc.BuildPayload(s.ctx, group)
		s.Require().NoError(err)
		out := payload.Map()
		s.Equal("first name 1", out["individual__first_name"])
		s.Equal("k1 v1", out["k1"])
		s.Equal(2, out["id_count"])
		s.Len(out["ids"], 2)
	})
}

func (s *ServiceSuite) TestBuildPayload_VanishedMembers() {
	plan, members := s.seedDuplicates()
	group := dmodels.DuplicateGroup{
		PlanID: plan.ID,
		Values: map[string]string{"k1": "k1 v1"},
		Count:  2,
		IDs:    []id.BeneficiaryID{members[0].ID, members[1].ID},
	}

	_, err := s.store.SoftDeleteBeneficiaries(s.ctx, []id.BeneficiaryID{members[0].ID}, s.reg.User, time.Now())
	s.Require().NoError(err)

	s.Run("skips deleted members", func() {
		payload, err := s.svc.BuildPayload(s.ctx, group)
		s.Require().NoError(err)
		s.Require().Len(payload.Members, 1)
		s.Equal(members[1].ID.String(), payload.Members[0]["id"])
	})

	_, err = s.store.SoftDeleteBeneficiaries(s.ctx, []id.BeneficiaryID{members[1].ID}, s.reg.User, time.Now())
	s.Require().NoError(err)

	s.Run("returns an empty payload with plan headers when none remain", func() {
		payload, err := s.svc.BuildPayload(s.ctx, group)
		s.Require().NoError(err)
		s.Empty(payload.Members)
		s.Contains(payload.Headers, "k1")
		s.Contains(payload.Headers, "first_name")
	})
}

func (s *ServiceSuite) TestRenderPayload() {
	plan, members := s.seedDuplicates()
	data := dmodels.DuplicateGroup{
		PlanID: plan.ID,
		Values: map[string]string{"k1": "k1 v1"},
		Count:  2,
		IDs:    []id.BeneficiaryID{members[0].ID, members[1].ID},
	}.Data()

	s.Run("rebuilds through the registered serializer", func() {
		out, err := s.svc.RenderPayload(s.ctx, dmodels.SerializerBeneficiaryPayloadV1, data)
		s.Require().NoError(err)
		s.Equal("k1 v1", out["k1"])
		s.Len(out["ids"], 2)
		s.Contains(out["headers"], "first_name")
	})

	s.Run("unknown serializer is a bad request", func() {
		_, err := s.svc.RenderPayload(s.ctx, "deduplication.unknown", data)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
