package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dedup/internal/deduplication/handler/mocks"
	dmodels "dedup/internal/deduplication/models"
	jwttoken "dedup/internal/jwt_token"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	"dedup/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	jwt     *jwttoken.JWTService
	router  chi.Router
	user    id.UserID
	planID  id.BenefitPlanID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "dedup")
	s.user = id.UserID(uuid.New())
	s.planID = id.BenefitPlanID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger, jwttoken.NewJWTServiceAdapter(s.jwt)).Register(s.router)
}

func (s *HandlerSuite) do(method, path string, body any, perms ...string) *httptest.ResponseRecorder {
	t := s.T()
	req := testutil.NewRequest(t, method, path)
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	}
	if perms != nil {
		token, err := s.jwt.GenerateAccessToken(s.user, perms, time.Minute)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) summaryPath(query string) string {
	return "/v1/benefit-plans/" + s.planID.String() + "/duplicates" + query
}

func (s *HandlerSuite) TestSummary() {
	s.Run("returns rows for the requested columns", func() {
		s.service.EXPECT().Summarize(gomock.Any(), []string{"first_name", "k1", "dob"}, s.planID).
			Return([]dmodels.SummaryRow{{ColumnValues: map[string]string{"first_name": "Ana", "k1": "x", "dob": ""}, Count: 2}}, nil)

		w := s.do(http.MethodGet, s.summaryPath("?columns=first_name,k1&columns=dob"), nil, PermSearch)
		s.Equal(http.StatusOK, w.Code)
		resp := testutil.UnmarshalResponse[map[string][]map[string]any](s.T(), w)
		s.Require().Len((*resp)["rows"], 1)
		s.EqualValues(2, (*resp)["rows"][0]["count"])
	})

	s.Run("maps validation errors to 400", func() {
		s.service.EXPECT().Summarize(gomock.Any(), gomock.Any(), s.planID).
			Return(nil, dErrors.New(dErrors.CodeValidation, "deduplication.validation.no_columns_provided"))

		w := s.do(http.MethodGet, s.summaryPath(""), nil, PermSearch)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), "deduplication.validation.no_columns_provided")
	})

	s.Run("rejects anonymous callers", func() {
		w := s.do(http.MethodGet, s.summaryPath("?columns=k1"), nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("requires the search permission", func() {
		w := s.do(http.MethodGet, s.summaryPath("?columns=k1"), nil, PermCreateReviewTasks)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("rejects malformed plan ids", func() {
		w := s.do(http.MethodGet, "/v1/benefit-plans/not-a-uuid/duplicates?columns=k1", nil, PermSearch)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestCreateReviewTasks() {
	path := "/v1/benefit-plans/" + s.planID.String() + "/duplicates/review-tasks"

	s.Run("creates tasks as the authenticated user", func() {
		taskID := id.TaskID(uuid.New())
		s.service.EXPECT().CreateReviewTasksForPlan(gomock.Any(), s.planID, []string{"first_name"}, s.user).
			Return(dmodels.BatchResult{Success: true, Tasks: []dmodels.TaskHandle{{ID: taskID}}}, nil)

		w := s.do(http.MethodPost, path, map[string]any{"columns": []string{"first_name"}}, PermCreateReviewTasks)
		s.Equal(http.StatusCreated, w.Code)
		s.Contains(w.Body.String(), taskID.String())
	})

	s.Run("partial failure is a multi-status", func() {
		s.service.EXPECT().CreateReviewTasksForPlan(gomock.Any(), s.planID, gomock.Any(), s.user).
			Return(dmodels.BatchResult{
				Tasks:    []dmodels.TaskHandle{},
				Failures: []dmodels.GroupFailure{{Values: map[string]string{"k1": "x"}, Error: "task subsystem returned 503"}},
			}, nil)

		w := s.do(http.MethodPost, path, map[string]any{"columns": []string{"k1"}}, PermCreateReviewTasks)
		s.Equal(http.StatusMultiStatus, w.Code)
		s.Contains(w.Body.String(), "task subsystem returned 503")
	})

	s.Run("unknown fields are rejected", func() {
		w := s.do(http.MethodPost, path, map[string]any{"cols": []string{"k1"}}, PermCreateReviewTasks)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("requires the create permission", func() {
		w := s.do(http.MethodPost, path, map[string]any{"columns": []string{"k1"}}, PermSearch)
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *HandlerSuite) TestRenderPayload() {
	s.Run("re-renders through the named serializer", func() {
		s.service.EXPECT().RenderPayload(gomock.Any(), dmodels.SerializerBeneficiaryPayloadV1, gomock.Any()).
			Return(map[string]any{"k1": "x", "id_count": 2}, nil)

		w := s.do(http.MethodPost, "/v1/deduplication/payloads/render", map[string]any{
			"json_serializer": string(dmodels.SerializerBeneficiaryPayloadV1),
			"data":            map[string]any{"k1": "x", "ids": []string{}},
		}, PermCreateReviewTasks)
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"k1":"x","id_count":2}`, w.Body.String())
	})

	s.Run("data is required", func() {
		w := s.do(http.MethodPost, "/v1/deduplication/payloads/render", map[string]any{
			"json_serializer": string(dmodels.SerializerBeneficiaryPayloadV1),
		}, PermCreateReviewTasks)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
