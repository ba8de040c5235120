//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "dedup/pkg/domain"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/platform/audit/store/postgres"
	txcontext "dedup/pkg/platform/tx"
	"dedup/pkg/testutil/containers"
)

type OutboxStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
}

func TestOutboxStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *OutboxStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "outbox"))
}

func (s *OutboxStoreSuite) event(subject string) audit.Event {
	return audit.Event{
		UserID:  id.UserID(uuid.New()),
		Subject: subject,
		Action:  string(audit.EventBeneficiariesMerged),
		Details: map[string]any{"deleted_ids": []string{"x"}},
	}
}

func (s *OutboxStoreSuite) TestAppendJoinsCallerTransaction() {
	tx, err := s.postgres.DB.BeginTx(s.ctx, &sql.TxOptions{})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(s.ctx, tx), s.event("b-1")))
	s.Require().NoError(tx.Rollback())

	n, err := s.store.ProcessPending(s.ctx, 10, func(context.Context, audit.OutboxEntry) error { return nil })
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *OutboxStoreSuite) TestProcessPending() {
	s.Require().NoError(s.store.Append(s.ctx, s.event("b-1")))
	s.Require().NoError(s.store.Append(s.ctx, s.event("b-2")))

	s.Run("failures stay pending", func() {
		n, err := s.store.ProcessPending(s.ctx, 10, func(_ context.Context, e audit.OutboxEntry) error {
			if e.AggregateID == "b-1" {
				return errors.New("broker down")
			}
			var payload map[string]any
			s.Require().NoError(json.Unmarshal(e.Payload, &payload))
			s.Equal("compliance", payload["category"])
			return nil
		})
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("retry delivers the remainder", func() {
		var seen []audit.OutboxEntry
		n, err := s.store.ProcessPending(s.ctx, 10, func(_ context.Context, e audit.OutboxEntry) error {
			seen = append(seen, e)
			return nil
		})
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Require().Len(seen, 1)
		s.Equal("b-1", seen[0].AggregateID)
		s.Equal(1, seen[0].Attempts)
	})
}
