package main

import (
	"context"
	"database/sql"
	"time"

	"dedup/internal/deduplication/service"
	"dedup/internal/registry/store"
	dErrors "dedup/pkg/domain-errors"
	txctx "dedup/pkg/platform/tx"
)

const defaultMergeTxTimeout = 30 * time.Second

// postgresMergeTx runs a merge in one database transaction. The transaction
// travels in the context, so the audit outbox insert made through the same
// context commits or rolls back with the merge.
type postgresMergeTx struct {
	db      *sql.DB
	store   *store.Postgres
	timeout time.Duration
}

func newPostgresMergeTx(db *sql.DB, s *store.Postgres, timeout time.Duration) *postgresMergeTx {
	return &postgresMergeTx{db: db, store: s, timeout: timeout}
}

func (t *postgresMergeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.MergeStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultMergeTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin merge transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txctx.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit merge")
	}
	return nil
}
