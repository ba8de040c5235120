package service

import (
	"context"
	"sync"
	"time"

	regmodels "dedup/internal/registry/models"
	"dedup/internal/registry/store"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

// MergeStore is the write side of the record store used inside a merge.
type MergeStore interface {
	// LockBeneficiaries returns the live members among ids, ordered by id,
	// and holds them until the transaction ends.
	LockBeneficiaries(ctx context.Context, ids []id.BeneficiaryID) ([]*regmodels.Beneficiary, error)
	FindIndividual(ctx context.Context, iid id.IndividualID) (*regmodels.Individual, error)
	UpdateIndividual(ctx context.Context, i *regmodels.Individual) error
	UpdateBeneficiaryFields(ctx context.Context, b *regmodels.Beneficiary) error
	UpdateBeneficiaryExt(ctx context.Context, b *regmodels.Beneficiary) error
	SoftDeleteBeneficiaries(ctx context.Context, ids []id.BeneficiaryID, user id.UserID, at time.Time) (int, error)
}

// MergeTx provides the transactional boundary for a merge. fn receives the
// transaction's context and must use it for every store call; any error
// aborts everything fn wrote.
type MergeTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store MergeStore) error) error
}

const defaultMergeTxTimeout = 30 * time.Second

// inMemoryMergeTx serializes merges behind one mutex and restores a snapshot
// when fn fails. Member sets are only known after fn starts, so there is no
// key to shard on.
type inMemoryMergeTx struct {
	mu      sync.Mutex
	store   *store.InMemory
	timeout time.Duration
}

// NewInMemoryTx wraps an in-memory registry in a MergeTx.
func NewInMemoryTx(s *store.InMemory, timeout time.Duration) MergeTx {
	if timeout <= 0 {
		timeout = defaultMergeTxTimeout
	}
	return &inMemoryMergeTx{store: s, timeout: timeout}
}

func (t *inMemoryMergeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store MergeStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	snap := t.store.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			t.store.Restore(snap)
			panic(r)
		}
	}()
	if err := fn(ctx, t.store); err != nil {
		t.store.Restore(snap)
		return err
	}
	return nil
}
