package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	dmodels "dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	"dedup/pkg/platform/sentinel"
)

// InMemory is a map-backed registry. Reads return clones so callers can
// mutate results freely.
type InMemory struct {
	mu            sync.RWMutex
	plans         map[id.BenefitPlanID]*regmodels.BenefitPlan
	individuals   map[id.IndividualID]*regmodels.Individual
	beneficiaries map[id.BeneficiaryID]*regmodels.Beneficiary
}

func NewInMemory() *InMemory {
	return &InMemory{
		plans:         make(map[id.BenefitPlanID]*regmodels.BenefitPlan),
		individuals:   make(map[id.IndividualID]*regmodels.Individual),
		beneficiaries: make(map[id.BeneficiaryID]*regmodels.Beneficiary),
	}
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

func (s *InMemory) CreateBenefitPlan(_ context.Context, p *regmodels.BenefitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; ok {
		return sentinel.ErrConflict
	}
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *InMemory) CreateIndividual(_ context.Context, i *regmodels.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[i.ID]; ok {
		return sentinel.ErrConflict
	}
	s.individuals[i.ID] = i.Clone()
	return nil
}

func (s *InMemory) CreateBeneficiary(_ context.Context, b *regmodels.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.beneficiaries[b.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.individuals[b.IndividualID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.plans[b.BenefitPlanID]; !ok {
		return sentinel.ErrNotFound
	}
	s.beneficiaries[b.ID] = b.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// FindBeneficiary returns sentinel.ErrNotFound for unknown or soft-deleted ids.
func (s *InMemory) FindBeneficiary(_ context.Context, bid id.BeneficiaryID) (*regmodels.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.beneficiaries[bid]
	if !ok || b.IsDeleted {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *InMemory) FindIndividual(_ context.Context, iid id.IndividualID) (*regmodels.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.individuals[iid]
	if !ok || i.IsDeleted {
		return nil, sentinel.ErrNotFound
	}
	return i.Clone(), nil
}

func (s *InMemory) FindBenefitPlan(_ context.Context, pid id.BenefitPlanID) (*regmodels.BenefitPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[pid]
	if !ok || p.IsDeleted {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// AggregateDuplicates groups the plan's live beneficiaries by the projected
// values of q's columns and keeps groups with more than one member. Groups
// are returned sorted by their values to keep tests readable.
func (s *InMemory) AggregateDuplicates(ctx context.Context, q dmodels.GroupingQuery) ([]dmodels.DuplicateGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	columns := q.Columns()

	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		values map[string]string
		ids    []id.BeneficiaryID
	}
	buckets := map[string]*bucket{}
	var order []string

	for _, b := range s.beneficiaries {
		if b.BenefitPlanID != q.PlanID || b.IsDeleted {
			continue
		}
		values := make(map[string]string, len(columns))
		var key strings.Builder
		for _, name := range q.Structured {
			text, ok := groupText(s.structuredValue(b, name))
			writeKeyPart(&key, text, ok)
			values[name] = text
		}
		for _, name := range q.Extension {
			text, ok := groupText(b.JSONExt[name])
			writeKeyPart(&key, text, ok)
			values[name] = text
		}
		k := key.String()
		bk, ok := buckets[k]
		if !ok {
			bk = &bucket{values: values}
			buckets[k] = bk
			order = append(order, k)
		}
		bk.ids = append(bk.ids, b.ID)
	}

	sort.Strings(order)
	var groups []dmodels.DuplicateGroup
	for _, k := range order {
		bk := buckets[k]
		if len(bk.ids) < 2 {
			continue
		}
		groups = append(groups, dmodels.DuplicateGroup{
			Columns: columns,
			Values:  bk.values,
			Count:   len(bk.ids),
			IDs:     bk.ids,
		})
	}
	return groups, nil
}

// writeKeyPart keeps NULL distinct from the empty string, as GROUP BY does.
func writeKeyPart(b *strings.Builder, text string, ok bool) {
	if !ok {
		b.WriteString("\x00N")
	} else {
		b.WriteString("\x00V")
		b.WriteString(text)
	}
}

// structuredValue walks a possibly qualified structured name. Caller holds mu.
func (s *InMemory) structuredValue(b *regmodels.Beneficiary, name string) any {
	head, tail, qualified := strings.Cut(name, regmodels.QualifierSep)
	if !qualified {
		return b.FieldValues()[head]
	}
	switch head {
	case regmodels.FieldIndividual:
		if i, ok := s.individuals[b.IndividualID]; ok {
			return i.FieldValues()[tail]
		}
	case regmodels.FieldBenefitPlan:
		if p, ok := s.plans[b.BenefitPlanID]; ok {
			return planFieldValues(p)[tail]
		}
	}
	return nil
}

func planFieldValues(p *regmodels.BenefitPlan) map[string]any {
	return map[string]any{
		regmodels.FieldID:                    p.ID,
		regmodels.FieldCode:                  p.Code,
		regmodels.FieldName:                  p.Name,
		regmodels.FieldBeneficiaryDataSchema: p.BeneficiaryDataSchema,
		regmodels.FieldJSONExt:               p.JSONExt,
		regmodels.FieldDateCreated:           p.DateCreated,
		regmodels.FieldDateUpdated:           p.DateUpdated,
		regmodels.FieldUserCreated:           p.UserCreated,
		regmodels.FieldUserUpdated:           p.UserUpdated,
		regmodels.FieldVersion:               p.Version,
		regmodels.FieldIsDeleted:             p.IsDeleted,
	}
}

// -----------------------------------------------------------------------------
// Merge writes
// -----------------------------------------------------------------------------

// LockBeneficiaries returns the live members among ids ordered by id. The
// in-memory store has no row locks; callers serialize through the merge
// transaction.
func (s *InMemory) LockBeneficiaries(ctx context.Context, ids []id.BeneficiaryID) ([]*regmodels.Beneficiary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*regmodels.Beneficiary
	for _, bid := range ids {
		if b, ok := s.beneficiaries[bid]; ok && !b.IsDeleted {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemory) UpdateIndividual(_ context.Context, i *regmodels.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[i.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.individuals[i.ID] = i.Clone()
	return nil
}

// UpdateBeneficiaryFields writes the structured columns and bookkeeping of b,
// leaving json_ext untouched.
func (s *InMemory) UpdateBeneficiaryFields(_ context.Context, b *regmodels.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.beneficiaries[b.ID]
	if !ok || cur.IsDeleted {
		return sentinel.ErrNotFound
	}
	next := b.Clone()
	next.JSONExt = cur.JSONExt
	s.beneficiaries[b.ID] = next
	return nil
}

// UpdateBeneficiaryExt writes json_ext and bookkeeping of b only.
func (s *InMemory) UpdateBeneficiaryExt(_ context.Context, b *regmodels.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.beneficiaries[b.ID]
	if !ok || cur.IsDeleted {
		return sentinel.ErrNotFound
	}
	cur.JSONExt = regmodels.CloneExt(b.JSONExt)
	cur.History = b.History
	return nil
}

// SoftDeleteBeneficiaries marks live members deleted and returns how many
// rows changed. Already deleted ids are skipped.
func (s *InMemory) SoftDeleteBeneficiaries(_ context.Context, ids []id.BeneficiaryID, user id.UserID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, bid := range ids {
		b, ok := s.beneficiaries[bid]
		if !ok || b.IsDeleted {
			continue
		}
		b.IsDeleted = true
		b.Touch(user, at)
		n++
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// Snapshot is an opaque copy of the store's state.
type Snapshot struct {
	plans         map[id.BenefitPlanID]*regmodels.BenefitPlan
	individuals   map[id.IndividualID]*regmodels.Individual
	beneficiaries map[id.BeneficiaryID]*regmodels.Beneficiary
}

// Snapshot copies the current state so a failed transaction can Restore it.
func (s *InMemory) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		plans:         make(map[id.BenefitPlanID]*regmodels.BenefitPlan, len(s.plans)),
		individuals:   make(map[id.IndividualID]*regmodels.Individual, len(s.individuals)),
		beneficiaries: make(map[id.BeneficiaryID]*regmodels.Beneficiary, len(s.beneficiaries)),
	}
	for k, v := range s.plans {
		snap.plans[k] = v.Clone()
	}
	for k, v := range s.individuals {
		snap.individuals[k] = v.Clone()
	}
	for k, v := range s.beneficiaries {
		snap.beneficiaries[k] = v.Clone()
	}
	return snap
}

func (s *InMemory) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = snap.plans
	s.individuals = snap.individuals
	s.beneficiaries = snap.beneficiaries
}

// Ping satisfies the health check.
func (s *InMemory) Ping(context.Context) error { return nil }
