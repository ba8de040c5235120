// Package fixtures seeds registry stores for tests.
package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
)

// Seeder is implemented by both registry stores.
type Seeder interface {
	CreateBenefitPlan(ctx context.Context, p *regmodels.BenefitPlan) error
	CreateIndividual(ctx context.Context, i *regmodels.Individual) error
	CreateBeneficiary(ctx context.Context, b *regmodels.Beneficiary) error
}

// Registry creates linked rows. Each created row is one second younger than
// the previous one so creation order is also DateCreated order.
type Registry struct {
	t     testing.TB
	store Seeder
	now   time.Time
	User  id.UserID
}

func New(t testing.TB, store Seeder) *Registry {
	return &Registry{
		t:     t,
		store: store,
		now:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		User:  id.UserID(uuid.New()),
	}
}

func (r *Registry) history() regmodels.History {
	r.now = r.now.Add(time.Second)
	return regmodels.History{
		DateCreated: r.now,
		DateUpdated: r.now,
		UserCreated: r.User,
		UserUpdated: r.User,
		Version:     1,
	}
}

// Plan creates a benefit plan declaring keys in its beneficiary data schema.
func (r *Registry) Plan(code string, keys ...string) *regmodels.BenefitPlan {
	r.t.Helper()
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = map[string]any{"type": "string"}
	}
	p := &regmodels.BenefitPlan{
		ID:                    id.BenefitPlanID(uuid.New()),
		Code:                  code,
		Name:                  code + " plan",
		BeneficiaryDataSchema: map[string]any{"properties": props},
		History:               r.history(),
	}
	require.NoError(r.t, r.store.CreateBenefitPlan(context.Background(), p))
	return p
}

// Person describes the individual behind a beneficiary.
type Person struct {
	FirstName string
	LastName  string
	DOB       string
	Ext       map[string]any
}

// Beneficiary creates an individual from person and enrols it in plan with
// the given extension data.
func (r *Registry) Beneficiary(plan *regmodels.BenefitPlan, person Person, ext map[string]any) *regmodels.Beneficiary {
	r.t.Helper()
	ind := &regmodels.Individual{
		ID:        id.IndividualID(uuid.New()),
		FirstName: person.FirstName,
		LastName:  person.LastName,
		JSONExt:   person.Ext,
		History:   r.history(),
	}
	if person.DOB != "" {
		dob, err := regmodels.ParseDate(person.DOB)
		require.NoError(r.t, err)
		ind.DOB = dob
	}
	require.NoError(r.t, r.store.CreateIndividual(context.Background(), ind))

	b := &regmodels.Beneficiary{
		ID:            id.BeneficiaryID(uuid.New()),
		IndividualID:  ind.ID,
		BenefitPlanID: plan.ID,
		Status:        regmodels.StatusActive,
		JSONExt:       ext,
		History:       r.history(),
	}
	require.NoError(r.t, r.store.CreateBeneficiary(context.Background(), b))
	return b
}
