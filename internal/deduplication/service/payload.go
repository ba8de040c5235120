package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dmodels "dedup/internal/deduplication/models"
	"dedup/internal/deduplication/serialize"
	regmodels "dedup/internal/registry/models"
	dErrors "dedup/pkg/domain-errors"
	"dedup/pkg/platform/sentinel"
)

// ExcludedFields are the bookkeeping fields left out of member dictionaries
// and headers. date_created stays: reviewers use it to see which record is
// oldest.
var ExcludedFields = func() map[string]struct{} {
	out := make(map[string]struct{}, len(regmodels.BookkeepingFields))
	for _, f := range regmodels.BookkeepingFields {
		if f == regmodels.FieldDateCreated {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}()

func excluded(field string) bool {
	_, ok := ExcludedFields[field]
	return ok
}

// schemaHeaders are the individual's fields followed by the beneficiary's,
// without excluded fields and without the plan reference.
var schemaHeaders = func() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, schema := range []*regmodels.Schema{regmodels.IndividualSchema, regmodels.BeneficiarySchema} {
		for _, name := range schema.FieldNames() {
			if excluded(name) || name == regmodels.FieldBenefitPlan {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}()

func headersFor(plan *regmodels.BenefitPlan) []string {
	out := append([]string(nil), schemaHeaders...)
	if plan == nil {
		return out
	}
	seen := make(map[string]struct{}, len(out))
	for _, h := range out {
		seen[h] = struct{}{}
	}
	for _, k := range plan.SchemaKeys() {
		if _, dup := seen[k]; dup || excluded(k) || k == regmodels.FieldBenefitPlan {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func withoutExcluded(values map[string]any) map[string]any {
	for k := range values {
		if excluded(k) {
			delete(values, k)
		}
	}
	return values
}

func memberDict(b *regmodels.Beneficiary, ind *regmodels.Individual, plan *regmodels.BenefitPlan) dmodels.Member {
	values := withoutExcluded(b.FieldValues())
	if ind != nil {
		values[regmodels.FieldIndividual] = withoutExcluded(ind.FieldValues())
	} else {
		values[regmodels.FieldIndividual] = nil
	}
	if plan != nil {
		values[regmodels.FieldBenefitPlan] = plan.Label()
	} else {
		values[regmodels.FieldBenefitPlan] = nil
	}
	return dmodels.Member(serialize.Map(values))
}

// BuildPayload freezes group into a review snapshot. Members that no longer
// exist are skipped; when none remain the payload has no members and headers
// from the schemas alone, plus the plan's keys when the group names a plan.
func (s *Service) BuildPayload(ctx context.Context, group dmodels.DuplicateGroup) (dmodels.TaskPayload, error) {
	ctx, span := s.tracer.Start(ctx, "deduplication.BuildPayload")
	defer span.End()
	span.SetAttributes(attribute.Int("members", len(group.IDs)))
	start := time.Now()
	defer s.observePayload(start)

	plans := map[string]*regmodels.BenefitPlan{}
	loadPlan := func(b *regmodels.Beneficiary) (*regmodels.BenefitPlan, error) {
		key := b.BenefitPlanID.String()
		if p, ok := plans[key]; ok {
			return p, nil
		}
		p, err := s.registry.FindBenefitPlan(ctx, b.BenefitPlanID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load benefit plan")
		}
		plans[key] = p
		return p, nil
	}

	var headerPlan *regmodels.BenefitPlan
	members := make([]dmodels.Member, 0, len(group.IDs))
	for _, bid := range group.SortedIDs() {
		b, err := s.registry.FindBeneficiary(ctx, bid)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.DebugContext(ctx, "duplicate member vanished", "beneficiary_id", bid)
			continue
		}
		if err != nil {
			return dmodels.TaskPayload{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load beneficiary")
		}

		ind, err := s.registry.FindIndividual(ctx, b.IndividualID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dmodels.TaskPayload{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load individual")
		}
		plan, err := loadPlan(b)
		if err != nil {
			return dmodels.TaskPayload{}, err
		}
		if headerPlan == nil {
			headerPlan = plan
		}
		members = append(members, memberDict(b, ind, plan))
	}

	if headerPlan == nil && !group.PlanID.IsNil() {
		p, err := s.registry.FindBenefitPlan(ctx, group.PlanID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dmodels.TaskPayload{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load benefit plan")
		}
		headerPlan = p
	}

	return dmodels.TaskPayload{
		Group:   group,
		Members: members,
		Headers: headersFor(headerPlan),
	}, nil
}

type serializerFunc func(ctx context.Context, group dmodels.DuplicateGroup) (dmodels.TaskPayload, error)

// RenderPayload rebuilds a stored task payload through the serializer named
// by ref, so the task subsystem can refresh a snapshot.
func (s *Service) RenderPayload(ctx context.Context, ref dmodels.SerializerRef, data map[string]any) (map[string]any, error) {
	build, ok := s.serializers[ref]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown serializer "+string(ref))
	}
	group, err := dmodels.GroupFromData(data)
	if err != nil {
		return nil, err
	}
	payload, err := build(ctx, group)
	if err != nil {
		return nil, err
	}
	return payload.Map(), nil
}
