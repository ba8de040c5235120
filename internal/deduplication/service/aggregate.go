package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dedup/internal/deduplication/columns"
	dmodels "dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	pstrings "dedup/pkg/platform/strings"
)

// Aggregate returns the groups of live beneficiaries in planID sharing
// identical values for attributes. Only groups with more than one member are
// returned, in no particular order.
func (s *Service) Aggregate(ctx context.Context, planID id.BenefitPlanID, attributes []string) ([]dmodels.DuplicateGroup, error) {
	if planID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "benefit plan not specified")
	}
	if len(pstrings.DedupeAndTrim(attributes)) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one column required")
	}
	res, err := columns.Resolve(regmodels.BeneficiarySchema, attributes)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "deduplication.Aggregate")
	defer span.End()
	span.SetAttributes(
		attribute.String("benefit_plan_id", planID.String()),
		attribute.StringSlice("structured", res.Structured),
		attribute.StringSlice("extension", res.Extension),
	)
	start := time.Now()

	groups, err := s.registry.AggregateDuplicates(ctx, dmodels.GroupingQuery{
		PlanID:     planID,
		Structured: res.Structured,
		Extension:  res.Extension,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate duplicates")
	}

	out := make([]dmodels.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		if g.Count < 2 || len(g.IDs) < 2 {
			continue
		}
		g.PlanID = planID
		out = append(out, g)
	}
	s.observeAggregate(start, len(out))
	span.SetAttributes(attribute.Int("groups", len(out)))
	return out, nil
}

// summaryAliases lets callers name individual fields without the relation
// prefix.
var summaryAliases = map[string]string{
	regmodels.FieldFirstName: regmodels.FieldIndividual + regmodels.QualifierSep + regmodels.FieldFirstName,
	regmodels.FieldLastName:  regmodels.FieldIndividual + regmodels.QualifierSep + regmodels.FieldLastName,
	regmodels.FieldDOB:       regmodels.FieldIndividual + regmodels.QualifierSep + regmodels.FieldDOB,
}

const msgNoColumns = "deduplication.validation.no_columns_provided"

// unaliased maps each qualified individual column back to its bare name.
var unaliased = func() map[string]string {
	out := make(map[string]string, len(summaryAliases))
	for bare, qualified := range summaryAliases {
		out[qualified] = bare
	}
	return out
}()

// Summarize is the outward duplicate summary. Individual fields are reported
// under their bare names whether the caller asked with or without the
// relation prefix; every other column keeps the requested name.
func (s *Service) Summarize(ctx context.Context, cols []string, planID id.BenefitPlanID) ([]dmodels.SummaryRow, error) {
	cols = pstrings.DedupeAndTrim(cols)
	if len(cols) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, msgNoColumns)
	}

	attributes := make([]string, len(cols))
	for i, c := range cols {
		if qualified, ok := summaryAliases[c]; ok {
			c = qualified
		}
		attributes[i] = c
	}

	groups, err := s.Aggregate(ctx, planID, pstrings.DedupeAndTrim(attributes))
	if err != nil {
		return nil, err
	}

	rows := make([]dmodels.SummaryRow, 0, len(groups))
	for _, g := range groups {
		values := make(map[string]string, len(g.Values))
		for k, v := range g.Values {
			if bare, ok := unaliased[k]; ok {
				k = bare
			}
			values[k] = v
		}
		rows = append(rows, dmodels.SummaryRow{ColumnValues: values, Count: g.Count})
	}
	return rows, nil
}
