package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	dmodels "dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	"dedup/pkg/attrs"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/platform/sentinel"
	"dedup/pkg/requestcontext"
)

// immutableFields never change through a merge decision.
var immutableFields = map[string]struct{}{
	regmodels.FieldID:          {},
	regmodels.FieldIndividual:  {},
	regmodels.FieldBenefitPlan: {},
	regmodels.FieldDateCreated: {},
	regmodels.FieldJSONExt:     {},
}

func ignoredField(name string) bool {
	if _, ok := immutableFields[name]; ok {
		return true
	}
	return excluded(name)
}

// decisionBuckets partitions reviewer values by the entity that owns them.
type decisionBuckets struct {
	individual  map[string]any
	beneficiary map[string]any
	extension   map[string]any
}

func partitionValues(values map[string]any) decisionBuckets {
	b := decisionBuckets{
		individual:  map[string]any{},
		beneficiary: map[string]any{},
		extension:   map[string]any{},
	}
	qualifier := regmodels.FieldIndividual + regmodels.QualifierSep
	for key, v := range values {
		name := key
		if len(key) > len(qualifier) && key[:len(qualifier)] == qualifier {
			name = key[len(qualifier):]
			if _, ok := regmodels.IndividualSchema.Field(name); !ok || ignoredField(name) {
				continue
			}
			b.individual[name] = v
			continue
		}
		if ignoredField(name) {
			continue
		}
		if _, ok := regmodels.IndividualSchema.Field(name); ok {
			b.individual[name] = v
			continue
		}
		if _, ok := regmodels.BeneficiarySchema.Field(name); ok {
			b.beneficiary[name] = v
			continue
		}
		b.extension[name] = v
	}
	return b
}

// pickCanonical returns the earliest created member; ties go to the lowest id.
func pickCanonical(members []*regmodels.Beneficiary) *regmodels.Beneficiary {
	best := members[0]
	for _, m := range members[1:] {
		switch {
		case m.DateCreated.Before(best.DateCreated):
			best = m
		case m.DateCreated.Equal(best.DateCreated) && m.ID.String() < best.ID.String():
			best = m
		}
	}
	return best
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// applyIndividual mutates ind with the bucket's values and reports the
// fields that actually changed.
func applyIndividual(ind *regmodels.Individual, values map[string]any) ([]string, error) {
	var changed []string
	for name, v := range values {
		switch name {
		case regmodels.FieldFirstName:
			if s := textValue(v); s != ind.FirstName {
				ind.FirstName = s
				changed = append(changed, name)
			}
		case regmodels.FieldLastName:
			if s := textValue(v); s != ind.LastName {
				ind.LastName = s
				changed = append(changed, name)
			}
		case regmodels.FieldDOB:
			var dob regmodels.Date
			if s := textValue(v); s != "" {
				d, err := regmodels.ParseDate(s)
				if err != nil {
					return nil, err
				}
				dob = d
			}
			if !dob.Equal(ind.DOB) {
				ind.DOB = dob
				changed = append(changed, name)
			}
		}
	}
	return changed, nil
}

func applyBeneficiary(b *regmodels.Beneficiary, values map[string]any) ([]string, error) {
	var changed []string
	for name, v := range values {
		if name != regmodels.FieldStatus {
			continue
		}
		status, err := regmodels.ParseStatus(textValue(v))
		if err != nil {
			return nil, err
		}
		if status != b.Status {
			b.Status = status
			changed = append(changed, name)
		}
	}
	return changed, nil
}

func applyExtension(b *regmodels.Beneficiary, values map[string]any) []string {
	var changed []string
	for key, v := range values {
		cur, present := b.JSONExt[key]
		if present && reflect.DeepEqual(cur, v) {
			continue
		}
		if !present && v == nil {
			continue
		}
		if b.JSONExt == nil {
			b.JSONExt = map[string]any{}
		}
		b.JSONExt[key] = v
		changed = append(changed, key)
	}
	return changed
}

// Merge applies a completed review task's decision: the earliest created
// member survives with the approved values and every other member is soft
// deleted, all in one transaction. A decision whose members are all gone
// ends FAILED without an error.
func (s *Service) Merge(ctx context.Context, task dmodels.CompletedTask, actingUser id.UserID) (dmodels.MergeOutcome, error) {
	outcome := dmodels.MergeOutcome{TaskID: task.ID, State: dmodels.MergeStatePending}
	start := time.Now()
	defer func() { s.recordMerge(start, outcome.State) }()

	ctx, span := s.tracer.Start(ctx, "deduplication.Merge")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", task.ID))

	decision, err := dmodels.ParseMergeDecision(task.JSONExt)
	if err != nil {
		s.fail(ctx, &outcome, actingUser, err)
		span.SetStatus(codes.Error, "malformed decision")
		return outcome, err
	}
	s.transition(&outcome, dmodels.MergeStateCompletedApproved)

	if s.guard != nil && task.ID != "" {
		release, err := s.guard.Acquire(ctx, task.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "merge guard unavailable, relying on row locks", "task_id", task.ID, "error", err)
		} else {
			defer release()
		}
		seen, err := s.guard.Seen(ctx, task.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "merge marker check failed", "task_id", task.ID, "error", err)
		}
		if seen {
			s.logger.InfoContext(ctx, "merge already applied", "task_id", task.ID)
			s.transition(&outcome, dmodels.MergeStateMerged)
			return outcome, nil
		}
	}

	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	found := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store MergeStore) error {
		members, err := store.LockBeneficiaries(ctx, decision.BeneficiaryIDs)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock beneficiaries")
		}
		if len(members) == 0 {
			return nil
		}
		found = true

		canonical := pickCanonical(members)
		outcome.CanonicalID = canonical.ID

		changed, err := s.applyDecision(ctx, store, canonical, decision.Values, actingUser, now)
		if err != nil {
			return err
		}
		outcome.ChangedFields = changed

		var others []id.BeneficiaryID
		for _, m := range members {
			if m.ID != canonical.ID {
				others = append(others, m.ID)
			}
		}
		if len(others) > 0 {
			if _, err := store.SoftDeleteBeneficiaries(ctx, others, actingUser, now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete merged beneficiaries")
			}
		}
		outcome.DeletedIDs = others

		if len(others) == 0 && len(changed) == 0 {
			return nil
		}
		return s.emitMerged(ctx, outcome, actingUser, now)
	})
	if err != nil {
		outcome.CanonicalID = id.BeneficiaryID{}
		outcome.DeletedIDs = nil
		outcome.ChangedFields = nil
		s.fail(ctx, &outcome, actingUser, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		return outcome, err
	}
	if !found {
		s.fail(ctx, &outcome, actingUser, nil)
		return outcome, nil
	}

	s.transition(&outcome, dmodels.MergeStateMerged)
	if s.guard != nil && task.ID != "" {
		if err := s.guard.MarkDone(ctx, task.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to record merge marker", "task_id", task.ID, "error", err)
		}
	}
	s.logAudit(ctx, string(audit.EventBeneficiariesMerged),
		"task_id", task.ID,
		"user_id", actingUser,
		"canonical_id", outcome.CanonicalID,
		"deleted", len(outcome.DeletedIDs),
		"changed_fields", outcome.ChangedFields,
	)
	span.SetAttributes(
		attribute.String("canonical_id", outcome.CanonicalID.String()),
		attribute.Int("deleted", len(outcome.DeletedIDs)),
	)
	return outcome, nil
}

// applyDecision writes the individual, then the beneficiary's structured
// fields, then its extension map, skipping each write when nothing in it
// changed.
func (s *Service) applyDecision(ctx context.Context, store MergeStore, canonical *regmodels.Beneficiary, values map[string]any, user id.UserID, now time.Time) ([]string, error) {
	buckets := partitionValues(values)
	var changed []string

	if len(buckets.individual) > 0 {
		ind, err := store.FindIndividual(ctx, canonical.IndividualID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "individual of canonical beneficiary not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load individual")
		}
		fields, err := applyIndividual(ind, buckets.individual)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			ind.Touch(user, now)
			if err := store.UpdateIndividual(ctx, ind); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update individual")
			}
			changed = append(changed, fields...)
		}
	}

	fields, err := applyBeneficiary(canonical, buckets.beneficiary)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		canonical.Touch(user, now)
		if err := store.UpdateBeneficiaryFields(ctx, canonical); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update beneficiary")
		}
		changed = append(changed, fields...)
	}

	if keys := applyExtension(canonical, buckets.extension); len(keys) > 0 {
		canonical.Touch(user, now)
		if err := store.UpdateBeneficiaryExt(ctx, canonical); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update beneficiary extension")
		}
		changed = append(changed, keys...)
	}

	sort.Strings(changed)
	return changed, nil
}

func (s *Service) emitMerged(ctx context.Context, outcome dmodels.MergeOutcome, user id.UserID, now time.Time) error {
	if s.auditPublisher == nil {
		return nil
	}
	details := attrs.Fields([]any{
		"task_id", outcome.TaskID,
		"canonical_id", outcome.CanonicalID.String(),
		"deleted_ids", id.BeneficiaryIDStrings(outcome.DeletedIDs),
		"changed_fields", outcome.ChangedFields,
	})
	err := s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		UserID:    user,
		Subject:   outcome.CanonicalID.String(),
		Action:    string(audit.EventBeneficiariesMerged),
		Decision:  string(dmodels.MergeStateMerged),
		RequestID: requestcontext.RequestID(ctx),
		Details:   details,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record merge audit")
	}
	return nil
}

func (s *Service) transition(outcome *dmodels.MergeOutcome, next dmodels.MergeState) {
	if !outcome.State.CanTransitionTo(next) {
		s.logger.Error("invalid merge state transition",
			"task_id", outcome.TaskID,
			"from", outcome.State,
			"to", next,
		)
		return
	}
	outcome.State = next
}

func (s *Service) fail(ctx context.Context, outcome *dmodels.MergeOutcome, user id.UserID, err error) {
	s.transition(outcome, dmodels.MergeStateFailed)
	if err == nil {
		s.logger.InfoContext(ctx, "merge found no live members", "task_id", outcome.TaskID)
		return
	}
	s.logger.ErrorContext(ctx, "merge failed",
		"task_id", outcome.TaskID,
		"code", dErrors.CodeOf(err),
		"error", err,
	)
	s.logAudit(ctx, string(audit.EventMergeFailed),
		"task_id", outcome.TaskID,
		"reason", dErrors.MessageOf(err),
	)
	s.trackOps(ctx, audit.OpsEvent{
		UserID:  user,
		Subject: outcome.TaskID,
		Action:  string(audit.EventMergeFailed),
		Reason:  dErrors.MessageOf(err),
		Details: map[string]any{"code": string(dErrors.CodeOf(err))},
	})
}

// -----------------------------------------------------------------------------
// Task completion
// -----------------------------------------------------------------------------

type operationFunc func(ctx context.Context, task dmodels.CompletedTask, user id.UserID) error

func (s *Service) operations() map[dmodels.Operation]operationFunc {
	return map[dmodels.Operation]operationFunc{
		dmodels.OperationMergeBeneficiaries: func(ctx context.Context, task dmodels.CompletedTask, user id.UserID) error {
			_, err := s.Merge(ctx, task, user)
			return err
		},
	}
}

// HandleTaskCompleted reacts to a task subsystem completion event. It never
// panics or returns an error; every failure is logged and reported in the
// returned list.
func (s *Service) HandleTaskCompleted(ctx context.Context, event dmodels.TaskCompletedEvent) (errs []string) {
	task := event.Data.Task
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "task completion handler panicked",
				"task_id", task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			errs = append(errs, fmt.Sprintf("panic handling task %s: %v", task.ID, r))
		}
	}()

	if !event.Success || task.Status != dmodels.TaskStatusCompleted {
		return nil
	}
	if task.Source != "" && task.Source != dmodels.TaskSource {
		return nil
	}
	op, ok := dmodels.ParseOperation(task.BusinessEvent)
	if !ok {
		s.logger.DebugContext(ctx, "ignoring completed task with unsupported business event",
			"task_id", task.ID,
			"business_event", task.BusinessEvent,
		)
		return nil
	}
	user, err := id.ParseUserID(event.Data.User.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "completed task has no valid acting user", "task_id", task.ID, "error", err)
		return []string{fmt.Sprintf("task %s: %s", task.ID, dErrors.MessageOf(err))}
	}
	handler := s.operations()[op]
	if err := handler(ctx, task, user); err != nil {
		return []string{fmt.Sprintf("task %s: %s: %v", task.ID, op, err)}
	}
	return nil
}
