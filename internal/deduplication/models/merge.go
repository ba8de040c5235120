package models

import (
	"slices"

	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

// MergeState tracks one duplicate group from review to resolution.
type MergeState string

const (
	MergeStatePending           MergeState = "PENDING"
	MergeStateCompletedApproved MergeState = "COMPLETED_APPROVED"
	MergeStateMerged            MergeState = "MERGED"
	MergeStateFailed            MergeState = "FAILED"
)

var mergeTransitions = map[MergeState][]MergeState{
	MergeStatePending:           {MergeStateCompletedApproved, MergeStateFailed},
	MergeStateCompletedApproved: {MergeStateMerged, MergeStateFailed},
}

func (s MergeState) CanTransitionTo(next MergeState) bool {
	return slices.Contains(mergeTransitions[s], next)
}

func (s MergeState) IsTerminal() bool {
	return s == MergeStateMerged || s == MergeStateFailed
}

// ResolveDataKey is the task extension key holding the reviewer's decision.
const ResolveDataKey = "additional_resolve_data"

// MergeDecision is the reviewer-approved outcome of a review task.
type MergeDecision struct {
	Values         map[string]any
	BeneficiaryIDs []id.BeneficiaryID
}

// ParseMergeDecision extracts the decision from a completed task's extension
// map. additional_resolve_data must hold exactly one entry shaped
// {"values": {...}, "beneficiaryIds": [...]}.
func ParseMergeDecision(taskExt map[string]any) (MergeDecision, error) {
	raw, ok := taskExt[ResolveDataKey]
	if !ok {
		return MergeDecision{}, malformed(ResolveDataKey + " missing")
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return MergeDecision{}, malformed(ResolveDataKey + " must be an object")
	}
	if len(entries) != 1 {
		return MergeDecision{}, malformed(ResolveDataKey + " must hold exactly one decision")
	}
	var entry any
	for _, v := range entries {
		entry = v
	}
	body, ok := entry.(map[string]any)
	if !ok {
		return MergeDecision{}, malformed("decision must be an object")
	}

	values, ok := body["values"].(map[string]any)
	if !ok {
		return MergeDecision{}, malformed("decision values missing")
	}
	rawIDs, ok := body["beneficiaryIds"].([]any)
	if !ok || len(rawIDs) == 0 {
		return MergeDecision{}, malformed("decision beneficiaryIds missing")
	}

	ids := make([]id.BeneficiaryID, 0, len(rawIDs))
	seen := make(map[id.BeneficiaryID]struct{}, len(rawIDs))
	for _, r := range rawIDs {
		s, ok := r.(string)
		if !ok {
			return MergeDecision{}, malformed("beneficiaryIds entries must be strings")
		}
		bid, err := id.ParseBeneficiaryID(s)
		if err != nil {
			return MergeDecision{}, dErrors.Wrap(err, dErrors.CodeMalformedDecision, "invalid beneficiary id in decision")
		}
		if _, dup := seen[bid]; dup {
			continue
		}
		seen[bid] = struct{}{}
		ids = append(ids, bid)
	}
	return MergeDecision{Values: values, BeneficiaryIDs: ids}, nil
}

func malformed(msg string) error {
	return dErrors.New(dErrors.CodeMalformedDecision, msg)
}

// MergeOutcome reports what a merge did.
type MergeOutcome struct {
	TaskID        string
	State         MergeState
	CanonicalID   id.BeneficiaryID
	DeletedIDs    []id.BeneficiaryID
	ChangedFields []string
}
