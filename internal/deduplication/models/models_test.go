package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
)

func decisionExt(body any) map[string]any {
	return map[string]any{ResolveDataKey: map[string]any{"group-1": body}}
}

func TestParseMergeDecision(t *testing.T) {
	t.Run("valid decision", func(t *testing.T) {
		ext := decisionExt(map[string]any{
			"values":         map[string]any{"first_name": "Jane", "dob": "1990-02-03"},
			"beneficiaryIds": []any{idB, idA, idB},
		})
		d, err := ParseMergeDecision(ext)
		require.NoError(t, err)
		assert.Equal(t, "Jane", d.Values["first_name"])
		assert.Equal(t, []id.BeneficiaryID{
			id.BeneficiaryID(uuid.MustParse(idB)),
			id.BeneficiaryID(uuid.MustParse(idA)),
		}, d.BeneficiaryIDs)
	})

	malformedCases := map[string]map[string]any{
		"missing key":         {},
		"not an object":       {ResolveDataKey: "merge please"},
		"two decisions":       {ResolveDataKey: map[string]any{"a": map[string]any{}, "b": map[string]any{}}},
		"entry not an object": decisionExt([]any{idA}),
		"missing values":      decisionExt(map[string]any{"beneficiaryIds": []any{idA}}),
		"missing ids":         decisionExt(map[string]any{"values": map[string]any{}}),
		"empty ids":           decisionExt(map[string]any{"values": map[string]any{}, "beneficiaryIds": []any{}}),
		"non string id":       decisionExt(map[string]any{"values": map[string]any{}, "beneficiaryIds": []any{42}}),
		"invalid uuid":        decisionExt(map[string]any{"values": map[string]any{}, "beneficiaryIds": []any{"nope"}}),
	}
	for name, ext := range malformedCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMergeDecision(ext)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedDecision))
		})
	}
}

func TestMergeState_Transitions(t *testing.T) {
	assert.True(t, MergeStatePending.CanTransitionTo(MergeStateCompletedApproved))
	assert.True(t, MergeStatePending.CanTransitionTo(MergeStateFailed))
	assert.True(t, MergeStateCompletedApproved.CanTransitionTo(MergeStateMerged))
	assert.True(t, MergeStateCompletedApproved.CanTransitionTo(MergeStateFailed))

	assert.False(t, MergeStatePending.CanTransitionTo(MergeStateMerged))
	assert.False(t, MergeStateMerged.CanTransitionTo(MergeStateFailed))
	assert.False(t, MergeStateFailed.CanTransitionTo(MergeStateMerged))

	assert.True(t, MergeStateMerged.IsTerminal())
	assert.True(t, MergeStateFailed.IsTerminal())
	assert.False(t, MergeStateCompletedApproved.IsTerminal())
}

func TestParseOperation(t *testing.T) {
	op, ok := ParseOperation("deduplication.merge_beneficiaries")
	require.True(t, ok)
	assert.Equal(t, OperationMergeBeneficiaries, op)
	assert.Equal(t, BusinessEventMergeBeneficiaries, op.String())

	_, ok = ParseOperation("deduplication.mergeBeneficiaries")
	assert.False(t, ok)
	_, ok = ParseOperation("")
	assert.False(t, ok)
}

func TestGroupData(t *testing.T) {
	g := DuplicateGroup{
		Columns: []string{"individual__first_name", "k1"},
		Values:  map[string]string{"individual__first_name": "first name 1", "k1": "k1 v1"},
		Count:   2,
		IDs:     []id.BeneficiaryID{id.BeneficiaryID(uuid.MustParse(idB)), id.BeneficiaryID(uuid.MustParse(idA))},
	}

	data := g.Data()
	assert.Equal(t, []string{idA, idB}, data[KeyIDs])
	assert.Equal(t, 2, data[KeyIDCount])

	// Through JSON, as the task subsystem stores it.
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back, err := GroupFromData(decoded)
	require.NoError(t, err)
	assert.Equal(t, g.Columns, back.Columns)
	assert.Equal(t, g.Values, back.Values)
	assert.Equal(t, 2, back.Count)
	assert.ElementsMatch(t, g.IDs, back.IDs)
}

func TestGroupFromData_MemberDictionaries(t *testing.T) {
	back, err := GroupFromData(map[string]any{
		"k1":       "v",
		KeyIDs:     []any{map[string]any{"id": idA, "status": "ACTIVE"}},
		KeyHeaders: []any{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, back.Columns)
	assert.Equal(t, 1, back.Count)
	assert.Equal(t, id.BeneficiaryID(uuid.MustParse(idA)), back.IDs[0])

	_, err = GroupFromData(map[string]any{KeyIDs: "not-a-list"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestTaskPayload_JSONShape(t *testing.T) {
	p := TaskPayload{
		Group: DuplicateGroup{Values: map[string]string{"k1": "k1 v1"}, Count: 2},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k1":"k1 v1","id_count":2,"ids":[],"headers":[]}`, string(raw))
}
