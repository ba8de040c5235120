// Package domain holds the typed identifiers shared across modules.
//
// Each identifier is a distinct UUID-backed type so a beneficiary id can never
// be passed where an individual or plan id is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "dedup/pkg/domain-errors"
)

type (
	BeneficiaryID uuid.UUID
	IndividualID  uuid.UUID
	BenefitPlanID uuid.UUID
	UserID        uuid.UUID
	TaskID        uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse; the longest accepted
// form is the urn-prefixed one.
const maxIDLength = 45

func parseUUID(kind, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return u, nil
}

func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	u, err := parseUUID("beneficiary id", s)
	return BeneficiaryID(u), err
}

func ParseIndividualID(s string) (IndividualID, error) {
	u, err := parseUUID("individual id", s)
	return IndividualID(u), err
}

func ParseBenefitPlanID(s string) (BenefitPlanID, error) {
	u, err := parseUUID("benefit plan id", s)
	return BenefitPlanID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID("task id", s)
	return TaskID(u), err
}

func (id BeneficiaryID) String() string { return uuid.UUID(id).String() }
func (id IndividualID) String() string  { return uuid.UUID(id).String() }
func (id BenefitPlanID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id TaskID) String() string        { return uuid.UUID(id).String() }

func (id BeneficiaryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id IndividualID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id BenefitPlanID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func (id BeneficiaryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id IndividualID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id BenefitPlanID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id TaskID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }

func (id *BeneficiaryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *IndividualID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *BenefitPlanID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *TaskID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// BeneficiaryIDStrings renders ids in their canonical textual form.
func BeneficiaryIDStrings(ids []BeneficiaryID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
