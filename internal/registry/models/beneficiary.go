package models

import (
	"strings"

	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

// Status is a beneficiary's enrolment state within its plan.
type Status string

const (
	StatusPotential Status = "POTENTIAL"
	StatusActive    Status = "ACTIVE"
	StatusGraduated Status = "GRADUATED"
	StatusSuspended Status = "SUSPENDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPotential, StatusActive, StatusGraduated, StatusSuspended:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid beneficiary status "+s)
	}
	return status, nil
}

// Beneficiary is the registry record subject to deduplication. It belongs to
// exactly one benefit plan and links one individual.
type Beneficiary struct {
	ID            id.BeneficiaryID
	IndividualID  id.IndividualID
	BenefitPlanID id.BenefitPlanID
	Status        Status
	JSONExt       map[string]any
	History
}

// FieldValues returns every structured field keyed by its schema name.
// References are left as identifiers.
func (b *Beneficiary) FieldValues() map[string]any {
	out := b.History.fieldValues()
	out[FieldID] = b.ID
	out[FieldIndividual] = b.IndividualID
	out[FieldBenefitPlan] = b.BenefitPlanID
	out[FieldStatus] = string(b.Status)
	out[FieldJSONExt] = CloneExt(b.JSONExt)
	return out
}

// Clone returns a deep copy.
func (b *Beneficiary) Clone() *Beneficiary {
	c := *b
	c.JSONExt = CloneExt(b.JSONExt)
	return &c
}
