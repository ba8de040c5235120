package models

import (
	"sort"

	id "dedup/pkg/domain"
)

// BenefitPlan owns beneficiaries. BeneficiaryDataSchema is a JSON schema whose
// "properties" declare the plan's extension keys.
type BenefitPlan struct {
	ID                    id.BenefitPlanID
	Code                  string
	Name                  string
	BeneficiaryDataSchema map[string]any
	JSONExt               map[string]any
	History
}

// Label is the human readable form shown to reviewers instead of the id.
func (p *BenefitPlan) Label() string {
	return p.Code + " - " + p.Name
}

// SchemaKeys returns the declared extension keys, sorted.
func (p *BenefitPlan) SchemaKeys() []string {
	props, ok := p.BeneficiaryDataSchema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *BenefitPlan) Clone() *BenefitPlan {
	c := *p
	c.BeneficiaryDataSchema = CloneExt(p.BeneficiaryDataSchema)
	c.JSONExt = CloneExt(p.JSONExt)
	return &c
}
