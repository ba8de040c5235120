package models

import (
	id "dedup/pkg/domain"
)

// Individual is the person profile linked one-to-one to a beneficiary.
type Individual struct {
	ID        id.IndividualID
	FirstName string
	LastName  string
	DOB       Date
	JSONExt   map[string]any
	History
}

func (i *Individual) FieldValues() map[string]any {
	out := i.History.fieldValues()
	out[FieldID] = i.ID
	out[FieldFirstName] = i.FirstName
	out[FieldLastName] = i.LastName
	out[FieldDOB] = i.DOB
	out[FieldJSONExt] = CloneExt(i.JSONExt)
	return out
}

func (i *Individual) Clone() *Individual {
	c := *i
	c.JSONExt = CloneExt(i.JSONExt)
	return &c
}
