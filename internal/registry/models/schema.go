package models

// Field names shared by the registry schemas. They double as the keys of the
// dictionaries handed to reviewers, so they follow the registry's snake_case.
const (
	FieldID          = "id"
	FieldJSONExt     = "json_ext"
	FieldDateCreated = "date_created"
	FieldDateUpdated = "date_updated"
	FieldUserCreated = "user_created"
	FieldUserUpdated = "user_updated"
	FieldVersion     = "version"
	FieldIsDeleted   = "is_deleted"

	FieldIndividual  = "individual"
	FieldBenefitPlan = "benefit_plan"
	FieldStatus      = "status"

	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldDOB       = "dob"

	FieldCode                  = "code"
	FieldName                  = "name"
	FieldBeneficiaryDataSchema = "beneficiary_data_schema"
)

// QualifierSep joins a relation name and a field on the related schema.
const QualifierSep = "__"

// Field is one structured column of a schema. Related is set for references
// that can be traversed with a QualifierSep-qualified name.
type Field struct {
	Name    string
	Related *Schema
}

// Schema describes the structured fields of a registry entity, in display
// order.
type Schema struct {
	Name   string
	Fields []Field
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func historyFields() []Field {
	return []Field{
		{Name: FieldDateCreated},
		{Name: FieldDateUpdated},
		{Name: FieldUserCreated},
		{Name: FieldUserUpdated},
		{Name: FieldVersion},
		{Name: FieldIsDeleted},
	}
}

var IndividualSchema = &Schema{
	Name: "individual",
	Fields: append([]Field{
		{Name: FieldID},
		{Name: FieldFirstName},
		{Name: FieldLastName},
		{Name: FieldDOB},
		{Name: FieldJSONExt},
	}, historyFields()...),
}

var BenefitPlanSchema = &Schema{
	Name: "benefit_plan",
	Fields: append([]Field{
		{Name: FieldID},
		{Name: FieldCode},
		{Name: FieldName},
		{Name: FieldBeneficiaryDataSchema},
		{Name: FieldJSONExt},
	}, historyFields()...),
}

var BeneficiarySchema = &Schema{
	Name: "beneficiary",
	Fields: append([]Field{
		{Name: FieldID},
		{Name: FieldIndividual, Related: IndividualSchema},
		{Name: FieldBenefitPlan, Related: BenefitPlanSchema},
		{Name: FieldStatus},
		{Name: FieldJSONExt},
	}, historyFields()...),
}

// BookkeepingFields are the History columns. They never carry identity or
// content.
var BookkeepingFields = []string{
	FieldDateCreated,
	FieldDateUpdated,
	FieldUserCreated,
	FieldUserUpdated,
	FieldVersion,
	FieldIsDeleted,
}
