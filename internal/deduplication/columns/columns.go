// Package columns classifies requested grouping attributes as structured
// schema fields or extension keys.
package columns

import (
	"strings"

	"dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	dErrors "dedup/pkg/domain-errors"
	pstrings "dedup/pkg/platform/strings"
)

// Resolution partitions attribute names. A name is never in both lists and
// request order is preserved within each.
type Resolution struct {
	Structured []string
	Extension  []string
}

// Resolve classifies names against schema. A name whose first
// QualifierSep-separated segment is a field of schema is structured; any
// other name is an extension key. Blank and repeated names are dropped.
//
// A qualified structured name must reach an existing field through related
// schemas, since the store can only project known columns.
func Resolve(schema *regmodels.Schema, names []string) (Resolution, error) {
	names = pstrings.DedupeAndTrim(names)
	if len(names) == 0 {
		return Resolution{}, dErrors.New(dErrors.CodeInvalidInput, "at least one column required")
	}

	var res Resolution
	for _, name := range names {
		switch name {
		case models.KeyIDCount, models.KeyIDs, models.KeyHeaders:
			return Resolution{}, dErrors.New(dErrors.CodeInvalidInput, "reserved column name "+name)
		}

		head, tail, qualified := strings.Cut(name, regmodels.QualifierSep)
		field, ok := schema.Field(head)
		if !ok {
			res.Extension = append(res.Extension, name)
			continue
		}
		if qualified {
			if err := checkPath(field, tail); err != nil {
				return Resolution{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unknown column "+name)
			}
		}
		res.Structured = append(res.Structured, name)
	}
	return res, nil
}

func checkPath(field regmodels.Field, rest string) error {
	if field.Related == nil {
		return dErrors.New(dErrors.CodeInvalidInput, field.Name+" has no related fields")
	}
	head, tail, qualified := strings.Cut(rest, regmodels.QualifierSep)
	next, ok := field.Related.Field(head)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, field.Related.Name+" has no field "+head)
	}
	if !qualified {
		return nil
	}
	return checkPath(next, tail)
}

// IsStructured reports whether name would resolve as a structured field.
func IsStructured(schema *regmodels.Schema, name string) bool {
	head, _, _ := strings.Cut(name, regmodels.QualifierSep)
	_, ok := schema.Field(head)
	return ok
}
