package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
)

// Reserved payload keys. The resolver rejects them as column names.
const (
	KeyIDCount = "id_count"
	KeyIDs     = "ids"
	KeyHeaders = "headers"
)

// GroupingQuery is what the record store needs to compute duplicate groups
// within one plan. Structured names may be qualified ("individual__first_name").
// Extension keys are projected out of json_ext as text.
type GroupingQuery struct {
	PlanID     id.BenefitPlanID
	Structured []string
	Extension  []string
}

// Columns returns structured names followed by extension keys.
func (q GroupingQuery) Columns() []string {
	out := make([]string, 0, len(q.Structured)+len(q.Extension))
	out = append(out, q.Structured...)
	return append(out, q.Extension...)
}

// DuplicateGroup is a computed set of beneficiaries sharing identical values
// for Columns. Count is always greater than one. IDs carry no order.
// A NULL value (an absent extension key) is rendered as "".
// PlanID is set by the engine and is not part of Data.
type DuplicateGroup struct {
	PlanID  id.BenefitPlanID
	Columns []string
	Values  map[string]string
	Count   int
	IDs     []id.BeneficiaryID
}

// SortedIDs returns the member ids ordered by their textual form.
func (g DuplicateGroup) SortedIDs() []id.BeneficiaryID {
	out := append([]id.BeneficiaryID(nil), g.IDs...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// LogValue keeps log lines short: column values and size only.
func (g DuplicateGroup) LogValue() slog.Value {
	return slog.GroupValue(slog.Any("values", g.Values), slog.Int("count", g.Count))
}

// Data renders the group in the shape stored on a review task: its column
// values plus id_count and the member ids.
func (g DuplicateGroup) Data() map[string]any {
	out := make(map[string]any, len(g.Values)+2)
	for k, v := range g.Values {
		out[k] = v
	}
	out[KeyIDCount] = g.Count
	out[KeyIDs] = id.BeneficiaryIDStrings(g.SortedIDs())
	return out
}

// GroupFromData is the inverse of Data. Member entries may be plain ids or
// member dictionaries carrying an "id" key, so a rendered payload parses too.
func GroupFromData(data map[string]any) (DuplicateGroup, error) {
	g := DuplicateGroup{Values: map[string]string{}}
	for k, v := range data {
		switch k {
		case KeyIDCount:
			n, err := toInt(v)
			if err != nil {
				return DuplicateGroup{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid id_count")
			}
			g.Count = n
		case KeyIDs:
			ids, err := parseMemberIDs(v)
			if err != nil {
				return DuplicateGroup{}, err
			}
			g.IDs = ids
		case KeyHeaders:
		default:
			g.Columns = append(g.Columns, k)
			if v != nil {
				g.Values[k] = fmt.Sprint(v)
			} else {
				g.Values[k] = ""
			}
		}
	}
	sort.Strings(g.Columns)
	if g.Count == 0 {
		g.Count = len(g.IDs)
	}
	return g, nil
}

func parseMemberIDs(v any) ([]id.BeneficiaryID, error) {
	list, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			list = make([]any, len(strs))
			for i, s := range strs {
				list[i] = s
			}
		} else {
			return nil, dErrors.New(dErrors.CodeBadRequest, "ids must be a list")
		}
	}
	out := make([]id.BeneficiaryID, 0, len(list))
	for _, e := range list {
		raw := e
		if m, ok := e.(map[string]any); ok {
			raw = m["id"]
		}
		s, ok := raw.(string)
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, "ids entries must be identifiers")
		}
		bid, err := id.ParseBeneficiaryID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, bid)
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

// SummaryRow is one line of the outward duplicate summary.
type SummaryRow struct {
	ColumnValues map[string]string `json:"column_values"`
	Count        int               `json:"count"`
}
