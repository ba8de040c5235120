// Package store persists benefit plans, individuals and beneficiaries and
// answers the duplicate grouping query. The in-memory store backs unit tests
// and local runs; the Postgres store is the production backend.
package store

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	regmodels "dedup/internal/registry/models"
)

// pgTimestampText is timestamptz::text under a UTC session. Fractional
// seconds are printed only when non-zero, without trailing zeros.
const pgTimestampText = "2006-01-02 15:04:05.999999-07"

// groupText renders a grouped value the way Postgres' ::text / ->> would.
// ok is false for SQL NULL.
func groupText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case regmodels.Date:
		if t.IsZero() {
			return "", false
		}
		return t.String(), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.UTC().Format(pgTimestampText), true
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(b), true
	case map[string]any, []any, float64, int, json.Number:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(b), true
	}
	return fmt.Sprint(v), true
}
