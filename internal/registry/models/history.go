package models

import (
	"time"

	id "dedup/pkg/domain"
)

// History is the bookkeeping every registry row carries. None of it is
// identity or content.
type History struct {
	DateCreated time.Time
	DateUpdated time.Time
	UserCreated id.UserID
	UserUpdated id.UserID
	Version     int
	IsDeleted   bool
}

// Touch records a write by user at now and bumps the revision.
func (h *History) Touch(user id.UserID, now time.Time) {
	h.DateUpdated = now
	h.UserUpdated = user
	h.Version++
}

func (h History) fieldValues() map[string]any {
	return map[string]any{
		FieldDateCreated: h.DateCreated,
		FieldDateUpdated: h.DateUpdated,
		FieldUserCreated: h.UserCreated,
		FieldUserUpdated: h.UserUpdated,
		FieldVersion:     h.Version,
		FieldIsDeleted:   h.IsDeleted,
	}
}

// CloneExt deep-copies an extension map so callers can mutate freely.
func CloneExt(ext map[string]any) map[string]any {
	if ext == nil {
		return nil
	}
	out := make(map[string]any, len(ext))
	for k, v := range ext {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneExt(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
