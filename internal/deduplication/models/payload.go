package models

import (
	"encoding/json"
)

// Member is one beneficiary frozen for review: its own fields, the linked
// individual expanded in place and the plan replaced by its label.
type Member map[string]any

// TaskPayload is the snapshot a reviewer works from.
type TaskPayload struct {
	Group   DuplicateGroup
	Members []Member
	Headers []string
}

// Map renders the payload keyed like the group's data: column values, then
// id_count, ids (member dictionaries) and headers.
func (p TaskPayload) Map() map[string]any {
	out := make(map[string]any, len(p.Group.Values)+3)
	for k, v := range p.Group.Values {
		out[k] = v
	}
	members := make([]any, len(p.Members))
	for i, m := range p.Members {
		members[i] = map[string]any(m)
	}
	headers := p.Headers
	if headers == nil {
		headers = []string{}
	}
	out[KeyIDCount] = p.Group.Count
	out[KeyIDs] = members
	out[KeyHeaders] = headers
	return out
}

func (p TaskPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}
