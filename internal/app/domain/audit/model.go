// Package audit defines the append-only security event record.
package audit

import "encoding/json"

// Entry is one audit row. Rows are inserted and never updated or deleted.
type Entry struct {
	ID           string  `json:"id"`
	Timestamp    string  `json:"timestamp"`
	AgentID      *string `json:"agent_id"`
	Action       string  `json:"action"`
	ResourceType *string `json:"resource_type"`
	ResourceID   *string `json:"resource_id"`
	DetailsJSON  string  `json:"details_json"`
	IPAddress    *string `json:"ip_address"`
	Success      int     `json:"success"`
}

// Actor identifies who performed an operation: the subject of the bearer
// token plus the client address the request came from.
type Actor struct {
	AgentID string
	IP      string
}

// Filter narrows an audit query. Date bounds are inclusive and compared as
// canonical timestamp strings.
type Filter struct {
	AgentID      string
	Action       string
	ResourceType string
	StartDate    string
	EndDate      string
	Limit        int
	Offset       int
}

// Str returns a pointer for optional columns, nil when the value is empty.
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Details marshals an event detail map to its stored JSON form.
func Details(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
