// Package capability defines named permission atoms and their grants.
package capability

// Wildcard is the capability name that passes every authorization check.
const Wildcard = "admin:*"

// Capability is a named permission atom, conventionally resource:verb.
type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// Grant links an agent to a capability. The (agent, capability) pair is
// unique.
type Grant struct {
	ID           string  `json:"id"`
	AgentID      string  `json:"agent_id"`
	CapabilityID string  `json:"capability_id"`
	GrantedAt    string  `json:"granted_at"`
	GrantedBy    *string `json:"granted_by"`
}
