// Package agent defines the managed identity at the centre of the service.
package agent

import (
	"regexp"

	"github.com/aims-io/aims/internal/app/errs"
)

// Status is the lifecycle state of an agent. Revoked is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// Type classifies what kind of workload the agent represents.
type Type string

const (
	TypeLLM          Type = "llm"
	TypeTool         Type = "tool"
	TypeOrchestrator Type = "orchestrator"
	TypeCustom       Type = "custom"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Agent represents a managed machine identity.
type Agent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Owner        string  `json:"owner"`
	Status       Status  `json:"status"`
	AgentType    Type    `json:"agent_type"`
	MetadataJSON string  `json:"metadata_json"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	SuspendedAt  *string `json:"suspended_at"`
	RevokedAt    *string `json:"revoked_at"`
}

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// ValidType reports whether t is one of the known agent types.
func ValidType(t string) bool {
	switch Type(t) {
	case TypeLLM, TypeTool, TypeOrchestrator, TypeCustom:
		return true
	}
	return false
}

// ValidateName enforces the agent naming rules: 1-128 characters drawn from
// letters, digits, underscore, and dash.
func ValidateName(name string) error {
	if len(name) < 1 || len(name) > 128 {
		return errs.Validation("name must be between 1 and 128 characters")
	}
	if !namePattern.MatchString(name) {
		return errs.Validation("name must match ^[A-Za-z0-9_-]+$")
	}
	return nil
}

// ValidateOwner enforces the owner length bounds.
func ValidateOwner(owner string) error {
	if len(owner) < 1 || len(owner) > 128 {
		return errs.Validation("owner must be between 1 and 128 characters")
	}
	return nil
}

// ValidateType rejects unknown agent types.
func ValidateType(t string) error {
	if !ValidType(t) {
		return errs.Validation("agent_type must be one of llm, tool, orchestrator, custom")
	}
	return nil
}

// ValidateReason bounds suspend/revoke reasons.
func ValidateReason(reason string) error {
	if len(reason) > 500 {
		return errs.Validation("reason must be at most 500 characters")
	}
	return nil
}
