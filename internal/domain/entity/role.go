package entity

import (
	"fmt"
	"strings"
)

// Role is the responsible profile of a user or of a workflow step
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleHR         Role = "RH"
	RoleManagement Role = "GESTAO"
	RoleSolicitant Role = "SOLICITANTE"
)

var validRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleHR:         true,
	RoleManagement: true,
	RoleSolicitant: true,
}

// ParseRole converts a raw profile string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// IsValid returns true if the role is one of the defined roles
func (r Role) IsValid() bool {
	return validRoles[r]
}

// BypassesScope is true only for the administrative role. Administrators may
// force any transition and are never scope-filtered.
func (r Role) BypassesScope() bool {
	return r == RoleAdmin
}

// RequiresScope reports whether actors with this role must hold a company or
// contract grant covering the request they act on.
func (r Role) RequiresScope() bool {
	return r == RoleManagement || r == RoleSolicitant
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated caller of an engine operation
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
