package entity

import (
	"fmt"
	"strings"
)

// ScopeType restricts a permission grant to one company or one contract
type ScopeType string

const (
	ScopeCompany  ScopeType = "COMPANY"
	ScopeContract ScopeType = "CONTRACT"
)

// UserPermission is one grant row. ScopeType nil means the grant is global.
type UserPermission struct {
	UserID        string     `json:"user_id"`
	PermissionKey string     `json:"permission_key"`
	ScopeType     *ScopeType `json:"scope_type,omitempty"`
	ScopeID       *string    `json:"scope_id,omitempty"`
}

// IsGlobal returns true when the grant has no scope
func (p *UserPermission) IsGlobal() bool {
	return p.ScopeType == nil || *p.ScopeType == ""
}

// IsOwn returns true for "...:own" keys
func (p *UserPermission) IsOwn() bool {
	return strings.HasSuffix(p.PermissionKey, OwnSuffix)
}

// Validate enforces that a scoped grant names its scope
func (p *UserPermission) Validate() error {
	if p.UserID == "" || p.PermissionKey == "" {
		return fmt.Errorf("user id and permission key are required")
	}
	if p.IsGlobal() {
		if p.ScopeID != nil && *p.ScopeID != "" {
			return fmt.Errorf("permission %s: scope id given without scope type", p.PermissionKey)
		}
		return nil
	}
	switch *p.ScopeType {
	case ScopeCompany, ScopeContract:
	default:
		return fmt.Errorf("permission %s: unknown scope type %q", p.PermissionKey, *p.ScopeType)
	}
	if p.ScopeID == nil || *p.ScopeID == "" {
		return fmt.Errorf("permission %s: scope id is required when scope type is %s", p.PermissionKey, *p.ScopeType)
	}
	return nil
}
