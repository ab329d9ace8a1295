// Package scope decides which companies and contracts an actor may act on for
// a permission key. It does no I/O: callers load the grant rows and the
// company to contract map and pass them in.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// Kind classifies a resolved scope
type Kind int

const (
	// Denied matches nothing
	Denied Kind = iota
	// Restricted matches the listed companies, contracts and optionally the actor's own records
	Restricted
	// Unrestricted matches everything
	Unrestricted
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Unrestricted:
		return "unrestricted"
	case Restricted:
		return "restricted"
	default:
		return "denied"
	}
}

// Scope is the result of resolving an actor's grants for one permission key
type Scope struct {
	kind        Kind
	userID      string
	companyIDs  map[string]struct{}
	contractIDs map[string]struct{}
	includeOwn  bool
}

// NewUnrestricted returns a scope that matches everything
func NewUnrestricted(userID string) Scope {
	return Scope{kind: Unrestricted, userID: userID}
}

// NewDenied returns a scope that matches nothing
func NewDenied(userID string) Scope {
	return Scope{kind: Denied, userID: userID}
}

// Kind returns the classification of the scope
func (s Scope) Kind() Kind { return s.kind }

// UserID returns the actor the scope was resolved for
func (s Scope) UserID() string { return s.userID }

// IsUnrestricted returns true when the scope matches everything
func (s Scope) IsUnrestricted() bool { return s.kind == Unrestricted }

// IsDenied returns true when the scope matches nothing
func (s Scope) IsDenied() bool { return s.kind == Denied }

// IncludeOwn returns true when records authored by the actor are in scope
func (s Scope) IncludeOwn() bool { return s.kind == Restricted && s.includeOwn }

// CompanyIDs returns the granted company ids, sorted
func (s Scope) CompanyIDs() []string { return sortedKeys(s.companyIDs) }

// ContractIDs returns the granted contract ids including those implied by company grants, sorted
func (s Scope) ContractIDs() []string { return sortedKeys(s.contractIDs) }

// AllowsCompany returns true when the company is in scope
func (s Scope) AllowsCompany(companyID string) bool {
	switch s.kind {
	case Unrestricted:
		return true
	case Restricted:
		_, ok := s.companyIDs[companyID]
		return ok
	default:
		return false
	}
}

// AllowsContract returns true when the contract is in scope directly or through its company
func (s Scope) AllowsContract(contractID string) bool {
	switch s.kind {
	case Unrestricted:
		return true
	case Restricted:
		_, ok := s.contractIDs[contractID]
		return ok
	default:
		return false
	}
}

// AllowsRequest returns true when a request with the given owner fields is in scope
func (s Scope) AllowsRequest(companyID, contractID, solicitantID string) bool {
	if s.AllowsCompany(companyID) || s.AllowsContract(contractID) {
		return true
	}
	return s.IncludeOwn() && solicitantID != "" && solicitantID == s.userID
}

// String returns a compact description for logs
func (s Scope) String() string {
	if s.kind != Restricted {
		return s.kind.String()
	}
	return fmt.Sprintf("restricted(companies=%d contracts=%d own=%t)", len(s.companyIDs), len(s.contractIDs), s.includeOwn)
}

// MatchesKey returns true when a grant's key applies to the requested key.
// "requests:read" is satisfied by "requests:read" and by any refinement such
// as "requests:read:company" or "requests:read:own".
func MatchesKey(requested, granted string) bool {
	return granted == requested || strings.HasPrefix(granted, requested+":")
}

// Resolve computes the scope of actor for key.
//
// ADMIN bypasses scoping. A matching grant without a scope type is global.
// COMPANY grants also admit every contract listed for that company in
// contractsByCompany, in union with explicit CONTRACT grants. A matching
// grant ending in ":own" admits the actor's own records. No matching grant
// yields Denied.
func Resolve(actor entity.Actor, key string, grants []entity.UserPermission, contractsByCompany map[string][]string) Scope {
	if actor.Role.BypassesScope() {
		return NewUnrestricted(actor.UserID)
	}

	s := Scope{
		kind:        Restricted,
		userID:      actor.UserID,
		companyIDs:  make(map[string]struct{}),
		contractIDs: make(map[string]struct{}),
	}

	for i := range grants {
		g := &grants[i]
		if g.UserID != actor.UserID || !MatchesKey(key, g.PermissionKey) {
			continue
		}
		if g.IsOwn() {
			s.includeOwn = true
			continue
		}
		if g.IsGlobal() {
			return NewUnrestricted(actor.UserID)
		}
		if g.ScopeID == nil || *g.ScopeID == "" {
			continue
		}
		switch *g.ScopeType {
		case entity.ScopeCompany:
			s.companyIDs[*g.ScopeID] = struct{}{}
			for _, contractID := range contractsByCompany[*g.ScopeID] {
				s.contractIDs[contractID] = struct{}{}
			}
		case entity.ScopeContract:
			s.contractIDs[*g.ScopeID] = struct{}{}
		}
	}

	if len(s.companyIDs) == 0 && len(s.contractIDs) == 0 && !s.includeOwn {
		return NewDenied(actor.UserID)
	}
	return s
}

// CompanyScopedGrants returns the company ids of COMPANY grants matching key.
// Resolver callers use it to know which companies need contract expansion.
func CompanyScopedGrants(key string, grants []entity.UserPermission) []string {
	ids := make(map[string]struct{})
	for i := range grants {
		g := &grants[i]
		if !MatchesKey(key, g.PermissionKey) || g.IsGlobal() || g.ScopeID == nil {
			continue
		}
		if *g.ScopeType == entity.ScopeCompany {
			ids[*g.ScopeID] = struct{}{}
		}
	}
	return sortedKeys(ids)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
