// Package principal models the authenticated caller at the edge.
package principal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole indicates a role string outside the closed role set.
var ErrInvalidRole = errors.New("principal: invalid role")

// Role is one of the fixed fieldserve roles. The zero value is not a role.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleManager
	RoleTechnician
	RoleCustomer
)

// rolePrefix is the decoration some clients and older tokens carry.
const rolePrefix = "ROLE_"

var roleNames = map[Role]string{
	RoleAdmin:      "ADMIN",
	RoleManager:    "MANAGER",
	RoleTechnician: "TECHNICIAN",
	RoleCustomer:   "CUSTOMER",
}

// Roles returns every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleTechnician, RoleCustomer}
}

// ParseRole converts a wire value into a Role. Matching is case-insensitive
// and ignores surrounding whitespace and a leading ROLE_ prefix.
func ParseRole(raw string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, rolePrefix)
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the canonical wire name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether r is part of the role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// In reports whether r is one of the given roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}
