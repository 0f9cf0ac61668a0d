// Package access holds the role policy shared by the API request guard and the
// page navigation guard.
package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string is outside the closed set.
var ErrUnknownRole = errors.New("access: unknown role")

// Role is the closed set of platform roles.
type Role uint8

const (
	// RoleUnknown is the zero value and never satisfies a requirement.
	RoleUnknown Role = iota
	RoleCitizen
	RoleRepresentative
	RoleOrganization
	RoleAdmin
)

// Roles lists every assignable role in display order.
func Roles() []Role {
	return []Role{RoleCitizen, RoleRepresentative, RoleOrganization, RoleAdmin}
}

// ParseRole converts a stored or submitted role name into a Role.
// The legacy name "user" maps to RoleCitizen.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "citizen", "user":
		return RoleCitizen, nil
	case "representative":
		return RoleRepresentative, nil
	case "organization":
		return RoleOrganization, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// String returns the canonical wire name.
func (r Role) String() string {
	switch r {
	case RoleCitizen:
		return "citizen"
	case RoleRepresentative:
		return "representative"
	case RoleOrganization:
		return "organization"
	case RoleAdmin:
		return "admin"
	case RoleUnknown:
		return "unknown"
	}
	return "unknown"
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r >= RoleCitizen && r <= RoleAdmin
}

// MarshalJSON encodes the role as its canonical name.
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, r)
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON rejects names outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
