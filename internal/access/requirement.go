package access

import (
	"encoding/json"
	"errors"
	"sort"
)

// Requirement is the set of roles allowed to perform an operation.
// The zero value places no restriction.
type Requirement struct {
	roles []Role
	// closed is set when roles were requested but none were valid; only admin passes.
	closed bool
}

// Require builds a requirement from one or more roles. A single role and a
// one-element list produce the same requirement.
func Require(roles ...Role) Requirement {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Requirement{roles: out, closed: len(roles) > 0 && len(out) == 0}
}

// ParseRequirement builds a requirement from role names, failing on unknown names.
func ParseRequirement(names ...string) (Requirement, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return Requirement{}, err
		}
		roles = append(roles, r)
	}
	return Require(roles...), nil
}

// IsZero reports whether the requirement is open.
func (q Requirement) IsZero() bool {
	return len(q.roles) == 0 && !q.closed
}

// Roles returns a copy of the accepted roles.
func (q Requirement) Roles() []Role {
	out := make([]Role, len(q.roles))
	copy(out, q.roles)
	return out
}

// Names returns the accepted role names.
func (q Requirement) Names() []string {
	out := make([]string, len(q.roles))
	for i, r := range q.roles {
		out[i] = r.String()
	}
	return out
}

// Accepts reports whether the role is listed. Admin handling lives in Evaluate.
func (q Requirement) Accepts(role Role) bool {
	for _, r := range q.roles {
		if r == role {
			return true
		}
	}
	return false
}

// MarshalJSON always encodes the requirement as a list of names.
func (q Requirement) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Names())
}

// UnmarshalJSON accepts either a single role name or a list of names.
func (q *Requirement) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*q = Requirement{}
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parsed, err := ParseRequirement(single)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("access: requirement must be a role name or a list of role names")
	}
	parsed, err := ParseRequirement(many...)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
