package policy

import (
	"encoding/json"
	"fmt"
)

// Role is one of the fixed application roles. The numeric values define a
// total privilege order: Guest < User < Admin < SysAdmin.
type Role uint8

const (
	// RoleGuest grants read-only access to public resources.
	RoleGuest Role = iota
	// RoleUser is the regular account role.
	RoleUser
	// RoleAdmin manages users but may never mint or touch sys-admins.
	RoleAdmin
	// RoleSysAdmin is the highest privilege level.
	RoleSysAdmin
)

var roleNames = map[Role]string{
	RoleGuest:    "guest",
	RoleUser:     "user",
	RoleAdmin:    "admin",
	RoleSysAdmin: "sys-admin",
}

var rolesByName = map[string]Role{
	"guest":     RoleGuest,
	"user":      RoleUser,
	"admin":     RoleAdmin,
	"sys-admin": RoleSysAdmin,
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole maps a wire name ("guest", "user", "admin", "sys-admin") to a
// Role.
func ParseRole(name string) (Role, error) {
	r, ok := rolesByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// MarshalJSON encodes the role by name; the session cache record is read
// by an independently-deployed process, so the wire form must stay stable.
func (r Role) MarshalJSON() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("cannot encode unknown role %d", uint8(r))
	}
	return json.Marshal(name)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Roles is an ordered set of roles assigned to a user.
type Roles []Role

// Contains reports whether rs holds role.
func (rs Roles) Contains(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// ContainsAny reports whether rs holds at least one of the given roles.
func (rs Roles) ContainsAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Contains(r) {
			return true
		}
	}
	return false
}

// Names returns the wire names of rs, preserving order.
func (rs Roles) Names() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}

// ParseRoles maps wire names to a role set, rejecting unknown names.
func ParseRoles(names []string) (Roles, error) {
	out := make(Roles, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
