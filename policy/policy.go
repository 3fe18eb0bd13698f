// Package policy holds the pure authorization decision functions for
// user-mutating actions. Nothing here performs I/O; callers load the
// target and the acting principal and ask for a verdict.
package policy

// Subject is the minimal view of an account the decision functions need.
type Subject struct {
	ID     string
	Active bool
	Roles  Roles
}

// IsSelf reports whether target and principal are the same account.
func IsSelf(target, principal Subject) bool {
	return target.ID == principal.ID
}

// CanActOnUser decides generic update/deactivate actions of principal on
// target:
//
//   - an inactive principal may do nothing;
//   - an active sys-admin may act on anyone;
//   - an active admin may act on targets holding neither admin nor
//     sys-admin;
//   - any active principal may act on itself, regardless of role.
func CanActOnUser(target, principal Subject) bool {
	if !principal.Active {
		return false
	}
	switch {
	case principal.Roles.Contains(RoleSysAdmin):
		return true
	case principal.Roles.Contains(RoleAdmin) &&
		!target.Roles.ContainsAny(RoleAdmin, RoleSysAdmin):
		return true
	case IsSelf(target, principal):
		return true
	default:
		return false
	}
}

// CanUpdateRoles decides role-mutating updates. A nil newRoles means the
// update does not touch roles and the decision delegates to CanActOnUser.
//
// For self role-changes the stored roles of the target are authoritative,
// not the principal's claimed roles; only a current admin may rewrite its
// own set, and never to one that includes sys-admin. A sys-admin cannot
// self-demote through this path, and plain users cannot self-promote.
func CanUpdateRoles(target, principal Subject, newRoles Roles) bool {
	if newRoles == nil {
		return CanActOnUser(target, principal)
	}
	if !principal.Active {
		return false
	}

	if IsSelf(target, principal) {
		if !target.Roles.Contains(RoleAdmin) {
			return false
		}
		return !newRoles.Contains(RoleSysAdmin)
	}

	switch {
	case principal.Roles.Contains(RoleSysAdmin):
		return true
	case principal.Roles.Contains(RoleAdmin):
		return !newRoles.Contains(RoleSysAdmin)
	default:
		return false
	}
}

// CanCreateUserAs decides administrative account creation. The signup
// bootstrap path bypasses this check entirely; see the engine's signup
// flow.
func CanCreateUserAs(principal Subject) bool {
	if !principal.Active {
		return false
	}
	if principal.Roles.ContainsAny(RoleUser, RoleGuest) {
		return false
	}
	return principal.Roles.ContainsAny(RoleAdmin, RoleSysAdmin)
}

// FilterAssignableRoles narrows a requested role set to what the
// principal may hand out on the creation path. Sys-admins pass the set
// through; admins get sys-admin stripped rather than the whole request
// rejected. The returned set may be empty; see NormalizeAssignment.
func FilterAssignableRoles(principal Subject, requested Roles) Roles {
	if principal.Roles.Contains(RoleSysAdmin) {
		return requested
	}
	out := make(Roles, 0, len(requested))
	for _, r := range requested {
		if r == RoleSysAdmin {
			continue
		}
		out = append(out, r)
	}
	return out
}

// NormalizeAssignment maps an explicit empty assignment to a guest-only
// set so no account is ever left roleless. A nil set stays nil (meaning
// "leave roles untouched").
func NormalizeAssignment(roles Roles) Roles {
	if roles == nil {
		return nil
	}
	if len(roles) == 0 {
		return Roles{RoleGuest}
	}
	return roles
}
