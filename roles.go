package accesscode

// ParseProfileRole returns the canonical role and whether the input named a
// valid one.
func ParseProfileRole(role string) (ProfileRole, bool) {
	switch role {
	case RoleAdmin, RolePastor, RoleYouthCommittee, RolePere, RoleMere:
		return role, true
	default:
		return "", false
	}
}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(role ProfileRole) bool {
	_, ok := ParseProfileRole(role)
	return ok
}

// IsParentRole reports whether the role belongs to a family parent.
func IsParentRole(role ProfileRole) bool {
	return role == RolePere || role == RoleMere
}

// IsPrivilegedRole reports whether the role may reach administrative
// surfaces such as user provisioning.
func IsPrivilegedRole(role ProfileRole) bool {
	return role == RoleAdmin
}

// DashboardPath returns the landing route for a role. Unknown roles land on
// the public root.
func DashboardPath(role ProfileRole) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RolePastor:
		return "/church"
	case RoleYouthCommittee:
		return "/youth"
	case RolePere, RoleMere:
		return "/parent"
	default:
		return "/"
	}
}
