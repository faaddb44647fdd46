package auth

// Permission represents a named capability in the system.
type Permission string

const (
	PermTopologyRead  Permission = "topology:read"
	PermTopologyWrite Permission = "topology:write"
	PermAuditRead     Permission = "audit:read"
)

// rolePermissions is the single source of truth for the authorisation model.
// Area scoping is applied on top of it by the topology guard.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermTopologyRead,
		PermTopologyWrite,
		PermAuditRead,
	},
	RoleReseller: {
		PermTopologyRead,
		PermTopologyWrite,
	},
	RoleSupport: {
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to a role,
// or nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
