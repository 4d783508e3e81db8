package auth

// Policy names an allowed-role set for an operation.
type Policy string

// Policies.
const (
	// PolicyAny admits every member of the workspace.
	PolicyAny Policy = "ANY"

	// PolicyStaff admits members who work records: owners and agents.
	PolicyStaff Policy = "STAFF"

	// PolicyOwner admits owners only.
	PolicyOwner Policy = "OWNER"
)

// policyRoles maps each policy to its member set.
// This is the single source of truth for role gating.
var policyRoles = map[Policy][]Role{
	PolicyAny:   {RoleOwner, RoleAgent, RoleViewer},
	PolicyStaff: {RoleOwner, RoleAgent},
	PolicyOwner: {RoleOwner},
}

// RequireRole returns id and true when id's role is a member of policy.
// A nil identity, an unknown role or an unknown policy is denied.
func RequireRole(id *Identity, policy Policy) (*Identity, bool) {
	if id == nil {
		return nil, false
	}
	for _, r := range policyRoles[policy] {
		if id.Role == r {
			return id, true
		}
	}
	return nil, false
}

// RolesFor returns a copy of policy's member set, or nil if unknown.
func RolesFor(policy Policy) []Role {
	roles := policyRoles[policy]
	if roles == nil {
		return nil
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// Permission represents a named capability shown to clients so they can
// hide controls the role cannot use. Enforcement always goes through
// RequireRole.
type Permission string

// Permission constants.
const (
	PermClientRead     Permission = "client:read"
	PermClientWrite    Permission = "client:write"
	PermReminderManage Permission = "reminder:manage"
	PermMemberRead     Permission = "member:read"
	PermMemberManage   Permission = "member:manage"
	PermSettingsManage Permission = "settings:manage"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermClientRead,
	},
	RoleAgent: {
		PermClientRead,
		PermClientWrite,
		PermReminderManage,
		PermMemberRead,
	},
	RoleOwner: {
		PermClientRead,
		PermClientWrite,
		PermReminderManage,
		PermMemberRead,
		PermMemberManage,
		PermSettingsManage,
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

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
