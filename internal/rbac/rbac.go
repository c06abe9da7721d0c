package rbac

import "strings"

type Role string
type Action string

const (
	RoleAdmin      Role = "admin"
	RoleCEO        Role = "ceo"
	RoleAccountant Role = "accountant"
	RoleExpert     Role = "expert"
)

const (
	ActionRead          Action = "read"
	ActionWriteCase     Action = "write_case"
	ActionWriteClient   Action = "write_client"
	ActionManageUsers   Action = "manage_users"
	ActionManageCompany Action = "manage_company"
)

// manageable is the role hierarchy: the roles each role may create and administer.
var manageable = map[Role][]Role{
	RoleAdmin:      {RoleAdmin, RoleCEO, RoleAccountant, RoleExpert},
	RoleCEO:        {RoleAccountant, RoleExpert},
	RoleAccountant: {RoleExpert},
	RoleExpert:     {},
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleCEO:
		return true
	case RoleAccountant:
		return action == ActionRead || action == ActionWriteCase || action == ActionWriteClient || action == ActionManageUsers
	case RoleExpert:
		return action == ActionRead
	default:
		return false
	}
}

// CanManage reports whether actor may administer users holding target.
func CanManage(actor, target Role) bool {
	for _, r := range manageable[actor] {
		if r == target {
			return true
		}
	}
	return false
}

// ManageableRoles returns a copy of the roles actor may administer.
func ManageableRoles(actor Role) []Role {
	roles := manageable[actor]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// IsPrivileged reports whether role sees every record in its tenant.
func IsPrivileged(role Role) bool {
	return role == RoleAdmin || role == RoleCEO || role == RoleAccountant
}

// CanAccessOwned decides read/write eligibility on a record owned (created or
// assigned) by ownerID.
func CanAccessOwned(role Role, requesterID, ownerID string) bool {
	if IsPrivileged(role) {
		return true
	}
	return ownerID != "" && ownerID == requesterID
}

// Parse returns the role for a case-insensitive name.
func Parse(role string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleAdmin, RoleCEO, RoleAccountant, RoleExpert:
		return r, true
	default:
		return "", false
	}
}

// Normalize falls back to the least privileged role for unknown names.
func Normalize(role string) Role {
	if r, ok := Parse(role); ok {
		return r
	}
	return RoleExpert
}

func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
