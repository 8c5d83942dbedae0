package auth

import "strings"

// Role is the access level carried in a dashboard token.
type Role string

// Each role includes the ones before it: viewers read the machine list and
// statistics, operators also export reports, admins also edit machine info.
const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole reads a role claim, ignoring case and surrounding space.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleLevels[role]; !ok {
		return "", false
	}
	return role, true
}

// Allows reports whether r may call a route that requires the given role.
// Unknown roles allow nothing.
func (r Role) Allows(required Role) bool {
	level, ok := roleLevels[r]
	return ok && level >= roleLevels[required]
}
