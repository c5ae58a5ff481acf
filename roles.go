package accounts

import "strings"

// Role is the user's role
type Role string

const (
	// RoleUser is a regular account, usually an employee or a guest
	RoleUser Role = "User"
	// RoleAdmin manages a company and its employees
	RoleAdmin Role = "Admin"
	// RoleSuper manages every account
	RoleSuper Role = "Super"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuper:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// AllRoles returns all predefined roles
func AllRoles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleSuper}
}

// ParseRole maps user input to a Role ignoring case. The result is the
// canonical spelling used in tokens and policy rules.
func ParseRole(raw string) (Role, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, r := range AllRoles() {
		if strings.EqualFold(trimmed, string(r)) {
			return r, true
		}
	}
	return Role(trimmed), false
}
