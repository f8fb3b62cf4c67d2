package users

import "strings"

// Role represents a user's role within the platform
type Role string

const (
	RoleVolunteer    Role = "volunteer"    // Browses and applies to opportunities
	RoleOrganization Role = "organization" // Posts opportunities and reviews applications
	RoleAdmin        Role = "admin"        // Manages the whole platform
)

// ParseRole normalizes a role string case-insensitively. The second
// return value is false for roles outside the closed set.
func ParseRole(role string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleVolunteer:
		return RoleVolunteer, true
	case RoleOrganization:
		return RoleOrganization, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// User is the client's view of an authenticated account, as returned by
// the /auth/me endpoint and cached locally between sessions.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Registration is the payload for creating a new account.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
