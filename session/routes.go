package session

import (
	"github.com/rs/zerolog/log"

	"github.com/voluntree/client-go/users"
)

// Client-side route targets used by post-auth navigation.
const (
	RouteRoot             = "/"
	RouteLogin            = "/login"
	RouteRegistered       = "/login?registered=1"
	RouteAdminHome        = "/admin"
	RouteOrganizationHome = "/organization"
	RouteVolunteerHome    = "/volunteer"
)

// Navigator performs client-side navigation. The manager never touches
// routing machinery directly; views inject whatever navigation
// primitive they use.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

func (f NavigatorFunc) NavigateTo(path string) {
	f(path)
}

// HomeRoute maps a role to its dashboard, case-insensitively. An
// unrecognized role lands on the application root with a warning.
func HomeRoute(role string) string {
	parsed, ok := users.ParseRole(role)
	if !ok {
		log.Warn().Str("role", role).Msg("unrecognized role, routing to application root")
		return RouteRoot
	}
	switch parsed {
	case users.RoleAdmin:
		return RouteAdminHome
	case users.RoleOrganization:
		return RouteOrganizationHome
	default:
		return RouteVolunteerHome
	}
}
