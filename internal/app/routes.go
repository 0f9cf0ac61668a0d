package app

import (
	"strings"

	"github.com/civicconnect/civic/internal/access"
)

// PageRoute is a guarded HTML page and the roles it admits.
type PageRoute struct {
	Path        string
	Title       string
	Requirement access.Requirement
}

// PageRoutes lists every guarded page. An empty Requirement admits any
// signed-in user.
func PageRoutes() []PageRoute {
	return []PageRoute{
		{Path: access.GenericDashboardPath, Title: "Dashboard"},
		{Path: access.DashboardFor(access.RoleRepresentative), Title: "Representative dashboard", Requirement: access.Require(access.RoleRepresentative)},
		{Path: access.DashboardFor(access.RoleOrganization), Title: "Organization dashboard", Requirement: access.Require(access.RoleOrganization)},
		{Path: "/admin", Title: "Administration", Requirement: access.Require(access.RoleAdmin)},
		{Path: "/settings", Title: "Settings"},
		{Path: access.VerificationPendingPath, Title: "Verify your email"},
	}
}

// LookupPage returns the guarded page serving location, ignoring any query.
func LookupPage(location string) (PageRoute, bool) {
	path := location
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, route := range PageRoutes() {
		if route.Path == path {
			return route, true
		}
	}
	return PageRoute{}, false
}
