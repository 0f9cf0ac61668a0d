package access

import (
	"net/http"
	"net/url"
)

// Fixed navigation targets.
const (
	LoginPath               = "/login"
	VerificationPendingPath = "/verify-email/pending"
	GenericDashboardPath    = "/dashboard"
	ResumeParam             = "from"
)

// Reason classifies an access decision.
type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbiddenRole   Reason = "forbidden_role"
	ReasonUnverifiedEmail Reason = "unverified_email"
	ReasonSessionExpired  Reason = "session_expired"
)

// Decision is the outcome of evaluating a principal against a requirement.
// Redirect is used by navigation guards, Status by API guards.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Redirect string
	Status   int
	// Location is the originally requested location for post-login resumption.
	Location string
}

// Evaluate is the single policy function used by every guard.
func Evaluate(p *Principal, req Requirement) Decision {
	if p == nil {
		return Decision{
			Reason:   ReasonUnauthenticated,
			Redirect: LoginPath,
			Status:   http.StatusUnauthorized,
		}
	}
	if req.IsZero() || p.Role == RoleAdmin || req.Accepts(p.Role) {
		return Decision{Allowed: true, Reason: ReasonAllowed, Status: http.StatusOK}
	}
	return Decision{
		Reason:   ReasonForbiddenRole,
		Redirect: DashboardFor(p.Role),
		Status:   http.StatusForbidden,
	}
}

// ResumeAt records the requested location on an unauthenticated or expired
// decision so the login page can send the user back after signing in.
func (d Decision) ResumeAt(location string) Decision {
	if d.Allowed || location == "" {
		return d
	}
	if d.Reason != ReasonUnauthenticated && d.Reason != ReasonSessionExpired {
		return d
	}
	d.Location = location
	d.Redirect = LoginURL(location)
	return d
}

// LoginURL returns the login page address carrying the resume location.
func LoginURL(location string) string {
	if location == "" || location == LoginPath {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{ResumeParam: {location}}.Encode()
}

// DashboardFor returns the landing page for a role.
func DashboardFor(role Role) string {
	switch role {
	case RoleOrganization:
		return "/organization/dashboard"
	case RoleRepresentative:
		return "/representative/dashboard"
	case RoleCitizen:
		return GenericDashboardPath
	case RoleAdmin:
		return "/admin"
	case RoleUnknown:
		return GenericDashboardPath
	}
	return GenericDashboardPath
}
