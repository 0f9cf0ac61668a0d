// Package routeguard decides what a page navigation shows: a waiting state, the
// requested view, or a redirect. It never produces an error page.
package routeguard

import (
	"strings"

	"github.com/civicconnect/civic/internal/access"
)

// DefaultSensitiveMarkers are path fragments that require a verified email.
var DefaultSensitiveMarkers = []string{"/sensitive", "/settings"}

// Identity is the resolved state of the authentication collaborator.
type Identity struct {
	Loading   bool
	Principal *access.Principal
}

// Navigation is one attempt to enter a view.
type Navigation struct {
	Identity    Identity
	Location    string
	Requirement access.Requirement
}

// Kind is the type of outcome.
type Kind int

const (
	KindWait Kind = iota
	KindRender
	KindRedirect
)

func (k Kind) String() string {
	switch k {
	case KindWait:
		return "wait"
	case KindRender:
		return "render"
	case KindRedirect:
		return "redirect"
	}
	return "unknown"
}

// Outcome is what the navigation resolves to.
type Outcome struct {
	Kind   Kind
	Target string
	Reason access.Reason
}

// Guard evaluates navigations. The zero value uses DefaultSensitiveMarkers.
type Guard struct {
	markers []string
}

// New returns a Guard using markers, or the defaults when none are given.
func New(markers ...string) Guard {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			cleaned = append(cleaned, m)
		}
	}
	return Guard{markers: cleaned}
}

// Markers returns the sensitive path markers in effect.
func (g Guard) Markers() []string {
	if len(g.markers) == 0 {
		return DefaultSensitiveMarkers
	}
	return g.markers
}

// IsSensitive reports whether location (query ignored) falls in a sensitive area.
// The verification pending page is never sensitive, whatever the markers.
func (g Guard) IsSensitive(location string) bool {
	path := location
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	// The pending page is where unverified users are sent; it never qualifies.
	if path == access.VerificationPendingPath {
		return false
	}
	for _, m := range g.Markers() {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// Check resolves a navigation. All inputs are already resolved; Check does no I/O.
func (g Guard) Check(nav Navigation) Outcome {
	if nav.Identity.Loading {
		return Outcome{Kind: KindWait}
	}
	p := nav.Identity.Principal
	if p == nil {
		d := access.Evaluate(nil, nav.Requirement).ResumeAt(nav.Location)
		return Outcome{Kind: KindRedirect, Target: d.Redirect, Reason: d.Reason}
	}
	// Verification outranks the role check on sensitive areas.
	if !p.EmailVerified && g.IsSensitive(nav.Location) {
		return Outcome{Kind: KindRedirect, Target: access.VerificationPendingPath, Reason: access.ReasonUnverifiedEmail}
	}
	d := access.Evaluate(p, nav.Requirement)
	if !d.Allowed {
		return Outcome{Kind: KindRedirect, Target: d.Redirect, Reason: d.Reason}
	}
	return Outcome{Kind: KindRender, Reason: access.ReasonAllowed}
}
