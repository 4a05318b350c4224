// Package guard decides, for one navigation, whether to render the target,
// show a loading state, or redirect. Decisions depend only on the session
// snapshot and the route's declared roles.
package guard

import (
	"strings"

	"testquest-backend/internal/models"
	"testquest-backend/internal/session"
)

const LoginPath = "/auth/login"

type Kind int

const (
	Render Kind = iota
	ShowLoading
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Render:
		return "render"
	case ShowLoading:
		return "loading"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Decision struct {
	Kind Kind   `json:"-"`
	Path string `json:"redirect,omitempty"`
	// From is the originally requested location, set on login redirects.
	From string `json:"from,omitempty"`
}

// HomePath is the dashboard of role.
func HomePath(role models.Role) string {
	return "/" + string(role) + "/dashboard"
}

// Decide gates a protected route. A role mismatch sends the user to their own
// dashboard, never to the required role's.
func Decide(snap session.Snapshot, requested string, required ...models.Role) Decision {
	if snap.IsLoading {
		return Decision{Kind: ShowLoading}
	}
	if !snap.IsAuthenticated() {
		return Decision{Kind: Redirect, Path: LoginPath, From: requested}
	}
	if len(required) > 0 && !hasRole(required, snap.User.Role) {
		return Decision{Kind: Redirect, Path: HomePath(snap.User.Role)}
	}
	return Decision{Kind: Render}
}

// DecidePublic gates a public-only route such as the login page.
func DecidePublic(snap session.Snapshot) Decision {
	if snap.IsLoading {
		return Decision{Kind: ShowLoading}
	}
	if snap.IsAuthenticated() {
		return Decision{Kind: Redirect, Path: HomePath(snap.User.Role)}
	}
	return Decision{Kind: Render}
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Rule declares the access requirement of every path under Prefix.
// A Prefix ending in "/" matches the subtree, otherwise it matches exactly.
type Rule struct {
	Prefix     string
	Roles      []models.Role
	PublicOnly bool
}

func (r Rule) matches(path string) bool {
	if strings.HasSuffix(r.Prefix, "/") {
		return strings.HasPrefix(path, r.Prefix) || path == strings.TrimSuffix(r.Prefix, "/")
	}
	return path == r.Prefix
}

// Table is an ordered route whitelist. The longest matching prefix wins;
// unmatched paths render.
type Table []Rule

var DefaultTable = Table{
	{Prefix: "/student/", Roles: []models.Role{models.RoleStudent}},
	{Prefix: "/mentor/", Roles: []models.Role{models.RoleMentor}},
	{Prefix: "/admin/", Roles: []models.Role{models.RoleAdmin}},
	{Prefix: LoginPath, PublicOnly: true},
	{Prefix: "/auth/register", PublicOnly: true},
}

func (t Table) Decide(snap session.Snapshot, path string) Decision {
	rule, ok := t.match(path)
	if !ok {
		return Decision{Kind: Render}
	}
	if rule.PublicOnly {
		return DecidePublic(snap)
	}
	return Decide(snap, path, rule.Roles...)
}

func (t Table) match(path string) (Rule, bool) {
	var best Rule
	found := false
	for _, rule := range t {
		if rule.matches(path) && (!found || len(rule.Prefix) > len(best.Prefix)) {
			best = rule
			found = true
		}
	}
	return best, found
}
