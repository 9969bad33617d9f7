package dispatch

import (
	"strings"

	"skeleton/pkg/auth"
	"skeleton/pkg/names"
	"skeleton/pkg/registry"
)

const (
	ActionSegment = "skeleton-action"
	LegacySegment = "t"
)

// NavPath is the module/section/item triple named by a request path.
// Section and Item are empty when the path stops earlier.
type NavPath struct {
	Module  string
	Section string
	Item    string
}

// RouteContext is everything a controller learns about the request's route.
type RouteContext struct {
	System   registry.System
	Module   string
	Section  string
	Item     string
	Redirect []string
	Token    string
	Config   *registry.TokenConfig
	User     auth.User
}

// Route is the parsed form of a request path.
type Route struct {
	Nav      NavPath
	Token    string
	Legacy   bool
	Redirect []string
}

// ParseRoute splits path into segments and classifies it as a token
// action, a legacy redirect or plain navigation.
func ParseRoute(path string) Route {
	segs := segments(path)
	switch {
	case len(segs) >= 2 && segs[0] == ActionSegment:
		return Route{Nav: NavPath{Module: names.DefaultModule}, Token: segs[1]}
	case len(segs) >= 2 && segs[0] == LegacySegment:
		return Route{
			Nav:      NavPath{Module: names.Normalize(segs[1])},
			Legacy:   true,
			Redirect: append([]string{}, segs[2:]...),
		}
	}
	var nav NavPath
	if len(segs) > 0 {
		nav.Module = names.Normalize(segs[0])
	} else {
		nav.Module = names.Normalize("")
	}
	if len(segs) > 1 {
		nav.Section = names.Normalize(segs[1])
	}
	if len(segs) > 2 {
		nav.Item = names.Normalize(segs[2])
	}
	return Route{Nav: nav}
}

func segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SystemFor is the tenant scope of u: business staff work in the business
// system, everyone else in central.
func SystemFor(u auth.User) registry.System {
	if strings.TrimSpace(u.BusinessID) != "" {
		return registry.SystemBusiness
	}
	return registry.SystemCentral
}
