package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
	"skeleton/pkg/names"
	"skeleton/pkg/registry"
)

// Nav is the navigation payload for a module, section or item page.
type Nav struct {
	System   registry.System `json:"system"`
	Module   string          `json:"module"`
	Section  string          `json:"section,omitempty"`
	Item     string          `json:"item,omitempty"`
	Path     string          `json:"path"`
	Children []string        `json:"children"`
}

type NavCtrl struct{ base }

func (c *NavCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	nav := Nav{
		System:   rc.System,
		Module:   rc.Module,
		Section:  rc.Section,
		Item:     rc.Item,
		Path:     canonicalPath(rc.Module, rc.Section, rc.Item),
		Children: []string{},
	}
	if rc.Item == "" && c.Registry != nil {
		children, err := c.children(r, rc)
		if err != nil {
			return err
		}
		nav.Children = children
	}
	httpx.OK(w, nav, "")
	return nil
}

// children lists the sections of a module, or the items of a section.
func (c *NavCtrl) children(r *http.Request, rc dispatch.RouteContext) ([]string, error) {
	ctx := r.Context()
	mods, err := c.Registry.Modules(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, m := range mods {
		if names.Normalize(m.Name) != rc.Module {
			continue
		}
		secs, err := c.Registry.Sections(ctx, m.ModuleID)
		if err != nil {
			return nil, err
		}
		for _, s := range secs {
			if rc.Section == "" {
				out = append(out, names.Normalize(s.Name))
				continue
			}
			if names.Normalize(s.Name) != rc.Section {
				continue
			}
			items, err := c.Registry.Items(ctx, s.SectionID)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out = append(out, names.Normalize(it.Name))
			}
		}
	}
	return out, nil
}

// TokenCtrl answers legacy /t/<module>/... links with a redirect to the
// canonical module path.
type TokenCtrl struct{ base }

func (c *TokenCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	target := "/" + names.Dashed(rc.Module)
	for _, seg := range rc.Redirect {
		target += "/" + url.PathEscape(seg)
	}
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

func canonicalPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		if p != "" {
			segs = append(segs, names.Dashed(p))
		}
	}
	return "/" + strings.Join(segs, "/")
}
