// Package registry serves the navigable module/section/item tree and the token
// definitions that drive generic controllers.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a token or definition has no backing row.
var ErrNotFound = errors.New("registry: not found")

// System selects the tenant scope a request operates against.
type System string

const (
	SystemCentral  System = "central"
	SystemBusiness System = "business"
)

// ParseSystem maps free-form input onto a System, defaulting to central.
func ParseSystem(raw string) System {
	if strings.EqualFold(strings.TrimSpace(raw), string(SystemBusiness)) {
		return SystemBusiness
	}
	return SystemCentral
}

// Title is the namespace form of the system ("Central", "Business").
func (s System) Title() string {
	if s == SystemBusiness {
		return "Business"
	}
	return "Central"
}

type Module struct {
	ModuleID int64  `json:"module_id"`
	Name     string `json:"name"`
}

type Section struct {
	SectionID int64  `json:"section_id"`
	ModuleID  int64  `json:"module_id"`
	Name      string `json:"name"`
}

type Item struct {
	ItemID    int64  `json:"item_id"`
	SectionID int64  `json:"section_id"`
	Name      string `json:"name"`
}

// TokenDefinition declares which module owns a token key.
type TokenDefinition struct {
	Key    string `json:"key" mapstructure:"key"`
	Module string `json:"module" mapstructure:"module"`
	Table  string `json:"table" mapstructure:"tbl"`
	System System `json:"system" mapstructure:"system"`
}

// TokenConfig is the decoded form of an issued action token.
type TokenConfig struct {
	Key       string     `json:"key" mapstructure:"key"`
	Table     string     `json:"table" mapstructure:"tbl"`
	System    System     `json:"system" mapstructure:"system"`
	Act       string     `json:"act" mapstructure:"act"`
	ID        *string    `json:"id" mapstructure:"record_id"`
	Token     string     `json:"token" mapstructure:"token"`
	Validate  string     `json:"validate" mapstructure:"validate"`
	Module    string     `json:"module" mapstructure:"module"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" mapstructure:"expires_at"`
}

// Expired reports whether the token's lifetime ended at or before now. Tokens
// without an expiry never expire.
func (c TokenConfig) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// RequiredColumns lists the columns named by Validate; "0" or blank means none.
func (c TokenConfig) RequiredColumns() []string {
	raw := strings.TrimSpace(c.Validate)
	if raw == "" || raw == "0" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Source is the read side of the navigation registry.
type Source interface {
	Modules(ctx context.Context) ([]Module, error)
	Sections(ctx context.Context, moduleID int64) ([]Section, error)
	Items(ctx context.Context, sectionID int64) ([]Item, error)
	TokenDefinitions(ctx context.Context) ([]TokenDefinition, error)
}

// TokenResolver decodes an opaque token string.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (TokenConfig, error)
}

// Store is everything the dispatcher reads from the registry.
type Store interface {
	Source
	TokenResolver
}

// FindDefinition returns the definition with the given key.
func FindDefinition(defs []TokenDefinition, key string) (TokenDefinition, bool) {
	for _, d := range defs {
		if d.Key == key {
			return d, true
		}
	}
	return TokenDefinition{}, false
}
