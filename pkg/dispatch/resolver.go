package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"skeleton/pkg/names"
	"skeleton/pkg/registry"
)

// Namespace groups controllers. Per-module namespaces look like
// "Business/CompanyManagement"; shared ones are Actions and Helpers.
type Namespace string

const (
	NamespaceActions Namespace = "Actions"
	NamespaceHelpers Namespace = "Helpers"
)

func ModuleNamespace(system registry.System, module string) Namespace {
	return Namespace(system.Title() + "/" + names.Studly(module))
}

// Factory builds a controller for one request.
type Factory func() Controller

type controllerKey struct {
	ns   Namespace
	name ControllerName
}

// Controllers maps (namespace, controller name) to a factory. Request data
// is only ever used as a lookup key.
type Controllers struct {
	mu sync.RWMutex
	m  map[controllerKey]Factory
}

func NewControllers() *Controllers {
	return &Controllers{m: map[controllerKey]Factory{}}
}

func (c *Controllers) Register(ns Namespace, name ControllerName, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[controllerKey{ns, name}] = f
}

// Replace swaps in next's registrations. Lookups see either the old set or
// the new one, never a mix.
func (c *Controllers) Replace(next *Controllers) {
	next.mu.RLock()
	m := make(map[controllerKey]Factory, len(next.m))
	for k, f := range next.m {
		m[k] = f
	}
	next.mu.RUnlock()
	c.mu.Lock()
	c.m = m
	c.mu.Unlock()
}

func (c *Controllers) Lookup(ns Namespace, name ControllerName) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.m[controllerKey{ns, name}]
	return f, ok
}

// Namespaces lists every namespace with at least one controller.
func (c *Controllers) Namespaces() []Namespace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := map[Namespace]struct{}{}
	for k := range c.m {
		seen[k.ns] = struct{}{}
	}
	out := make([]Namespace, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Target is what the resolver needs to know about a request.
type Target struct {
	System registry.System
	Module string
	Token  string
	Legacy bool
}

// Resolution is a controller operation ready to invoke.
type Resolution struct {
	Namespace  Namespace
	Controller ControllerName
	Method     Method
	Handler    HandlerFunc
	System     registry.System
	Module     string
	Config     *registry.TokenConfig
}

type Resolver struct {
	Registry    registry.Source
	Tokens      registry.TokenResolver
	Controllers *Controllers
}

// Resolve picks the controller operation for t without running it.
// Failures are *Error values wrapping ErrNoMatch, except store errors which
// come back as InternalError.
func (rv *Resolver) Resolve(ctx context.Context, t Target) (Resolution, error) {
	switch {
	case t.Token != "":
		return rv.resolveToken(ctx, t)
	case t.Legacy:
		return rv.bind(ModuleNamespace(t.System, t.Module), TokenCtrl, MethodIndex, Resolution{System: t.System, Module: t.Module})
	default:
		return rv.bind(ModuleNamespace(t.System, t.Module), NavCtrl, MethodIndex, Resolution{System: t.System, Module: t.Module})
	}
}

func (rv *Resolver) resolveToken(ctx context.Context, t Target) (Resolution, error) {
	cfg, err := rv.Tokens.ResolveToken(ctx, t.Token)
	if errors.Is(err, registry.ErrNotFound) {
		return Resolution{}, noMatch(TokenInvalid, "token does not resolve")
	}
	if err != nil {
		return Resolution{}, newError(InternalError, fmt.Errorf("resolve token: %w", err))
	}
	if cfg.Key == "" {
		return Resolution{}, noMatch(TokenInvalid, "token has no key")
	}
	defs, err := rv.Registry.TokenDefinitions(ctx)
	if err != nil {
		return Resolution{}, newError(InternalError, fmt.Errorf("token definitions: %w", err))
	}
	def, ok := registry.FindDefinition(defs, cfg.Key)
	if !ok {
		return Resolution{}, noMatch(TokenInvalid, fmt.Sprintf("no token definition for key %q", cfg.Key))
	}
	module := names.Normalize(def.Module)
	code, err := ParseActionCode(t.Token)
	if err != nil {
		return Resolution{}, &Error{Kind: TokenInvalid, Err: fmt.Errorf("%w: %v", ErrNoMatch, err)}
	}
	action, _ := Lookup(code)
	system := t.System
	if strings.TrimSpace(string(cfg.System)) != "" {
		system = registry.ParseSystem(string(cfg.System))
	}
	var ns Namespace
	switch action.Scope() {
	case ScopeActions:
		ns = NamespaceActions
	case ScopeHelpers:
		ns = NamespaceHelpers
	default:
		ns = ModuleNamespace(system, module)
	}
	return rv.bind(ns, action.Controller, action.Method, Resolution{System: system, Module: module, Config: &cfg})
}

func (rv *Resolver) bind(ns Namespace, name ControllerName, m Method, res Resolution) (Resolution, error) {
	factory, ok := rv.Controllers.Lookup(ns, name)
	if !ok {
		return Resolution{}, noMatch(ControllerNotFound, fmt.Sprintf("no controller %s in %s", name, ns))
	}
	h, ok := m.Bind(factory())
	if !ok {
		return Resolution{}, noMatch(MethodNotFound, fmt.Sprintf("controller %s/%s has no %s method", ns, name, m))
	}
	res.Namespace = ns
	res.Controller = name
	res.Method = m
	res.Handler = h
	return res, nil
}

func noMatch(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf("%w: %s", ErrNoMatch, detail)}
}
