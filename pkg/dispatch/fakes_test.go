package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"skeleton/pkg/audit"
	"skeleton/pkg/auth"
	"skeleton/pkg/ratelimit"
	"skeleton/pkg/registry"
)

type fakeRegistry struct {
	mu       sync.Mutex
	modules  []registry.Module
	sections map[int64][]registry.Section
	items    map[int64][]registry.Item
	defs     []registry.TokenDefinition
	tokens   map[string]registry.TokenConfig
	err      error
	calls    int
}

func (f *fakeRegistry) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeRegistry) Modules(ctx context.Context) ([]registry.Module, error) {
	f.hit()
	return f.modules, f.err
}

func (f *fakeRegistry) Sections(ctx context.Context, moduleID int64) ([]registry.Section, error) {
	f.hit()
	return f.sections[moduleID], f.err
}

func (f *fakeRegistry) Items(ctx context.Context, sectionID int64) ([]registry.Item, error) {
	f.hit()
	return f.items[sectionID], f.err
}

func (f *fakeRegistry) TokenDefinitions(ctx context.Context) ([]registry.TokenDefinition, error) {
	f.hit()
	return f.defs, f.err
}

func (f *fakeRegistry) ResolveToken(ctx context.Context, token string) (registry.TokenConfig, error) {
	f.hit()
	if f.err != nil {
		return registry.TokenConfig{}, f.err
	}
	cfg, ok := f.tokens[token]
	if !ok {
		return registry.TokenConfig{}, registry.ErrNotFound
	}
	return cfg, nil
}

type fakePerms struct {
	allow map[string]bool
	err   error
	asked []string
}

func (f *fakePerms) Has(ctx context.Context, perm string, u auth.User) (bool, error) {
	f.asked = append(f.asked, perm)
	if f.err != nil {
		return false, f.err
	}
	return f.allow[perm], nil
}

// call records one controller invocation.
type call struct {
	method Method
	rc     RouteContext
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) add(m Method, rc RouteContext) {
	r.mu.Lock()
	r.calls = append(r.calls, call{m, rc})
	r.mu.Unlock()
}

func (r *recorder) last() (call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return call{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// fullCtrl implements every handler interface.
type fullCtrl struct {
	rec *recorder
}

func (c fullCtrl) reply(w http.ResponseWriter, m Method, rc RouteContext) error {
	c.rec.add(m, rc)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(string(m)))
	return nil
}

func (c fullCtrl) Index(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.reply(w, MethodIndex, rc)
}

func (c fullCtrl) Bulk(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.reply(w, MethodBulk, rc)
}

func (c fullCtrl) Single(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.reply(w, MethodSingle, rc)
}

func (c fullCtrl) DeleteSingle(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.reply(w, MethodDeleteSingle, rc)
}

func (c fullCtrl) DeleteBulk(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.reply(w, MethodDeleteBulk, rc)
}

// indexOnly lacks every method but Index.
type indexOnly struct{}

func (indexOnly) Index(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	w.WriteHeader(http.StatusOK)
	return nil
}

type panicCtrl struct{}

func (panicCtrl) Index(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	panic("nil map write")
}

type failingCtrl struct{ err error }

func (c failingCtrl) Index(w http.ResponseWriter, r *http.Request, rc RouteContext) error {
	return c.err
}

type memAudit struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (m *memAudit) Append(ctx context.Context, ev audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

var errBoom = errors.New("boom")

type countingLimiter struct {
	calls int
}

func (c *countingLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) bool {
	c.calls++
	return false
}

func (c *countingLimiter) Hit(ctx context.Context, key string, window time.Duration) ratelimit.Decision {
	c.calls++
	return ratelimit.Decision{Count: 1}
}
