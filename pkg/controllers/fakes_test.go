package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"skeleton/pkg/auth"
	"skeleton/pkg/dispatch"
	"skeleton/pkg/registry"
	"skeleton/pkg/tokens"
)

// memFacade is an in-memory Facade keyed by table name.
type memFacade struct {
	cols   map[string][]Column
	rows   map[string][]map[string]any
	nextID int
	listQ  ListQuery
	err    error
}

func newMemFacade() *memFacade {
	return &memFacade{
		cols: map[string][]Column{
			"companies": {{Name: "id", Type: "bigint"}, {Name: "name", Type: "text"}, {Name: "email", Type: "text", Nullable: true}},
		},
		rows: map[string][]map[string]any{
			"companies": {
				{"id": "1", "name": "Acme", "email": "ops@acme.test"},
				{"id": "2", "name": "Globex", "email": nil},
			},
		},
		nextID: 3,
	}
}

func (m *memFacade) Columns(_ context.Context, table string) ([]Column, error) {
	if m.err != nil {
		return nil, m.err
	}
	cols, ok := m.cols[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

func (m *memFacade) List(_ context.Context, table string, q ListQuery) (Page, error) {
	m.listQ = q
	all := append([]map[string]any(nil), m.rows[table]...)
	sort.SliceStable(all, func(i, j int) bool { return fmt.Sprint(all[i][q.OrderBy]) < fmt.Sprint(all[j][q.OrderBy]) })
	end := min(len(all), q.Offset+q.Limit)
	var page []map[string]any
	if q.Offset < len(all) {
		page = all[q.Offset:end]
	}
	return Page{Rows: page, Total: int64(len(all)), Limit: q.Limit, Offset: q.Offset}, nil
}

func (m *memFacade) Get(_ context.Context, table, key, id string) (map[string]any, error) {
	for _, row := range m.rows[table] {
		if fmt.Sprint(row[key]) == id {
			return row, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memFacade) GetMany(_ context.Context, table, key string, ids []string) ([]map[string]any, error) {
	var out []map[string]any
	for _, row := range m.rows[table] {
		if contains(ids, fmt.Sprint(row[key])) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memFacade) Insert(_ context.Context, table string, values map[string]any) (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	row := map[string]any{"id": fmt.Sprint(m.nextID)}
	m.nextID++
	for k, v := range values {
		row[k] = v
	}
	m.rows[table] = append(m.rows[table], row)
	return row, nil
}

func (m *memFacade) Update(_ context.Context, table, key string, ids []string, values map[string]any) (int64, error) {
	var n int64
	for _, row := range m.rows[table] {
		if contains(ids, fmt.Sprint(row[key])) {
			for k, v := range values {
				row[k] = v
			}
			n++
		}
	}
	return n, nil
}

func (m *memFacade) Delete(_ context.Context, table, key string, ids []string) (int64, error) {
	var kept []map[string]any
	var n int64
	for _, row := range m.rows[table] {
		if contains(ids, fmt.Sprint(row[key])) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows[table] = kept
	return n, nil
}

func (m *memFacade) Exists(_ context.Context, table, column, value, key, exceptID string) (bool, error) {
	for _, row := range m.rows[table] {
		if fmt.Sprint(row[column]) == value && (exceptID == "" || fmt.Sprint(row[key]) != exceptID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memFacade) Options(_ context.Context, table, valueCol, labelCol string, limit int) ([]Option, error) {
	var out []Option
	for _, row := range m.rows[table] {
		out = append(out, Option{Value: fmt.Sprint(row[valueCol]), Label: fmt.Sprint(row[labelCol])})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type fakeIssuer struct {
	reqs []tokens.Request
	err  error
}

func (f *fakeIssuer) Issue(_ context.Context, req tokens.Request) (registry.TokenConfig, error) {
	if f.err != nil {
		return registry.TokenConfig{}, f.err
	}
	f.reqs = append(f.reqs, req)
	return registry.TokenConfig{Token: fmt.Sprintf("aaaaaaaa_bbbbbbbb_cccccccc_dddddddd_%s", req.Code)}, nil
}

type fakePerms struct {
	allow map[string]bool
	err   error
}

func (f *fakePerms) Has(_ context.Context, perm string, _ auth.User) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allow["*"] || f.allow[perm], nil
}

type fakeSource struct {
	modules  []registry.Module
	sections map[int64][]registry.Section
	items    map[int64][]registry.Item
	defs     []registry.TokenDefinition
	tokens   map[string]registry.TokenConfig
	err      error
}

func (s *fakeSource) Modules(context.Context) ([]registry.Module, error) { return s.modules, s.err }
func (s *fakeSource) Sections(_ context.Context, id int64) ([]registry.Section, error) {
	return s.sections[id], s.err
}
func (s *fakeSource) Items(_ context.Context, id int64) ([]registry.Item, error) {
	return s.items[id], s.err
}
func (s *fakeSource) TokenDefinitions(context.Context) ([]registry.TokenDefinition, error) {
	return s.defs, s.err
}
func (s *fakeSource) ResolveToken(_ context.Context, token string) (registry.TokenConfig, error) {
	cfg, ok := s.tokens[token]
	if !ok {
		return registry.TokenConfig{}, registry.ErrNotFound
	}
	return cfg, nil
}

var errBoom = errors.New("boom")

var bob = auth.User{UserID: "u-bob", BusinessID: "b-1"}

func strPtr(s string) *string { return &s }

func companiesCfg(id string, validate string) *registry.TokenConfig {
	cfg := &registry.TokenConfig{Key: "business_companies", Table: "companies", System: registry.SystemBusiness, Act: "id", Validate: validate, Module: "Company Management"}
	if id != "" {
		cfg.ID = strPtr(id)
	}
	return cfg
}

func routeFor(cfg *registry.TokenConfig) dispatch.RouteContext {
	return dispatch.RouteContext{System: registry.SystemBusiness, Module: "Company Management", Config: cfg, User: bob}
}

func call(t *testing.T, h dispatch.HandlerFunc, method, target, body string, rc dispatch.RouteContext) (*httptest.ResponseRecorder, error) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	return rr, h(rr, req, rc)
}

type envelope struct {
	Status  bool            `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

