package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows serves canned rows to pgx helpers and Scan loops.
type fakeRows struct {
	cols []string
	data [][]any
	idx  int
	err  error
}

func newFakeRows(cols []string, data ...[]any) *fakeRows {
	return &fakeRows{cols: cols, data: data, idx: -1}
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan arity mismatch: got=%d want=%d", len(dest), len(row))
	}
	for i, d := range dest {
		rv := reflect.ValueOf(d)
		if rv.Kind() != reflect.Pointer {
			return fmt.Errorf("scan target %d is not a pointer", i)
		}
		val := reflect.ValueOf(row[i])
		if !val.Type().AssignableTo(rv.Elem().Type()) {
			return fmt.Errorf("cannot assign %T to %T", row[i], d)
		}
		rv.Elem().Set(val)
	}
	return nil
}

type fakeRegistryDB struct {
	rows     map[string]*fakeRows
	queryErr error
	queries  []string
	args     [][]any
	execs    [][]any
}

func (f *fakeRegistryDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	for marker, rows := range f.rows {
		if strings.Contains(sql, marker) {
			return rows, nil
		}
	}
	return newFakeRows(nil), nil
}

func (f *fakeRegistryDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// countingStore counts loads so cache behaviour can be asserted.
type countingStore struct {
	modules  []Module
	sections map[int64][]Section
	items    map[int64][]Item
	defs     []TokenDefinition
	tokens   map[string]TokenConfig
	calls    map[string]int
	fail     error
}

func newCountingStore() *countingStore {
	return &countingStore{
		sections: map[int64][]Section{},
		items:    map[int64][]Item{},
		tokens:   map[string]TokenConfig{},
		calls:    map[string]int{},
	}
}

func (s *countingStore) Modules(ctx context.Context) ([]Module, error) {
	s.calls["modules"]++
	return s.modules, s.fail
}

func (s *countingStore) Sections(ctx context.Context, moduleID int64) ([]Section, error) {
	s.calls["sections"]++
	return s.sections[moduleID], s.fail
}

func (s *countingStore) Items(ctx context.Context, sectionID int64) ([]Item, error) {
	s.calls["items"]++
	return s.items[sectionID], s.fail
}

func (s *countingStore) TokenDefinitions(ctx context.Context) ([]TokenDefinition, error) {
	s.calls["defs"]++
	return s.defs, s.fail
}

func (s *countingStore) ResolveToken(ctx context.Context, token string) (TokenConfig, error) {
	s.calls["token"]++
	if s.fail != nil {
		return TokenConfig{}, s.fail
	}
	cfg, ok := s.tokens[token]
	if !ok {
		return TokenConfig{}, ErrNotFound
	}
	return cfg, nil
}

var errBoom = errors.New("boom")
