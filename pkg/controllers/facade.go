package controllers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
)

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type ListQuery struct {
	OrderBy string
	Limit   int
	Offset  int
}

type Page struct {
	Rows   []map[string]any `json:"rows"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Facade is the table-agnostic data access the generic controllers need.
// Table and column names come from token configuration, never from the
// request, and are quoted by the implementation.
type Facade interface {
	Columns(ctx context.Context, table string) ([]Column, error)
	List(ctx context.Context, table string, q ListQuery) (Page, error)
	Get(ctx context.Context, table, key, id string) (map[string]any, error)
	GetMany(ctx context.Context, table, key string, ids []string) ([]map[string]any, error)
	Insert(ctx context.Context, table string, values map[string]any) (map[string]any, error)
	Update(ctx context.Context, table, key string, ids []string, values map[string]any) (int64, error)
	Delete(ctx context.Context, table, key string, ids []string) (int64, error)
	Exists(ctx context.Context, table, column, value, key, exceptID string) (bool, error)
	Options(ctx context.Context, table, valueCol, labelCol string, limit int) ([]Option, error)
}

type facadeDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgFacade struct {
	DB facadeDB
}

func NewPgFacade(db facadeDB) *PgFacade {
	return &PgFacade{DB: db}
}

func (f *PgFacade) Columns(ctx context.Context, table string) ([]Column, error) {
	schema, name, err := splitTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := f.DB.Query(ctx, `
		SELECT column_name AS name, data_type AS type, is_nullable = 'YES' AS nullable
		FROM information_schema.columns
		WHERE table_schema=$1 AND table_name=$2
		ORDER BY ordinal_position
	`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowToStructByName[Column])
	if err != nil {
		return nil, fmt.Errorf("collect columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

func (f *PgFacade) List(ctx context.Context, table string, q ListQuery) (Page, error) {
	t, err := tableIdent(table)
	if err != nil {
		return Page{}, err
	}
	rows, err := f.DB.Query(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY %s LIMIT $1 OFFSET $2`, t, ident(q.OrderBy)), q.Limit, q.Offset)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", table, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return Page{}, fmt.Errorf("collect %s: %w", table, err)
	}
	rows, err = f.DB.Query(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, t))
	if err != nil {
		return Page{}, fmt.Errorf("count %s: %w", table, err)
	}
	total, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return Page{}, fmt.Errorf("collect count %s: %w", table, err)
	}
	return Page{Rows: records, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (f *PgFacade) Get(ctx context.Context, table, key, id string) (map[string]any, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}
	rows, err := f.DB.Query(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE %s::text = $1 LIMIT 1`, t, ident(key)), id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table, err)
	}
	return rec, nil
}

func (f *PgFacade) GetMany(ctx context.Context, table, key string, ids []string) ([]map[string]any, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}
	k := ident(key)
	rows, err := f.DB.Query(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE %s::text = ANY($1) ORDER BY %s`, t, k, k), ids)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table, err)
	}
	return recs, nil
}

func (f *PgFacade) Insert(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}
	cols, args := sortedValues(values)
	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf(`INSERT INTO %s DEFAULT VALUES RETURNING *`, t)
	} else {
		quoted := make([]string, len(cols))
		holders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = ident(c)
			holders[i] = fmt.Sprintf("$%d", i+1)
		}
		sql = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`, t, strings.Join(quoted, ", "), strings.Join(holders, ", "))
	}
	rows, err := f.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return rec, nil
}

func (f *PgFacade) Update(ctx context.Context, table, key string, ids []string, values map[string]any) (int64, error) {
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	cols, args := sortedValues(values)
	if len(cols) == 0 {
		return 0, fmt.Errorf("update %s: no values", table)
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s=$%d", ident(c), i+1)
	}
	args = append(args, ids)
	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE %s::text = ANY($%d)`, t, strings.Join(sets, ", "), ident(key), len(args))
	tag, err := f.DB.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (f *PgFacade) Delete(ctx context.Context, table, key string, ids []string) (int64, error) {
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	tag, err := f.DB.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s::text = ANY($1)`, t, ident(key)), ids)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (f *PgFacade) Exists(ctx context.Context, table, column, value, key, exceptID string) (bool, error) {
	t, err := tableIdent(table)
	if err != nil {
		return false, err
	}
	rows, err := f.DB.Query(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE %s::text = $1 AND ($2::text = '' OR %s::text <> $2::text)
		)
	`, t, ident(column), ident(key)), value, exceptID)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	found, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return found, nil
}

func (f *PgFacade) Options(ctx context.Context, table, valueCol, labelCol string, limit int) ([]Option, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}
	rows, err := f.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s::text AS value, %s::text AS label FROM %s ORDER BY label LIMIT $1
	`, ident(valueCol), ident(labelCol), t), limit)
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", table, err)
	}
	opts, err := pgx.CollectRows(rows, pgx.RowToStructByName[Option])
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", table, err)
	}
	return opts, nil
}

// splitTable accepts "table" or "schema.table"; the schema defaults to public.
func splitTable(table string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
		}
	}
	switch len(parts) {
	case 1:
		return "public", parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}

func tableIdent(table string) (string, error) {
	schema, name, err := splitTable(table)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{schema, name}.Sanitize(), nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func sortedValues(values map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args
}
