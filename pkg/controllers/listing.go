package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
)

const (
	defaultPerPage = 25
	maxPerPage     = 200
	optionLimit    = 100
)

type TableCtrl struct{ base }

func (c *TableCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	page, err := c.page(w, r, rc, defaultPerPage)
	if err != nil || page == nil {
		return err
	}
	httpx.OK(w, page, "")
	return nil
}

// page reads page/per_page/sort from the query. A nil page with a nil error
// means a response was already written.
func (b base) page(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext, perPageDefault int) (*Page, error) {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	if err := b.authorize(ctx, rc, "view"); err != nil {
		return nil, err
	}
	_, known, err := b.columns(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}
	order := keyColumn(cfg)
	if s := strings.TrimSpace(r.URL.Query().Get("sort")); s != "" {
		if _, ok := known[s]; !ok {
			return nil, unprocessable(w, fmt.Sprintf("Cannot sort by %s.", s))
		}
		order = s
	}
	perPage := queryInt(r, "per_page", perPageDefault, 1, maxPerPage)
	pageNo := queryInt(r, "page", 1, 1, 1<<20)
	p, err := b.Data.List(ctx, cfg.Table, ListQuery{OrderBy: order, Limit: perPage, Offset: (pageNo - 1) * perPage})
	if err != nil {
		return nil, err
	}
	if p.Rows == nil {
		p.Rows = []map[string]any{}
	}
	return &p, nil
}

// Card is one record in card layout.
type Card struct {
	ID     any            `json:"id"`
	Title  string         `json:"title"`
	Fields map[string]any `json:"fields"`
}

type CardCtrl struct{ base }

func (c *CardCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	page, err := c.page(w, r, rc, 12)
	if err != nil || page == nil {
		return err
	}
	key := keyColumn(rc.Config)
	cards := make([]Card, 0, len(page.Rows))
	for _, row := range page.Rows {
		cards = append(cards, Card{ID: row[key], Title: cardTitle(row, key), Fields: row})
	}
	httpx.OK(w, map[string]any{"cards": cards, "total": page.Total}, "")
	return nil
}

func cardTitle(row map[string]any, key string) string {
	for _, col := range []string{"name", "title", key} {
		if v, ok := row[col]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

type ViewCtrl struct{ base }

func (c *ViewCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	if err := c.authorize(r.Context(), rc, "view"); err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		return unprocessable(w, "Record id required.")
	}
	rec, err := c.Data.Get(r.Context(), cfg.Table, keyColumn(cfg), id)
	if err != nil {
		return dataError(w, err)
	}
	httpx.OK(w, rec, "")
	return nil
}

// SelectHelper lists value/label pairs for select inputs. The label column
// comes from ?label= and defaults to "name".
type SelectHelper struct{ base }

func (c *SelectHelper) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "view"); err != nil {
		return err
	}
	_, known, err := c.columns(ctx, cfg.Table)
	if err != nil {
		return err
	}
	label := strings.TrimSpace(r.URL.Query().Get("label"))
	if label == "" {
		label = "name"
	}
	if _, ok := known[label]; !ok {
		return unprocessable(w, fmt.Sprintf("Unknown field %s.", label))
	}
	opts, err := c.Data.Options(ctx, cfg.Table, keyColumn(cfg), label, optionLimit)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = []Option{}
	}
	httpx.OK(w, opts, "")
	return nil
}

// Unique reports whether ?value= is free in ?column=, ignoring the record
// the token names.
type Unique struct{ base }

func (c *Unique) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "view"); err != nil {
		return err
	}
	_, known, err := c.columns(ctx, cfg.Table)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	column := strings.TrimSpace(q.Get("column"))
	if _, ok := known[column]; !ok {
		return unprocessable(w, "A known column is required.")
	}
	exists, err := c.Data.Exists(ctx, cfg.Table, column, q.Get("value"), keyColumn(cfg), recordID(cfg))
	if err != nil {
		return err
	}
	httpx.OK(w, map[string]bool{"unique": !exists}, "")
	return nil
}
