package controllers

import (
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
	"skeleton/pkg/registry"
)

type ShowAddCtrl struct{ base }

func (c *ShowAddCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	if err := c.authorize(r.Context(), rc, "add"); err != nil {
		return err
	}
	form, err := c.form(r, cfg, dispatch.CodeSaveAdd, "")
	if err != nil {
		return err
	}
	httpx.OK(w, form, "")
	return nil
}

func (b base) form(r *http.Request, cfg *registry.TokenConfig, code dispatch.ActionCode, id string) (Form, error) {
	cols, _, err := b.columns(r.Context(), cfg.Table)
	if err != nil {
		return Form{}, err
	}
	action, err := b.followUp(r.Context(), cfg, code, id)
	if err != nil {
		return Form{}, err
	}
	required := cfg.RequiredColumns()
	if required == nil {
		required = []string{}
	}
	return Form{Table: cfg.Table, Columns: cols, Required: required, Action: action}, nil
}

type SaveAddCtrl struct{ base }

func (c *SaveAddCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "add"); err != nil {
		return err
	}
	doc, err := readBody(r)
	if err != nil {
		return unprocessable(w, "Request body must be JSON.")
	}
	_, known, err := c.columns(ctx, cfg.Table)
	if err != nil {
		return err
	}
	values := valuesOf(doc)
	if msg := checkValues(values, known, cfg.RequiredColumns(), true); msg != "" {
		return unprocessable(w, msg)
	}
	rec, err := c.Data.Insert(ctx, cfg.Table, values)
	if err != nil {
		return err
	}
	c.logger().Info("record created", zap.String("table", cfg.Table), zap.String("user_id", rc.User.UserID))
	httpx.WriteJSON(w, http.StatusCreated, httpx.Envelope{Status: true, Data: rec, Message: "Record created."})
	return nil
}

// FormCtrl serves an edit form when the token names a record and an add
// form otherwise.
type FormCtrl struct{ base }

func (c *FormCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		if err := c.authorize(r.Context(), rc, "add"); err != nil {
			return err
		}
		form, err := c.form(r, cfg, dispatch.CodeSaveAdd, "")
		if err != nil {
			return err
		}
		httpx.OK(w, form, "")
		return nil
	}
	return showEdit(c.base, w, r, rc, cfg, id)
}

type ShowEditCtrl struct{ base }

func (c *ShowEditCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		return unprocessable(w, "Record id required.")
	}
	return showEdit(c.base, w, r, rc, cfg, id)
}

func showEdit(b base, w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext, cfg *registry.TokenConfig, id string) error {
	if err := b.authorize(r.Context(), rc, "edit"); err != nil {
		return err
	}
	rec, err := b.Data.Get(r.Context(), cfg.Table, keyColumn(cfg), id)
	if err != nil {
		return dataError(w, err)
	}
	form, err := b.form(r, cfg, dispatch.CodeSaveEdit, id)
	if err != nil {
		return err
	}
	form.Record = rec
	httpx.OK(w, form, "")
	return nil
}

func (c *ShowEditCtrl) Bulk(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	if err := c.authorize(r.Context(), rc, "edit"); err != nil {
		return err
	}
	doc, err := readBody(r)
	if err != nil {
		return unprocessable(w, "Request body must be JSON.")
	}
	ids := idsOf(doc, r)
	if len(ids) == 0 {
		return unprocessable(w, "Select at least one record.")
	}
	form, err := c.form(r, cfg, dispatch.CodeSaveEditBulk, "")
	if err != nil {
		return err
	}
	form.IDs = ids
	httpx.OK(w, form, "")
	return nil
}

type SaveEditCtrl struct{ base }

func (c *SaveEditCtrl) Index(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		return unprocessable(w, "Record id required.")
	}
	return c.save(w, r, rc, cfg, func(doc gjson.Result) []string { return []string{id} })
}

func (c *SaveEditCtrl) Bulk(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	return c.save(w, r, rc, cfg, func(doc gjson.Result) []string { return idsOf(doc, r) })
}

func (c *SaveEditCtrl) save(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext, cfg *registry.TokenConfig, targets func(gjson.Result) []string) error {
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "edit"); err != nil {
		return err
	}
	doc, err := readBody(r)
	if err != nil {
		return unprocessable(w, "Request body must be JSON.")
	}
	ids := targets(doc)
	if len(ids) == 0 {
		return unprocessable(w, "Select at least one record.")
	}
	_, known, err := c.columns(ctx, cfg.Table)
	if err != nil {
		return err
	}
	values := valuesOf(doc)
	if len(values) == 0 {
		return unprocessable(w, "Nothing to update.")
	}
	if msg := checkValues(values, known, cfg.RequiredColumns(), false); msg != "" {
		return unprocessable(w, msg)
	}
	n, err := c.Data.Update(ctx, cfg.Table, keyColumn(cfg), ids, values)
	if err != nil {
		return err
	}
	if n == 0 {
		return dataError(w, ErrRecordNotFound)
	}
	c.logger().Info("records updated", zap.String("table", cfg.Table), zap.Int64("count", n), zap.String("user_id", rc.User.UserID))
	httpx.OK(w, map[string]int64{"updated": n}, "Record updated.")
	return nil
}
