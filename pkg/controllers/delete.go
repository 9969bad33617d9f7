package controllers

import (
	"net/http"

	"go.uber.org/zap"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
)

// Delete confirms and performs single and bulk deletes. Single and Bulk
// answer with the records and a confirm action; DeleteSingle and
// DeleteBulk remove them.
type Delete struct{ base }

func (c *Delete) Single(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "delete"); err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		return unprocessable(w, "Record id required.")
	}
	rec, err := c.Data.Get(ctx, cfg.Table, keyColumn(cfg), id)
	if err != nil {
		return dataError(w, err)
	}
	action, err := c.followUp(ctx, cfg, dispatch.CodeDeleteSingle, id)
	if err != nil {
		return err
	}
	httpx.OK(w, map[string]any{"record": rec, "action": action}, "")
	return nil
}

func (c *Delete) DeleteSingle(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	if err := c.authorize(r.Context(), rc, "delete"); err != nil {
		return err
	}
	id := recordID(cfg)
	if id == "" {
		return unprocessable(w, "Record id required.")
	}
	return c.remove(w, r, rc, []string{id}, "Record deleted.")
}

func (c *Delete) Bulk(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	cfg, err := tokenConfig(rc)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := c.authorize(ctx, rc, "delete"); err != nil {
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
	recs, err := c.Data.GetMany(ctx, cfg.Table, keyColumn(cfg), ids)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []map[string]any{}
	}
	action, err := c.followUp(ctx, cfg, dispatch.CodeDeleteBulkSave, "")
	if err != nil {
		return err
	}
	httpx.OK(w, map[string]any{"records": recs, "ids": ids, "action": action}, "")
	return nil
}

func (c *Delete) DeleteBulk(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext) error {
	if _, err := tokenConfig(rc); err != nil {
		return err
	}
	if err := c.authorize(r.Context(), rc, "delete"); err != nil {
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
	return c.remove(w, r, rc, ids, "Records deleted.")
}

func (c *Delete) remove(w http.ResponseWriter, r *http.Request, rc dispatch.RouteContext, ids []string, msg string) error {
	cfg := rc.Config
	n, err := c.Data.Delete(r.Context(), cfg.Table, keyColumn(cfg), ids)
	if err != nil {
		return err
	}
	if n == 0 {
		return dataError(w, ErrRecordNotFound)
	}
	c.logger().Info("records deleted", zap.String("table", cfg.Table), zap.Int64("count", n), zap.String("user_id", rc.User.UserID))
	httpx.OK(w, map[string]int64{"deleted": n}, msg)
	return nil
}
