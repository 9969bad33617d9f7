// Package controllers holds the generic controllers that the dispatch table
// names. Each one works against whichever table the route token points at.
package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
	"skeleton/pkg/permission"
	"skeleton/pkg/registry"
	"skeleton/pkg/tokens"
)

type TokenIssuer interface {
	Issue(ctx context.Context, req tokens.Request) (registry.TokenConfig, error)
}

// Deps is shared by every controller. Permissions and Tokens are optional:
// without a checker token routes are not re-checked, and without an issuer
// responses carry no follow-up action paths.
type Deps struct {
	Data        Facade
	Registry    registry.Source
	Permissions permission.Checker
	Tokens      TokenIssuer
	TokenTTL    time.Duration
	Logger      *zap.Logger
}

// Form describes what a client needs to render an add or edit form.
type Form struct {
	Table    string         `json:"table"`
	Columns  []Column       `json:"columns"`
	Required []string       `json:"required"`
	Record   map[string]any `json:"record,omitempty"`
	IDs      []string       `json:"ids,omitempty"`
	Action   string         `json:"action,omitempty"`
}

type base struct {
	Deps
}

func (b base) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// authorize checks "<verb>:<module>" for token routes, which skip the
// dispatcher's path permission checks.
func (b base) authorize(ctx context.Context, rc dispatch.RouteContext, verb string) error {
	if b.Permissions == nil {
		return nil
	}
	perm := verb + ":" + rc.Module
	ok, err := b.Permissions.Has(ctx, perm, rc.User)
	if err != nil {
		return fmt.Errorf("check %s: %w", perm, err)
	}
	if !ok {
		return &dispatch.Error{Kind: dispatch.PermissionDenied, Err: fmt.Errorf("missing %s", perm)}
	}
	return nil
}

func (b base) followUp(ctx context.Context, cfg *registry.TokenConfig, code dispatch.ActionCode, recordID string) (string, error) {
	if b.Tokens == nil {
		return "", nil
	}
	issued, err := b.Tokens.Issue(ctx, tokens.Request{
		Key:      cfg.Key,
		Code:     code,
		Act:      cfg.Act,
		RecordID: recordID,
		Validate: cfg.Validate,
		TTL:      b.TokenTTL,
	})
	if err != nil {
		return "", fmt.Errorf("follow-up %s token: %w", code, err)
	}
	return tokens.Path(issued.Token), nil
}

// columns returns the table's columns and a name index.
func (b base) columns(ctx context.Context, table string) ([]Column, map[string]Column, error) {
	cols, err := b.Data.Columns(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	idx := make(map[string]Column, len(cols))
	for _, c := range cols {
		idx[c.Name] = c
	}
	return cols, idx, nil
}

func tokenConfig(rc dispatch.RouteContext) (*registry.TokenConfig, error) {
	if rc.Config == nil || strings.TrimSpace(rc.Config.Table) == "" {
		return nil, &dispatch.Error{Kind: dispatch.TokenInvalid, Err: errors.New("route carries no token configuration")}
	}
	return rc.Config, nil
}

func keyColumn(cfg *registry.TokenConfig) string {
	if k := strings.TrimSpace(cfg.Act); k != "" {
		return k
	}
	return "id"
}

func recordID(cfg *registry.TokenConfig) string {
	if cfg.ID == nil {
		return ""
	}
	return strings.TrimSpace(*cfg.ID)
}

// readBody parses a JSON request body. An empty body is an empty document.
func readBody(r *http.Request) (gjson.Result, error) {
	if r.Body == nil {
		return gjson.Result{}, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("request body is not valid JSON")
	}
	return gjson.ParseBytes(body), nil
}

// valuesOf reads {"values": {...}} or, failing that, the top-level object.
func valuesOf(doc gjson.Result) map[string]any {
	v := doc.Get("values")
	if !v.Exists() {
		v = doc
	}
	out := map[string]any{}
	if !v.IsObject() {
		return out
	}
	v.ForEach(func(k, val gjson.Result) bool {
		if k.String() != "ids" {
			out[k.String()] = val.Value()
		}
		return true
	})
	return out
}

// idsOf reads "ids" from the body, then from repeated or comma separated
// query parameters.
func idsOf(doc gjson.Result, r *http.Request) []string {
	var out []string
	for _, v := range doc.Get("ids").Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, raw := range r.URL.Query()["ids"] {
		for _, part := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// checkValues rejects unknown columns and, when strict, missing required
// ones. Without strict only required columns that are present must be
// non-empty.
func checkValues(values map[string]any, known map[string]Column, required []string, strict bool) string {
	for k := range values {
		if _, ok := known[k]; !ok {
			return fmt.Sprintf("Unknown field %s.", k)
		}
	}
	for _, col := range required {
		v, present := values[col]
		if !present && !strict {
			continue
		}
		if isBlank(v) {
			return fmt.Sprintf("The %s field is required.", col)
		}
	}
	return ""
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

func unprocessable(w http.ResponseWriter, msg string) error {
	httpx.Error(w, http.StatusUnprocessableEntity, msg)
	return nil
}

// dataError answers missing records itself and hands anything else back to
// the dispatcher.
func dataError(w http.ResponseWriter, err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		httpx.Error(w, http.StatusNotFound, "Record not found.")
		return nil
	}
	return err
}
