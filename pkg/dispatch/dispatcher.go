package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"skeleton/pkg/audit"
	"skeleton/pkg/auth"
	"skeleton/pkg/metrics"
	"skeleton/pkg/names"
	"skeleton/pkg/permission"
	"skeleton/pkg/ratelimit"
	"skeleton/pkg/registry"
	"skeleton/pkg/telemetry"
)

const (
	DefaultMaxAttempts = 100
	DefaultWindow      = 60 * time.Second
)

// AuditSink stores denied and failed attempts.
type AuditSink interface {
	Append(ctx context.Context, ev audit.Event) error
}

// Dispatcher is the catch-all handler. It turns one request into exactly
// one controller invocation or one typed error.
type Dispatcher struct {
	Registry    registry.Source
	Permissions permission.Checker
	Resolver    *Resolver
	Limiter     ratelimit.Limiter
	MaxAttempts int
	Window      time.Duration
	Audit       AuditSink
	Metrics     *metrics.Registry
	Logger      *zap.Logger
	Responder   Responder
	now         func() time.Time
}

// attempt collects what is known about a request as it moves through the
// pipeline, for logs and audit.
type attempt struct {
	user  auth.User
	path  string
	nav   NavPath
	token string
	perm  string
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "dispatch", attribute.String("http.path", r.URL.Path))
	defer span.End()
	r = r.WithContext(ctx)
	at := &attempt{path: r.URL.Path}
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err := newError(InternalError, fmt.Errorf("panic: %v", v))
			telemetry.Fail(span, err)
			d.fail(w, r, at, err)
		}
	}()
	if err := d.dispatch(w, r, at); err != nil {
		telemetry.Fail(span, err)
		d.fail(w, r, at, AsError(err))
		return
	}
	d.Metrics.DispatchOutcome("ok")
}

func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, at *attempt) error {
	ctx := r.Context()

	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return newError(Unauthenticated, nil)
	}
	at.user = user
	if strings.TrimSpace(user.UserID) == "" {
		return newError(InvalidUser, nil)
	}

	system := SystemFor(user)
	route := ParseRoute(r.URL.Path)
	at.nav = route.Nav
	at.token = route.Token

	if err := d.throttle(ctx, user); err != nil {
		return err
	}

	if route.Token == "" && !route.Legacy {
		if err := d.validate(ctx, user, route.Nav, at); err != nil {
			return err
		}
	}

	res, err := d.Resolver.Resolve(ctx, Target{
		System: system,
		Module: route.Nav.Module,
		Token:  route.Token,
		Legacy: route.Legacy,
	})
	if err != nil {
		return err
	}
	if route.Token != "" {
		at.nav.Module = res.Module
	}

	rc := RouteContext{
		System:   res.System,
		Module:   res.Module,
		Section:  route.Nav.Section,
		Item:     route.Nav.Item,
		Redirect: route.Redirect,
		Token:    route.Token,
		Config:   res.Config,
		User:     user,
	}
	if err := res.Handler(w, r, rc); err != nil {
		return err
	}
	d.logger().Debug("dispatched",
		zap.String("user_id", user.UserID),
		zap.String("path", at.path),
		zap.String("namespace", string(res.Namespace)),
		zap.String("controller", string(res.Controller)),
		zap.String("method", string(res.Method)),
	)
	return nil
}

// throttle counts the attempt and rejects it when earlier attempts in the
// window already reached the limit. Rejected attempts are counted too.
func (d *Dispatcher) throttle(ctx context.Context, user auth.User) error {
	if d.Limiter == nil {
		return nil
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}
	key := "dispatch:" + user.UserID
	blocked := d.Limiter.TooManyAttempts(ctx, key, maxAttempts)
	dec := d.Limiter.Hit(ctx, key, window)
	if !blocked {
		return nil
	}
	retry := dec.ResetAt.Sub(d.clock())
	if retry <= 0 {
		retry = time.Second
	}
	return &Error{Kind: RateLimited, RetryAfter: retry, Err: fmt.Errorf("%d attempts in window", dec.Count)}
}

// validate checks that each level of nav exists in the registry and that
// user may view it, top down.
func (d *Dispatcher) validate(ctx context.Context, user auth.User, nav NavPath, at *attempt) error {
	modules, err := d.Registry.Modules(ctx)
	if err != nil {
		return newError(InternalError, fmt.Errorf("load modules: %w", err))
	}
	var module *registry.Module
	for i := range modules {
		if names.Normalize(modules[i].Name) == nav.Module {
			module = &modules[i]
			break
		}
	}
	if module == nil {
		return newError(ModuleNotFound, nil)
	}
	if err := d.require(ctx, user, permission.View(nav.Module, "", ""), at); err != nil {
		return err
	}
	if nav.Section == "" {
		return nil
	}

	sections, err := d.Registry.Sections(ctx, module.ModuleID)
	if err != nil {
		return newError(InternalError, fmt.Errorf("load sections: %w", err))
	}
	var section *registry.Section
	for i := range sections {
		if names.Normalize(sections[i].Name) == nav.Section {
			section = &sections[i]
			break
		}
	}
	if section == nil {
		return newError(SectionNotFound, nil)
	}
	if err := d.require(ctx, user, permission.View(nav.Module, nav.Section, ""), at); err != nil {
		return err
	}
	if nav.Item == "" {
		return nil
	}

	items, err := d.Registry.Items(ctx, section.SectionID)
	if err != nil {
		return newError(InternalError, fmt.Errorf("load items: %w", err))
	}
	found := false
	for _, it := range items {
		if names.Normalize(it.Name) == nav.Item {
			found = true
			break
		}
	}
	if !found {
		return newError(ItemNotFound, nil)
	}
	return d.require(ctx, user, permission.View(nav.Module, nav.Section, nav.Item), at)
}

func (d *Dispatcher) require(ctx context.Context, user auth.User, perm string, at *attempt) error {
	at.perm = perm
	ok, err := d.Permissions.Has(ctx, perm, user)
	if err != nil {
		return newError(InternalError, fmt.Errorf("check %s: %w", perm, err))
	}
	if !ok {
		return &Error{Kind: PermissionDenied, Err: fmt.Errorf("missing %s", perm)}
	}
	return nil
}

func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, at *attempt, e *Error) {
	fields := []zap.Field{
		zap.String("kind", e.Kind.String()),
		zap.Int("status", e.Status()),
		zap.String("user_id", at.user.UserID),
		zap.String("business_id", at.user.BusinessID),
		zap.String("path", at.path),
		zap.String("module", at.nav.Module),
		zap.String("section", at.nav.Section),
		zap.String("item", at.nav.Item),
		zap.String("token", at.token),
	}
	if at.perm != "" {
		fields = append(fields, zap.String("permission", at.perm))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	level, msg := zapcore.WarnLevel, "dispatch denied"
	switch e.Kind {
	case MethodNotFound:
		level, msg = zapcore.ErrorLevel, "dispatch configuration error"
	case InternalError:
		level, msg = zapcore.ErrorLevel, "dispatch failed"
	}
	d.logger().Log(level, msg, fields...)
	d.Metrics.DispatchOutcome(e.Kind.String())

	if d.Audit != nil {
		ev := audit.Event{
			UserID:     at.user.UserID,
			BusinessID: at.user.BusinessID,
			Kind:       e.Kind.String(),
			Status:     e.Status(),
			Path:       at.path,
			Module:     at.nav.Module,
			Section:    at.nav.Section,
			Item:       at.nav.Item,
			Token:      at.token,
			Message:    e.Error(),
		}
		if err := d.Audit.Append(context.WithoutCancel(r.Context()), ev); err != nil {
			d.logger().Warn("audit append failed", zap.Error(err))
		}
	}
	d.Responder.Write(w, r, e)
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now().UTC()
}
