package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skeleton/pkg/audit"
	"skeleton/pkg/auth"
	"skeleton/pkg/config"
	"skeleton/pkg/controllers"
	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
	"skeleton/pkg/metrics"
	"skeleton/pkg/permission"
	"skeleton/pkg/ratelimit"
	"skeleton/pkg/registry"
	"skeleton/pkg/reloadbus"
	"skeleton/pkg/store"
	"skeleton/pkg/stream"
	"skeleton/pkg/telemetry"
	"skeleton/pkg/tokens"
)

const (
	permManageSystem = "manage:system"
	permViewAudit    = "audit:view"
)

type app struct {
	cfg         config.Config
	logger      *zap.Logger
	metrics     *metrics.Registry
	permissions *permission.Postgres
	audit       *audit.Writer
	events      *stream.Hub
	dispatcher  *dispatch.Dispatcher

	// local reloads this node only; remote events and the schedule use it.
	local reloadbus.Group

	// publisher announces manual reloads to the other nodes.
	publisher *reloadbus.Publisher
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, db serverDB, redisClient *redis.Client, instance string) *app {
	cache := store.NewCache(ctx, redisClient, "skeleton:")
	src := registry.NewPostgres(db)
	cached := registry.NewCached(src, cache, cfg.RegistryCacheTTL)
	perms := permission.NewPostgres(db, cache, cfg.PermissionCacheTTL, cfg.PublicPermissions)
	m := metrics.NewRegistry()

	var limiter ratelimit.Limiter = ratelimit.NewInMemory()
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient)
	}

	ctrls := dispatch.NewControllers()
	mounter := controllers.NewMounter(ctrls, controllers.Deps{
		Data:        controllers.NewPgFacade(db),
		Registry:    cached,
		Permissions: perms,
		Tokens:      tokens.NewIssuer(src, cached),
		TokenTTL:    cfg.TokenTTL,
		Logger:      logger.Named("controllers"),
	}, cached)

	auditWriter := audit.NewWriter(db, cfg.AuditHashSalt, cfg.AuditRedact)
	events := stream.NewHub()
	d := &dispatch.Dispatcher{
		Registry:    cached,
		Permissions: perms,
		Resolver:    &dispatch.Resolver{Registry: cached, Tokens: cached, Controllers: ctrls},
		Limiter:     limiter,
		MaxAttempts: cfg.RateLimitMaxAttempts,
		Window:      cfg.RateLimitWindow,
		Audit:       stream.AuditFeed{Next: auditWriter, Hub: events},
		Metrics:     m,
		Logger:      logger.Named("dispatch"),
		Responder:   dispatch.Responder{Debug: cfg.Debug, LoginURL: cfg.LoginURL},
	}
	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		permissions: perms,
		audit:       auditWriter,
		events:      events,
		dispatcher:  d,
		local:       reloadbus.Group{cached, perms, mounter, stream.ReloadNotice{Hub: events, Instance: instance}},
	}
}

// Reload reloads this node and then tells the others.
func (a *app) Reload(ctx context.Context) error {
	return reloadbus.Group{a.local, a.publisher}.Reload(ctx)
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(httpx.CORSMiddleware(a.cfg.CORSAllowedOrigins))
	r.Use(a.metrics.Middleware)
	r.Use(telemetry.HTTPMiddleware("skeleton"))
	r.Use(httpx.LimitBody(a.cfg.MaxRequestBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "skeleton"})
	})
	r.Handle("/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.cfg.AuthSecret,
			auth.WithIssuer(a.cfg.AuthIssuer),
			auth.WithAudience(a.cfg.AuthAudience),
			auth.WithCookie(a.cfg.AuthCookie),
		))
		rs := a.dispatcher.Responder
		r.With(dispatch.RequirePermission(a.permissions, permManageSystem, rs, a.logger)).
			Post("/system/reload", (&dispatch.ReloadHandler{Reloader: a, Metrics: a.metrics, Logger: a.logger}).ServeHTTP)
		r.With(dispatch.RequirePermission(a.permissions, permViewAudit, rs, a.logger)).
			Get("/system/audit", audit.Handler(a.audit))
		r.With(dispatch.RequirePermission(a.permissions, permViewAudit, rs, a.logger)).
			Get("/system/events", stream.Handler(a.events, a.cfg.WSAllowedOrigins))
		r.Handle("/*", a.dispatcher)
	})
	return r
}
