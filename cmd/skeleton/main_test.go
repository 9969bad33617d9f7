package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skeleton/pkg/auth"
	"skeleton/pkg/config"
	"skeleton/pkg/reloadbus"
	"skeleton/pkg/store"
	"skeleton/pkg/telemetry"
)

type emptyRows struct{ done bool }

func (r *emptyRows) Close()                                       {}
func (r *emptyRows) Err() error                                   { return nil }
func (r *emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (r *emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *emptyRows) Next() bool                                   { return false }
func (r *emptyRows) Scan(dest ...any) error                       { return errors.New("no rows") }
func (r *emptyRows) Values() ([]any, error)                       { return nil, errors.New("no rows") }
func (r *emptyRows) RawValues() [][]byte                          { return nil }
func (r *emptyRows) Conn() *pgx.Conn                              { return nil }

// fakeDB answers every query with no rows.
type fakeDB struct {
	mu      sync.Mutex
	queries []string
	closed  bool
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	return &emptyRows{}, nil
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Close() { f.closed = true }

type blockingConsumer struct{}

func (blockingConsumer) ReadMessage(ctx context.Context) (reloadbus.Message, error) {
	<-ctx.Done()
	return reloadbus.Message{}, ctx.Err()
}

func (blockingConsumer) Close() error { return nil }

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() config.Config {
	return config.Config{
		Addr:                 ":0",
		Environment:          "test",
		AuthSecret:           testSecret,
		LoginURL:             "/login",
		RateLimitMaxAttempts: 100,
		RateLimitWindow:      time.Minute,
		PublicPermissions:    []string{"view:Dashboard"},
		MaxRequestBodyBytes:  1 << 20,
		ShutdownTimeout:      time.Second,
	}
}

func testOpeners(db *fakeDB, handler *http.Handler) openers {
	return openers{
		initTelemetry: func(context.Context, telemetry.Config, *zap.Logger) (func(context.Context) error, error) {
			return func(context.Context) error { return nil }, nil
		},
		openDB: func(context.Context, store.PostgresConfig) (serverDB, error) { return db, nil },
		openRedis: func(context.Context, store.RedisConfig) (*redis.Client, error) {
			return nil, errors.New("redis address not configured")
		},
		openBus: func(reloadbus.KafkaConfig, string) (reloadbus.Consumer, *reloadbus.Publisher, error) {
			return blockingConsumer{}, &reloadbus.Publisher{}, nil
		},
		listen: func(_ context.Context, server *http.Server, _ time.Duration) error {
			*handler = server.Handler
			return nil
		},
	}
}

func TestRunServerRoutes(t *testing.T) {
	db := &fakeDB{}
	var h http.Handler
	cfg := testConfig()
	cfg.KafkaBrokers = []string{"k:9092"}
	cfg.ReloadCron = "@every 1h"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runServer(ctx, cfg, zap.NewNop(), testOpeners(db, &h)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h == nil {
		t.Fatal("listen never received a handler")
	}
	if !db.closed {
		t.Fatal("db must be closed when the server stops")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "skeleton_http_requests_total") {
		t.Fatalf("metrics = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/system/reload", nil)
	req.Header.Set("Accept", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous reload = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/system/events", nil)
	req.Header.Set("Accept", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous event stream = %d", rr.Code)
	}

	token, err := auth.Sign(testSecret, auth.User{UserID: "u-1"}, time.Hour, "", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/system/reload", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("reload without manage:system = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/billing", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous browser dispatch = %d %q", rr.Code, rr.Header().Get("Location"))
	}

	req = httptest.NewRequest(http.MethodGet, "/billing", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "Module not found.") {
		t.Fatalf("unknown module = %d %s", rr.Code, rr.Body.String())
	}
}

func TestRunServerGuards(t *testing.T) {
	var h http.Handler
	cfg := testConfig()
	cfg.AuthSecret = ""
	if err := runServer(context.Background(), cfg, zap.NewNop(), testOpeners(&fakeDB{}, &h)); err == nil {
		t.Fatal("expected error without a JWT secret")
	}

	cfg = testConfig()
	cfg.Environment = "production"
	if err := runServer(context.Background(), cfg, zap.NewNop(), testOpeners(&fakeDB{}, &h)); err == nil || !strings.Contains(err.Error(), "strict production hardening") {
		t.Fatalf("expected hardening error, got %v", err)
	}

	o := testOpeners(&fakeDB{}, &h)
	o.openDB = func(context.Context, store.PostgresConfig) (serverDB, error) { return nil, errors.New("refused") }
	if err := runServer(context.Background(), testConfig(), zap.NewNop(), o); err == nil || !strings.Contains(err.Error(), "db: refused") {
		t.Fatalf("expected db error, got %v", err)
	}

	cfg = testConfig()
	cfg.ReloadCron = "every now and then"
	if err := runServer(context.Background(), cfg, zap.NewNop(), testOpeners(&fakeDB{}, &h)); err == nil {
		t.Fatal("expected cron error")
	}
}

func TestServeUntilDoneShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, server, time.Second) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestKafkaGroup(t *testing.T) {
	if got := kafkaGroup("", "abc"); got != "skeleton-abc" {
		t.Fatalf("got %q", got)
	}
	if got := kafkaGroup("edge", "abc"); got != "edge-abc" {
		t.Fatalf("got %q", got)
	}
}
