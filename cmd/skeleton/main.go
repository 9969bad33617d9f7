package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skeleton/pkg/config"
	"skeleton/pkg/hardening"
	"skeleton/pkg/logging"
	"skeleton/pkg/reloadbus"
	"skeleton/pkg/store"
	"skeleton/pkg/telemetry"
)

type serverDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type initTelemetryFunc func(ctx context.Context, cfg telemetry.Config, logger *zap.Logger) (func(context.Context) error, error)
type openDBFunc func(ctx context.Context, pc store.PostgresConfig) (serverDB, error)
type openRedisFunc func(ctx context.Context, cfg store.RedisConfig) (*redis.Client, error)
type openBusFunc func(cfg reloadbus.KafkaConfig, instance string) (reloadbus.Consumer, *reloadbus.Publisher, error)
type listenFunc func(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error

// openers groups the side-effecting constructors so tests can swap them.
type openers struct {
	initTelemetry initTelemetryFunc
	openDB        openDBFunc
	openRedis     openRedisFunc
	openBus       openBusFunc
	listen        listenFunc
}

var defaultOpeners = openers{
	initTelemetry: telemetry.Init,
	openDB: func(ctx context.Context, pc store.PostgresConfig) (serverDB, error) {
		return store.NewPostgresPool(ctx, pc)
	},
	openRedis: store.NewRedis,
	openBus:   openKafkaBus,
	listen:    serveUntilDone,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skeleton: config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skeleton: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, cfg, logger, defaultOpeners); err != nil {
		logger.Fatal("skeleton stopped", zap.Error(err))
	}
}

func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger, o openers) error {
	if err := hardening.ValidateProduction("skeleton", cfg); err != nil {
		return err
	}
	if cfg.AuthSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if o.listen == nil {
		return errors.New("listen function required")
	}
	shutdown, err := o.initTelemetry(ctx, cfg.OTel, logger)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	db, err := o.openDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()

	redisClient, err := o.openRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache and limits", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	instance := uuid.NewString()
	a := newApp(ctx, cfg, logger, db, redisClient, instance)
	if err := a.local.Reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	if len(cfg.KafkaBrokers) > 0 && o.openBus != nil {
		consumer, publisher, err := o.openBus(reloadbus.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaReloadTopic,
			GroupID: kafkaGroup(cfg.KafkaGroupID, instance),
		}, instance)
		if err != nil {
			return fmt.Errorf("reload bus: %w", err)
		}
		defer consumer.Close()
		defer publisher.Close()
		a.publisher = publisher
		go reloadbus.Listen(ctx, consumer, instance, a.local, logger)
	}
	if cfg.ReloadCron != "" {
		c, err := reloadbus.Schedule(cfg.ReloadCron, a.local, 30*time.Second, logger)
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	logger.Info("skeleton listening", zap.String("addr", cfg.Addr), zap.String("instance", instance))
	return o.listen(ctx, server, cfg.ShutdownTimeout)
}

// kafkaGroup gives every instance its own consumer group so each one sees
// every reload event.
func kafkaGroup(prefix, instance string) string {
	if prefix == "" {
		prefix = "skeleton"
	}
	return prefix + "-" + instance
}

func openKafkaBus(cfg reloadbus.KafkaConfig, instance string) (reloadbus.Consumer, *reloadbus.Publisher, error) {
	consumer, err := reloadbus.NewKafkaConsumer(cfg)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := reloadbus.NewPublisher(cfg, instance)
	if err != nil {
		_ = consumer.Close()
		return nil, nil, err
	}
	return consumer, publisher, nil
}

func serveUntilDone(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
