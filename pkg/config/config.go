package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"skeleton/pkg/logging"
	"skeleton/pkg/store"
	"skeleton/pkg/telemetry"
)

type Config struct {
	Addr               string
	Environment        string
	StrictProdSecurity string
	Debug              bool

	Postgres store.PostgresConfig
	Redis    store.RedisConfig
	Logging  logging.Config
	OTel     telemetry.Config

	AuthSecret   string
	AuthIssuer   string
	AuthAudience string
	AuthCookie   string
	LoginURL     string

	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration
	RegistryCacheTTL     time.Duration
	PermissionCacheTTL   time.Duration
	PublicPermissions    []string
	TokenTTL             time.Duration

	ReloadCron       string
	KafkaBrokers     []string
	KafkaReloadTopic string
	KafkaGroupID     string

	CORSAllowedOrigins  string
	WSAllowedOrigins    []string
	MaxRequestBodyBytes int64
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownTimeout     time.Duration

	AuditHashSalt string
	AuditRedact   bool
}

// Load reads the optional dotenv files (".env" when none are given) and then
// the process environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := Config{
		Addr:               env("ADDR", ":8080"),
		Environment:        env("ENVIRONMENT", "development"),
		StrictProdSecurity: env("STRICT_PROD_SECURITY", ""),
		Debug:              envBool("DEBUG", false),
		Postgres: store.PostgresConfig{
			URL:            databaseURL(),
			RequireTLS:     envBool("DATABASE_REQUIRE_TLS", false),
			MaxConns:       int32(envInt("DATABASE_MAX_CONNS", 10)),
			ConnectRetries: envInt("DATABASE_CONNECT_RETRIES", 5),
			RetryDelay:     envDurationMS("DATABASE_RETRY_DELAY_MS", 1000),
		},
		Redis: store.RedisConfig{
			Addr:       env("REDIS_ADDR", ""),
			Password:   env("REDIS_PASSWORD", ""),
			DB:         envInt("REDIS_DB", 0),
			RequireTLS: envBool("REDIS_REQUIRE_TLS", false),
			TLS: store.RedisTLS{
				Enabled:       envBool("REDIS_TLS", false),
				Insecure:      envBool("REDIS_TLS_INSECURE", false),
				AllowInsecure: envBool("REDIS_ALLOW_INSECURE_TLS", false),
				ServerName:    env("REDIS_TLS_SERVER_NAME", ""),
				CACertFile:    env("REDIS_TLS_CA_FILE", ""),
				CertFile:      env("REDIS_TLS_CERT_FILE", ""),
				KeyFile:       env("REDIS_TLS_KEY_FILE", ""),
			},
		},
		Logging: logging.Config{
			Level:       env("LOG_LEVEL", "info"),
			File:        env("LOG_FILE", ""),
			MaxSizeMB:   envInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups:  envInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays:  envInt("LOG_MAX_AGE_DAYS", 28),
			Compress:    envBool("LOG_COMPRESS", true),
			Development: envBool("DEBUG", false),
		},
		OTel: telemetry.Config{
			ServiceName: env("OTEL_SERVICE_NAME", "skeleton"),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     env("OTEL_EXPORTER_OTLP_HEADERS", ""),
			Timeout:     envDurationSec("OTEL_EXPORTER_OTLP_TIMEOUT_SEC", 5),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			Required:    envBool("OTEL_REQUIRED", false),
			Sampler:     env("OTEL_TRACES_SAMPLER", ""),
			SamplerArg:  env("OTEL_TRACES_SAMPLER_ARG", ""),
		},
		AuthSecret:           env("AUTH_JWT_SECRET", ""),
		AuthIssuer:           env("AUTH_ISSUER", ""),
		AuthAudience:         env("AUTH_AUDIENCE", ""),
		AuthCookie:           env("AUTH_COOKIE", "skeleton_session"),
		LoginURL:             env("LOGIN_URL", "/login"),
		RateLimitMaxAttempts: envInt("RATE_LIMIT_MAX_ATTEMPTS", 100),
		RateLimitWindow:      envDurationSec("RATE_LIMIT_WINDOW_SEC", 60),
		RegistryCacheTTL:     envDurationSec("REGISTRY_CACHE_TTL_SEC", 300),
		PermissionCacheTTL:   envDurationSec("PERMISSION_CACHE_TTL_SEC", 60),
		PublicPermissions:    envList("PUBLIC_PERMISSIONS", "view:Dashboard"),
		TokenTTL:             envDurationSec("TOKEN_TTL_SEC", 3600),
		ReloadCron:           env("RELOAD_CRON", ""),
		KafkaBrokers:         envList("KAFKA_BROKERS", ""),
		KafkaReloadTopic:     env("KAFKA_RELOAD_TOPIC", "skeleton.reload"),
		KafkaGroupID:         env("KAFKA_GROUP_ID", ""),
		CORSAllowedOrigins:   env("CORS_ALLOWED_ORIGINS", ""),
		WSAllowedOrigins:     envList("WS_ALLOWED_ORIGINS", ""),
		MaxRequestBodyBytes:  int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		ReadHeaderTimeout:    envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:          envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:         envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:          envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 60),
		ShutdownTimeout:      envDurationSec("HTTP_SHUTDOWN_TIMEOUT_SEC", 10),
		AuditHashSalt:        env("AUDIT_HASH_SALT", ""),
		AuditRedact:          envBool("AUDIT_REDACT", false),
	}
	if cfg.RateLimitMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS must be positive, got %d", cfg.RateLimitMaxAttempts)
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW_SEC must be positive")
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// discrete DATABASE_* settings.
func databaseURL() string {
	if v := env("DATABASE_URL", ""); v != "" {
		return v
	}
	host := env("DATABASE_HOST", "")
	if host == "" {
		return ""
	}
	return store.PostgresURL(
		env("DATABASE_USER", "skeleton"),
		env("DATABASE_PASSWORD", ""),
		host,
		env("DATABASE_PORT", "5432"),
		env("DATABASE_NAME", "skeleton"),
		env("DATABASE_SSLMODE", "disable"),
	)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func envDurationMS(k string, def int) time.Duration {
	return time.Millisecond * time.Duration(envInt(k, def))
}

func envList(k, def string) []string {
	var out []string
	for _, part := range strings.Split(env(k, def), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
