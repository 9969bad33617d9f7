package hardening

import (
	"fmt"
	"strings"

	"skeleton/pkg/config"
)

const minSecretBytes = 32

// ValidateProduction refuses to start a production-like deployment with
// settings that are only acceptable for local development. It is a no-op
// outside production or when STRICT_PROD_SECURITY=false.
func ValidateProduction(service string, c config.Config) error {
	if !isProductionLikeEnv(c.Environment) {
		return nil
	}
	if !isTrue(c.StrictProdSecurity, true) {
		return nil
	}
	service = strings.TrimSpace(service)
	if service == "" {
		service = "service"
	}
	if c.Debug {
		return fmt.Errorf("%s: strict production hardening requires DEBUG=false", service)
	}
	if !c.Postgres.RequireTLS {
		return fmt.Errorf("%s: strict production hardening requires DATABASE_REQUIRE_TLS=true", service)
	}
	if strings.TrimSpace(c.Redis.Addr) != "" {
		if !c.Redis.RequireTLS {
			return fmt.Errorf("%s: strict production hardening requires REDIS_REQUIRE_TLS=true", service)
		}
		if c.Redis.TLS.Insecure || c.Redis.TLS.AllowInsecure {
			return fmt.Errorf("%s: strict production hardening forbids REDIS_TLS_INSECURE/REDIS_ALLOW_INSECURE_TLS", service)
		}
	}
	if len(strings.TrimSpace(c.AuthSecret)) < minSecretBytes {
		return fmt.Errorf("%s: strict production hardening requires AUTH_JWT_SECRET of at least %d bytes", service, minSecretBytes)
	}
	if c.AuditRedact && strings.TrimSpace(c.AuditHashSalt) == "" {
		return fmt.Errorf("%s: strict production hardening requires AUDIT_HASH_SALT when AUDIT_REDACT=true", service)
	}
	return validateCORSOrigins(c.CORSAllowedOrigins, service)
}

func validateCORSOrigins(raw, service string) error {
	validCount := 0
	for _, origin := range strings.Split(raw, ",") {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		validCount++
		lower := strings.ToLower(o)
		if lower == "*" {
			return fmt.Errorf("%s: strict production hardening forbids CORS wildcard origin", service)
		}
		if strings.HasPrefix(lower, "http://localhost") || strings.HasPrefix(lower, "https://localhost") || strings.HasPrefix(lower, "http://127.0.0.1") || strings.HasPrefix(lower, "https://127.0.0.1") {
			return fmt.Errorf("%s: strict production hardening forbids localhost CORS origin %q", service, o)
		}
		if !strings.HasPrefix(lower, "https://") {
			return fmt.Errorf("%s: strict production hardening requires HTTPS CORS origin, got %q", service, o)
		}
	}
	if validCount == 0 {
		return fmt.Errorf("%s: strict production hardening requires explicit CORS_ALLOWED_ORIGINS", service)
	}
	return nil
}

func isTrue(raw string, def bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	return strings.EqualFold(trimmed, "true")
}

func isProductionLikeEnv(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}
