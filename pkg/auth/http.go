package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultCookieName = "skeleton_session"

// User is the authenticated caller. BusinessID is empty for central staff.
type User struct {
	UserID     string
	BusinessID string
	Roles      []string
}

type contextKey string

const userContextKey contextKey = "skeleton.user"

type Claims struct {
	BusinessID string   `json:"business_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type MiddlewareConfig struct {
	Issuer     string
	Audience   string
	CookieName string
	Leeway     time.Duration
}

type MiddlewareOption func(*MiddlewareConfig)

func WithIssuer(issuer string) MiddlewareOption {
	return func(cfg *MiddlewareConfig) {
		cfg.Issuer = strings.TrimSpace(issuer)
	}
}

func WithAudience(audience string) MiddlewareOption {
	return func(cfg *MiddlewareConfig) {
		cfg.Audience = strings.TrimSpace(audience)
	}
}

func WithCookie(name string) MiddlewareOption {
	return func(cfg *MiddlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.CookieName = name
		}
	}
}

func WithLeeway(d time.Duration) MiddlewareOption {
	return func(cfg *MiddlewareConfig) {
		cfg.Leeway = d
	}
}

// Middleware attaches the caller's User when the request carries a valid
// HS256 token. Requests without one pass through untouched so the handler
// decides how to answer.
func Middleware(secret string, options ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := MiddlewareConfig{CookieName: DefaultCookieName, Leeway: 30 * time.Second}
	for _, opt := range options {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r, cfg.CookieName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := Verify(raw, secret, cfg)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

func bearerToken(r *http.Request, cookieName string) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Verify parses an HS256 token and checks expiry plus the optional issuer
// and audience.
func Verify(raw, secret string, cfg MiddlewareConfig) (Claims, error) {
	if secret == "" {
		return Claims{}, errors.New("secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Sign issues an HS256 token for u valid for ttl.
func Sign(secret string, u User, ttl time.Duration, issuer, audience string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := Claims{
		BusinessID: u.BusinessID,
		Roles:      u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (c Claims) User() User {
	return User{
		UserID:     strings.TrimSpace(c.Subject),
		BusinessID: strings.TrimSpace(c.BusinessID),
		Roles:      c.Roles,
	}
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}

func HasAnyRole(u User, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	set := map[string]struct{}{}
	for _, r := range u.Roles {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	for _, rr := range required {
		if _, ok := set[strings.ToLower(strings.TrimSpace(rr))]; ok {
			return true
		}
	}
	return false
}
