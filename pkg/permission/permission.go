package permission

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"skeleton/pkg/auth"
	"skeleton/pkg/store"
)

// Wildcard grants every permission.
const Wildcard = "*"

const generationKey = "permission:generation"

// Checker answers whether a user holds a permission string such as
// "view:Billing Reports::Invoices".
type Checker interface {
	Has(ctx context.Context, permission string, u auth.User) (bool, error)
}

type permissionDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres grants the union of a user's direct permissions and those of
// their roles within the current business. Per-user sets are cached until
// TTL passes or Reload is called.
type Postgres struct {
	DB     permissionDB
	Cache  store.Cache
	TTL    time.Duration
	Public map[string]struct{}
	gen    *store.Generation
}

func NewPostgres(db permissionDB, cache store.Cache, ttl time.Duration, public []string) *Postgres {
	if cache == nil {
		cache = store.NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	p := &Postgres{
		DB:     db,
		Cache:  cache,
		TTL:    ttl,
		Public: map[string]struct{}{},
		gen:    store.NewGeneration(cache, generationKey),
	}
	for _, perm := range public {
		if perm = strings.TrimSpace(perm); perm != "" {
			p.Public[perm] = struct{}{}
		}
	}
	return p
}

func (p *Postgres) Has(ctx context.Context, permission string, u auth.User) (bool, error) {
	if _, ok := p.Public[permission]; ok {
		return true, nil
	}
	if u.UserID == "" {
		return false, nil
	}
	perms, err := p.permissions(ctx, u)
	if err != nil {
		return false, err
	}
	_, exact := perms[permission]
	_, all := perms[Wildcard]
	return exact || all, nil
}

// Reload drops every cached permission set.
func (p *Postgres) Reload(ctx context.Context) error {
	_, err := p.gen.Rotate(ctx)
	return err
}

func (p *Postgres) permissions(ctx context.Context, u auth.User) (map[string]struct{}, error) {
	var cacheKey string
	if gen, err := p.gen.Current(ctx); err == nil {
		cacheKey = "permission:" + gen + ":" + u.BusinessID + ":" + u.UserID
		if raw, err := p.Cache.Get(ctx, cacheKey); err == nil {
			var list []string
			if json.Unmarshal([]byte(raw), &list) == nil {
				return toSet(list), nil
			}
		}
	}
	list, err := p.load(ctx, u)
	if err != nil {
		return nil, err
	}
	if cacheKey != "" {
		if raw, err := json.Marshal(list); err == nil {
			_ = p.Cache.Set(ctx, cacheKey, string(raw), p.TTL)
		}
	}
	return toSet(list), nil
}

func (p *Postgres) load(ctx context.Context, u auth.User) ([]string, error) {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	rows, err := p.DB.Query(ctx, `
		SELECT permission FROM user_permissions WHERE user_id=$1 AND business_id=$2
		UNION
		SELECT rp.permission FROM role_permissions rp
		JOIN user_roles ur ON ur.role = rp.role
		WHERE ur.user_id=$1 AND ur.business_id=$2
		UNION
		SELECT permission FROM role_permissions WHERE role = ANY($3)
	`, u.UserID, u.BusinessID, roles)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, p := range list {
		out[p] = struct{}{}
	}
	return out
}

// View builds the view permission for a navigation path. Empty section or
// item stop the chain.
func View(module, section, item string) string {
	perm := "view:" + module
	if section == "" {
		return perm
	}
	perm += "::" + section
	if item == "" {
		return perm
	}
	return perm + "::" + item
}
