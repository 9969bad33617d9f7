package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mitchellh/mapstructure"
)

type registryDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres reads the registry tables directly; wrap it in Cached for request paths.
type Postgres struct {
	DB registryDB
}

func NewPostgres(db registryDB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Modules(ctx context.Context) ([]Module, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT module_id, name FROM system_modules
		WHERE is_active ORDER BY sort_order, module_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()
	out := []Module{}
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ModuleID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) Sections(ctx context.Context, moduleID int64) ([]Section, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT section_id, module_id, name FROM system_sections
		WHERE module_id=$1 AND is_active ORDER BY sort_order, section_id
	`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()
	out := []Section{}
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.SectionID, &s.ModuleID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) Items(ctx context.Context, sectionID int64) ([]Item, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT item_id, section_id, name FROM system_items
		WHERE section_id=$1 AND is_active ORDER BY sort_order, item_id
	`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ItemID, &it.SectionID, &it.Name); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) TokenDefinitions(ctx context.Context) ([]TokenDefinition, error) {
	rows, err := p.DB.Query(ctx, `SELECT key, module, tbl, system FROM system_token_definitions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query token definitions: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect token definitions: %w", err)
	}
	out := make([]TokenDefinition, 0, len(maps))
	for _, m := range maps {
		var def TokenDefinition
		if err := decodeRow(m, &def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (p *Postgres) ResolveToken(ctx context.Context, token string) (TokenConfig, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenConfig{}, ErrNotFound
	}
	rows, err := p.DB.Query(ctx, `
		SELECT token, key, tbl, system, act, record_id, validate, module, expires_at
		FROM system_tokens
		WHERE token=$1 AND (expires_at IS NULL OR expires_at > now())
	`, token)
	if err != nil {
		return TokenConfig{}, fmt.Errorf("query token: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenConfig{}, ErrNotFound
	}
	if err != nil {
		return TokenConfig{}, fmt.Errorf("collect token: %w", err)
	}
	var cfg TokenConfig
	if err := decodeRow(m, &cfg); err != nil {
		return TokenConfig{}, err
	}
	return cfg, nil
}

// InsertToken persists an issued token snapshot. A zero expiresAt never expires.
func (p *Postgres) InsertToken(ctx context.Context, cfg TokenConfig, expiresAt time.Time) error {
	var expires *time.Time
	if !expiresAt.IsZero() {
		expires = &expiresAt
	}
	_, err := p.DB.Exec(ctx, `
		INSERT INTO system_tokens (token, key, tbl, system, act, record_id, validate, module, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, cfg.Token, cfg.Key, cfg.Table, string(cfg.System), cfg.Act, cfg.ID, cfg.Validate, cfg.Module, expires)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func decodeRow(row map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("row decoder: %w", err)
	}
	if err := dec.Decode(row); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
