package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/registry"
)

var ErrUnknownKey = errors.New("unknown token key")

type Store interface {
	InsertToken(ctx context.Context, cfg registry.TokenConfig, expiresAt time.Time) error
}

type Definitions interface {
	TokenDefinitions(ctx context.Context) ([]registry.TokenDefinition, error)
}

// Request describes the action a new token grants.
type Request struct {
	Key      string
	Code     dispatch.ActionCode
	Act      string
	RecordID string
	Validate string
	TTL      time.Duration
}

// Issuer mints route tokens. Table, system and module are copied from the
// key's definition so a token can never point outside it.
type Issuer struct {
	Store       Store
	Definitions Definitions
	now         func() time.Time
}

func NewIssuer(store Store, defs Definitions) *Issuer {
	return &Issuer{Store: store, Definitions: defs}
}

func (i *Issuer) Issue(ctx context.Context, req Request) (registry.TokenConfig, error) {
	if _, ok := dispatch.Lookup(req.Code); !ok {
		return registry.TokenConfig{}, fmt.Errorf("issue token: unknown action code %q", req.Code)
	}
	defs, err := i.Definitions.TokenDefinitions(ctx)
	if err != nil {
		return registry.TokenConfig{}, fmt.Errorf("issue token: %w", err)
	}
	def, ok := registry.FindDefinition(defs, req.Key)
	if !ok {
		return registry.TokenConfig{}, fmt.Errorf("issue token: %w: %q", ErrUnknownKey, req.Key)
	}
	cfg := registry.TokenConfig{
		Key:      def.Key,
		Table:    def.Table,
		System:   def.System,
		Act:      orDefault(req.Act, "id"),
		Token:    NewToken(req.Code),
		Validate: orDefault(req.Validate, "0"),
		Module:   def.Module,
	}
	if rid := strings.TrimSpace(req.RecordID); rid != "" {
		cfg.ID = &rid
	}
	var expires time.Time
	if req.TTL > 0 {
		expires = i.clock().Add(req.TTL)
		cfg.ExpiresAt = &expires
	}
	if err := i.Store.InsertToken(ctx, cfg, expires); err != nil {
		return registry.TokenConfig{}, err
	}
	return cfg, nil
}

// NewToken returns four random 8-hex-digit fields followed by code.
func NewToken(code dispatch.ActionCode) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[0:8] + "_" + raw[8:16] + "_" + raw[16:24] + "_" + raw[24:32] + "_" + string(code)
}

// Path is the dispatcher route for token.
func Path(token string) string {
	return "/" + dispatch.ActionSegment + "/" + token
}

func (i *Issuer) clock() time.Time {
	if i.now != nil {
		return i.now()
	}
	return time.Now().UTC()
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
