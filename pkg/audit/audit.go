package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Event is one denied or failed dispatch attempt.
type Event struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	BusinessID string    `json:"business_id"`
	Kind       string    `json:"kind"`
	Status     int       `json:"status"`
	Path       string    `json:"path"`
	Module     string    `json:"module"`
	Section    string    `json:"section"`
	Item       string    `json:"item"`
	Token      string    `json:"token"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type Writer struct {
	DB       auditDB
	HashSalt []byte
	Redact   bool
	now      func() time.Time
}

func NewWriter(db auditDB, salt string, redact bool) *Writer {
	return &Writer{DB: db, HashSalt: []byte(salt), Redact: redact}
}

func (w *Writer) Append(ctx context.Context, ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = w.clock()
	}
	if w.Redact {
		ev = redactEvent(ev, w.HashSalt)
	}
	_, err := w.DB.Exec(ctx, `
		INSERT INTO dispatch_audit
		(event_id, user_id, business_id, kind, status, path, module, section, item, token, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, ev.EventID, ev.UserID, ev.BusinessID, ev.Kind, ev.Status, ev.Path, ev.Module, ev.Section, ev.Item, ev.Token, ev.Message, ev.CreatedAt)
	return err
}

// Recent lists the newest events, optionally for one user. With redaction
// on the user id is hashed before matching.
func (w *Writer) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const cols = `event_id::text, user_id, business_id, kind, status, path, module, section, item, token, message, created_at`
	var (
		rows pgx.Rows
		err  error
	)
	if userID != "" {
		if w.Redact {
			userID = hashString(userID, w.HashSalt)
		}
		rows, err = w.DB.Query(ctx, `SELECT `+cols+` FROM dispatch_audit WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	} else {
		rows, err = w.DB.Query(ctx, `SELECT `+cols+` FROM dispatch_audit ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.EventID, &ev.UserID, &ev.BusinessID, &ev.Kind, &ev.Status, &ev.Path, &ev.Module, &ev.Section, &ev.Item, &ev.Token, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (w *Writer) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now().UTC()
}
