package stream

import (
	"context"

	"skeleton/pkg/audit"
)

type AuditSink interface {
	Append(ctx context.Context, ev audit.Event) error
}

// Denial is the part of an audit event shown on the feed. User and token
// stay in the audit table.
type Denial struct {
	Kind   string `json:"kind"`
	Status int    `json:"status"`
	Path   string `json:"path"`
	Module string `json:"module,omitempty"`
}

// AuditFeed stores the event in Next and announces it on Hub. The event is
// announced even when storing fails.
type AuditFeed struct {
	Next AuditSink
	Hub  *Hub
}

func (f AuditFeed) Append(ctx context.Context, ev audit.Event) error {
	var err error
	if f.Next != nil {
		err = f.Next.Append(ctx, ev)
	}
	f.Hub.Publish(NewEvent(TypeDenied, Denial{Kind: ev.Kind, Status: ev.Status, Path: ev.Path, Module: ev.Module}))
	return err
}

// ReloadNotice announces that this node finished a reload. Place it last in
// a reload group.
type ReloadNotice struct {
	Hub      *Hub
	Instance string
}

func (n ReloadNotice) Reload(context.Context) error {
	n.Hub.Publish(NewEvent(TypeReload, map[string]string{"instance": n.Instance}))
	return nil
}
