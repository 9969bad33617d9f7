package reloadbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingReloader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingReloader) Reload(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingReloader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeConsumer struct {
	messages []Message
	errs     []error
	cancel   context.CancelFunc
}

func (f *fakeConsumer) ReadMessage(ctx context.Context) (Message, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Message{}, err
	}
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		return msg, nil
	}
	f.cancel()
	<-ctx.Done()
	return Message{}, ctx.Err()
}

func (f *fakeConsumer) Close() error { return nil }

func event(t *testing.T, instance string) Message {
	t.Helper()
	body, err := json.Marshal(Event{Instance: instance, Reason: "manual", At: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Message{Value: body}
}

func TestGroupReloadsAllAndJoinsErrors(t *testing.T) {
	a := &countingReloader{}
	b := &countingReloader{err: errors.New("b down")}
	c := &countingReloader{}
	err := Group{a, nil, b, c}.Reload(context.Background())
	if err == nil || err.Error() != "b down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.count() != 1 || b.count() != 1 || c.count() != 1 {
		t.Fatalf("every member must reload: %d %d %d", a.count(), b.count(), c.count())
	}
	if err := (Group{}).Reload(context.Background()); err != nil {
		t.Fatalf("empty group: %v", err)
	}
}

func TestListenSkipsOwnEventsAndBadPayloads(t *testing.T) {
	old := readBackoff
	readBackoff = time.Millisecond
	t.Cleanup(func() { readBackoff = old })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, logs := observer.New(zapcore.DebugLevel)
	consumer := &fakeConsumer{
		errs: []error{errors.New("broker away")},
		messages: []Message{
			event(t, "self"),
			{Value: []byte("not json")},
			event(t, "node-b"),
			event(t, ""),
		},
		cancel: cancel,
	}
	r := &countingReloader{}
	done := make(chan struct{})
	go func() {
		Listen(ctx, consumer, "self", r, zap.New(core))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not stop")
	}
	if r.count() != 2 {
		t.Fatalf("expected 2 reloads, got %d", r.count())
	}
	if logs.FilterMessage("reload bus read error").Len() != 1 {
		t.Fatal("expected read error log")
	}
	if logs.FilterMessage("reload bus decode error").Len() != 1 {
		t.Fatal("expected decode error log")
	}
	if logs.FilterMessage("remote reload applied").Len() != 2 {
		t.Fatal("expected two applied logs")
	}
}

func TestListenLogsReloadFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, logs := observer.New(zapcore.InfoLevel)
	consumer := &fakeConsumer{messages: []Message{event(t, "node-b")}, cancel: cancel}
	Listen(ctx, consumer, "self", &countingReloader{err: errors.New("db gone")}, zap.New(core))
	entries := logs.FilterMessage("remote reload failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["origin"] != "node-b" {
		t.Fatalf("expected failure log with origin, got %+v", entries)
	}
}
