package reloadbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Message struct {
	Value []byte
}

type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}

type Reloader interface {
	Reload(ctx context.Context) error
}

// Event is the payload published on the reload topic.
type Event struct {
	Instance string    `json:"instance"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Group reloads every member in order and joins their errors.
type Group []Reloader

func (g Group) Reload(ctx context.Context) error {
	var errs []error
	for _, r := range g {
		if r == nil {
			continue
		}
		if err := r.Reload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var readBackoff = 500 * time.Millisecond

// Listen applies reload events from c until ctx is done. Events published by
// this instance are skipped since the local reload already happened.
func Listen(ctx context.Context, c Consumer, instance string, r Reloader, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		msg, err := c.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("reload bus read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readBackoff):
			}
			continue
		}
		var evt Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Warn("reload bus decode error", zap.Error(err))
			continue
		}
		if evt.Instance != "" && evt.Instance == instance {
			continue
		}
		if err := r.Reload(ctx); err != nil {
			logger.Error("remote reload failed", zap.String("origin", evt.Instance), zap.Error(err))
			continue
		}
		logger.Info("remote reload applied", zap.String("origin", evt.Instance), zap.String("reason", evt.Reason))
	}
}
