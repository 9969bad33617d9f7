package reloadbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule runs r.Reload on a cron spec. Standard five-field specs and
// descriptors such as "@every 5m" are accepted. The caller starts and stops
// the returned cron.
func Schedule(spec string, r Reloader, timeout time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("reload schedule required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := r.Reload(ctx); err != nil {
			logger.Error("scheduled reload failed", zap.Error(err))
			return
		}
		logger.Debug("scheduled reload applied")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", spec, err)
	}
	return c, nil
}
