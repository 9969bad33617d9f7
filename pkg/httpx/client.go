package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client sends JSON requests with a bearer token and retries transport
// failures, 429 and 5xx answers. When retries run out the last answer is
// returned as is.
type Client struct {
	HTTP       *http.Client
	Token      string
	Retries    int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (c Client) Do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.HTTP
	if rc.HTTPClient == nil {
		rc.HTTPClient = http.DefaultClient
	}
	rc.RetryMax = max(c.Retries, 0)
	rc.RetryWaitMin = c.RetryDelay
	rc.RetryWaitMax = 4 * c.RetryDelay
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if c.Logger != nil {
		rc.Logger = leveledLogger{c.Logger.Sugar()}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := rc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// leveledLogger routes retryablehttp's key/value logs into zap.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
