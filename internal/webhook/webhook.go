// Package webhook notifies an external URL when a build reaches a terminal
// outcome, grounded on the teacher's internal/pkg/notify/channel's generic
// WebhookChannel (POST a JSON payload via resty, no auth by default).
package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/go-arcade/cadflight/internal/taskrun"
	"github.com/go-arcade/cadflight/pkg/log"
)

// Config is the webhook notifier's configuration. An empty URL disables
// notification entirely.
type Config struct {
	URL     string
	Method  string
	Timeout time.Duration
}

// Payload is the JSON body POSTed on every terminal outcome.
type Payload struct {
	Endpoint  string `json:"endpoint"`
	Assembly  string `json:"assembly"`
	Key       string `json:"key"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier POSTs Payloads to a configured URL. The zero value is not
// usable; construct with New, or treat a nil *Notifier as disabled.
type Notifier struct {
	client *resty.Client
	url    string
	method string
}

// New returns a Notifier for cfg, or (nil) if cfg.URL is empty.
func New(cfg Config) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		client: resty.New().SetTimeout(timeout),
		url:    cfg.URL,
		method: method,
	}
}

// Notify sends payload asynchronously; delivery failures are logged, never
// surfaced to the observer whose terminal SSE event triggered the call.
func (n *Notifier) Notify(payload Payload) {
	if n == nil {
		return
	}
	taskrun.Go(context.Background(), func(ctx context.Context) {
		resp, err := n.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Execute(n.method, n.url)
		if err != nil {
			log.Debugw("webhook: delivery failed", "url", n.url, "error", err)
			return
		}
		if resp.IsError() {
			log.Debugw("webhook: non-2xx response", "url", n.url, "status", resp.StatusCode())
		}
	})
}
