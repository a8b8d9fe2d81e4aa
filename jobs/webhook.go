package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/custodia-fin/custodia/internal/event"
	jobmetrics "github.com/custodia-fin/custodia/internal/jobs"
)

// WebhookDispatcher posts queued ledger events to an external endpoint.
// Non-2xx responses return an error so Asynq retries with backoff.
type WebhookDispatcher struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewWebhookDispatcher constructs a dispatcher for the given endpoint.
func NewWebhookDispatcher(url string, logger *slog.Logger, metrics *jobmetrics.Metrics) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		metrics: metrics,
	}
}

// HandleTask processes TaskTypeWebhookDeliver tasks.
func (d *WebhookDispatcher) HandleTask(ctx context.Context, t *asynq.Task) error {
	return d.metrics.Track("webhook_deliver").End(d.deliver(ctx, t))
}

func (d *WebhookDispatcher) deliver(ctx context.Context, t *asynq.Task) error {
	var ev event.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return asynq.SkipRetry
	}
	if d.url == "" {
		return asynq.SkipRetry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(t.Payload()))
	if err != nil {
		return fmt.Errorf("jobs: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custodia-Event", string(ev.Type))

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: webhook post: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("jobs: webhook status %d for event %s", res.StatusCode, ev.ID)
	}
	if d.logger != nil {
		d.logger.Info("webhook delivered",
			slog.String("event_id", ev.ID.String()),
			slog.String("type", string(ev.Type)))
	}
	return nil
}
