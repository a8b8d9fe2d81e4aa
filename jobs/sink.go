package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/custodia-fin/custodia/internal/event"
)

// QueueSink publishes ledger events onto the events queue for asynchronous
// webhook delivery. Implements event.Sink.
type QueueSink struct {
	client *Client
	logger *slog.Logger
}

// NewQueueSink wraps an Asynq client as an event sink.
func NewQueueSink(client *Client, logger *slog.Logger) *QueueSink {
	return &QueueSink{client: client, logger: logger}
}

// Publish enqueues the event. Queue failures surface to the caller; the
// ledger mutation has already committed by the time this runs.
func (s *QueueSink) Publish(ctx context.Context, ev event.Event) error {
	task, err := NewWebhookDeliverTask(ev)
	if err != nil {
		return fmt.Errorf("jobs: marshal event: %w", err)
	}
	if _, err := s.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueEvents)); err != nil {
		if s.logger != nil {
			s.logger.Error("enqueue event", slog.String("type", string(ev.Type)), slog.Any("error", err))
		}
		return fmt.Errorf("jobs: enqueue event: %w", err)
	}
	return nil
}
