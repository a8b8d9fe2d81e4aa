package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/custodia-fin/custodia/internal/event"
)

const (
	// QueueEvents carries outbound webhook deliveries. Processed by the
	// standalone worker.
	QueueEvents = "events"
	// QueueMaintenance carries ledger housekeeping. Processed by the API
	// process, which owns the in-memory state.
	QueueMaintenance = "maintenance"

	// TaskTypeWebhookDeliver posts one ledger event to the configured
	// webhook endpoint.
	TaskTypeWebhookDeliver = "webhook:deliver"
	// TaskTypePermissionSweep reports permission records past their expiry.
	TaskTypePermissionSweep = "permission:sweep"
)

// NewWebhookDeliverTask wraps a ledger event for queueing.
func NewWebhookDeliverTask(ev event.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWebhookDeliver, data), nil
}

// NewPermissionSweepTask constructs the periodic sweep task.
func NewPermissionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypePermissionSweep, nil)
}
