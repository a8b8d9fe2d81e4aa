package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/custodia-fin/custodia/internal/identity"
	jobmetrics "github.com/custodia-fin/custodia/internal/jobs"
	"github.com/custodia-fin/custodia/internal/permission"
)

// PermissionSnapshotter exposes the stored permission records for sweeping.
type PermissionSnapshotter interface {
	Snapshot() map[identity.Identity]permission.Record
}

// PermissionSweeper reports permission records past their expiry. Records
// are never deleted; an expired record already denies both directions, so
// the sweep exists for compliance visibility.
type PermissionSweeper struct {
	store   PermissionSnapshotter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewPermissionSweeper constructs a sweeper over the given store.
func NewPermissionSweeper(store PermissionSnapshotter, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionSweeper {
	return &PermissionSweeper{store: store, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (s *PermissionSweeper) WithNow(now func() time.Time) {
	s.now = now
}

// HandleTask processes TaskTypePermissionSweep tasks.
func (s *PermissionSweeper) HandleTask(ctx context.Context, t *asynq.Task) error {
	tracker := s.metrics.Track("permission_sweep")
	now := s.now()
	expired := 0
	for id, rec := range s.store.Snapshot() {
		if rec.ExpiryTime.After(now) {
			continue
		}
		expired++
		if s.logger != nil {
			s.logger.Warn("permission expired",
				slog.String("investor", id.String()),
				slog.Time("expiry", rec.ExpiryTime))
		}
	}
	s.metrics.SetExpiredPermissions(expired)
	if s.logger != nil {
		s.logger.Info("permission sweep complete", slog.Int("expired", expired))
	}
	return tracker.End(nil)
}
