package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Store is the subset of pkg/store.QueueStore the Manager needs to enqueue
// new work.
type Store interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	Stats(ctx context.Context) (map[models.QueueStatus]int, error)
}

// Manager is the enqueue-side entry point the front-door executor
// (pkg/stagee) calls once an execution has cleared approval and is routed
// to ModeQueued rather than run inline.
type Manager struct {
	store Store
	cfg   *config.QueueConfig
}

// NewManager constructs a Manager.
func NewManager(store Store, cfg *config.QueueConfig) *Manager {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	return &Manager{store: store, cfg: cfg}
}

// Enqueue creates a queue item for exec at the given priority. MaxAttempts
// is derived from the execution's SLA class.
func (m *Manager) Enqueue(ctx context.Context, exec *models.Execution, priority models.Priority) error {
	item := &models.QueueItem{
		QueueID:                  uuid.NewString(),
		ExecutionID:              exec.ID,
		Priority:                 priority,
		SLAClass:                 exec.SLAClass,
		MaxAttempts:              exec.SLAClass.MaxAttempts(),
		Status:                   models.QueueStatusPending,
		VisibilityTimeoutSeconds: int(m.cfg.VisibilityTimeout.Seconds()),
	}
	if err := m.store.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueuing execution %s: %w", exec.ID, err)
	}
	return nil
}

// Depth returns current queue counts by status, for pkg/monitoring.
func (m *Manager) Depth(ctx context.Context) (map[models.QueueStatus]int, error) {
	return m.store.Stats(ctx)
}
