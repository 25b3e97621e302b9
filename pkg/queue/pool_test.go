package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/store"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
)

type fakeReaper struct {
	reaped []*models.QueueItem
	stats  map[models.QueueStatus]int
}

func (f *fakeReaper) ReapExpiredLeases(context.Context) ([]*models.QueueItem, error) {
	return f.reaped, nil
}
func (f *fakeReaper) RequeueForRetry(context.Context, string) error { return nil }
func (f *fakeReaper) Stats(context.Context) (map[models.QueueStatus]int, error) {
	return f.stats, nil
}

func TestWorkerPool_CancelExecution_NotActiveLocally(t *testing.T) {
	mgr := cancellation.NewManager(nil, 30*time.Second)
	reaper := &fakeReaper{}
	pool := NewWorkerPool("pod-1", testQueueConfig(), reaper, mgr, func(string) *Worker { return nil })

	found := pool.CancelExecution("exec-404", models.ReasonUserInitiated, "stop")
	assert.False(t, found)
}

func TestWorkerPool_CancelExecution_ActiveLocally(t *testing.T) {
	mgr := cancellation.NewManager(nil, 30*time.Second)
	reaper := &fakeReaper{}
	pool := NewWorkerPool("pod-1", testQueueConfig(), reaper, mgr, func(string) *Worker { return nil })

	cancelled := false
	pool.RegisterExecution("exec-1", func() { cancelled = true })

	found := pool.CancelExecution("exec-1", models.ReasonUserInitiated, "stop")
	assert.True(t, found)
	assert.True(t, cancelled)
}

func TestWorkerPool_ReapOnce_TracksCount(t *testing.T) {
	mgr := cancellation.NewManager(nil, 30*time.Second)
	reaper := &fakeReaper{reaped: []*models.QueueItem{{QueueID: "q1"}, {QueueID: "q2"}}}
	pool := NewWorkerPool("pod-1", testQueueConfig(), reaper, mgr, func(string) *Worker { return nil })

	require.NoError(t, pool.reapOnce(context.Background()))
	assert.Equal(t, 2, pool.leasesReaped)
	assert.False(t, pool.lastReapScan.IsZero())
}

func TestWorkerPool_Health(t *testing.T) {
	mgr := cancellation.NewManager(nil, 30*time.Second)
	reaper := &fakeReaper{stats: map[models.QueueStatus]int{models.QueueStatusPending: 7}}
	pool := NewWorkerPool("pod-1", testQueueConfig(), reaper, mgr, func(string) *Worker { return nil })

	h := pool.Health(context.Background())
	assert.Equal(t, "pod-1", h.PodID)
	assert.Equal(t, 7, h.QueueDepth)
	assert.Equal(t, 5, h.MaxConcurrent)
}

type idleQueueStore struct{}

func (idleQueueStore) Claim(context.Context, string, int, time.Duration) ([]*models.QueueItem, error) {
	return nil, store.ErrNoItemsAvailable
}
func (idleQueueStore) RenewLease(context.Context, string, string, time.Duration) error { return nil }
func (idleQueueStore) Complete(context.Context, string, string) error                  { return nil }
func (idleQueueStore) Fail(context.Context, string, string, string) error              { return nil }
func (idleQueueStore) RequeueForRetry(context.Context, string) error                   { return nil }

func TestWorkerPool_ScaleUpAndDown(t *testing.T) {
	mgr := cancellation.NewManager(nil, 30*time.Second)
	reaper := &fakeReaper{}
	cfg := testQueueConfig()
	cfg.WorkerCount = 1
	cfg.GracefulShutdownTimeout = 5 * time.Second

	newWork := func(id string) *Worker {
		table := timeoutpolicy.NewTable(config.DefaultTimeoutConfig())
		return NewWorker(id, "pod-1", idleQueueStore{}, &fakeExecStore{}, &fakeDLQStore{}, nil, nil, mgr, table, cfg, nil)
	}

	pool := NewWorkerPool("pod-1", cfg, reaper, mgr, newWork)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	pool.Scale(ctx, 3)
	h := pool.Health(ctx)
	assert.Equal(t, 3, h.TotalWorkers)

	pool.Scale(ctx, 1)
	h = pool.Health(ctx)
	assert.Equal(t, 1, h.TotalWorkers)
}
