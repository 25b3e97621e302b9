package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

type fakeStore struct {
	enqueued []*models.QueueItem
	stats    map[models.QueueStatus]int
	err      error
}

func (f *fakeStore) Enqueue(_ context.Context, item *models.QueueItem) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, item)
	return nil
}

func (f *fakeStore) Stats(_ context.Context) (map[models.QueueStatus]int, error) {
	return f.stats, f.err
}

func TestManagerEnqueue_DerivesMaxAttemptsFromSLA(t *testing.T) {
	fs := &fakeStore{}
	m := NewManager(fs, config.DefaultQueueConfig())

	exec := &models.Execution{ID: "exec-1", SLAClass: models.SLALong}
	require.NoError(t, m.Enqueue(context.Background(), exec, models.PriorityHigh))

	require.Len(t, fs.enqueued, 1)
	item := fs.enqueued[0]
	assert.Equal(t, "exec-1", item.ExecutionID)
	assert.Equal(t, models.PriorityHigh, item.Priority)
	assert.Equal(t, 5, item.MaxAttempts)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.NotEmpty(t, item.QueueID)
}

func TestManagerDepth(t *testing.T) {
	fs := &fakeStore{stats: map[models.QueueStatus]int{models.QueueStatusPending: 3}}
	m := NewManager(fs, nil)

	depth, err := m.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, depth[models.QueueStatusPending])
}
