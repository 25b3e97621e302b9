package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func steps(statuses ...models.StepStatus) []*models.ExecutionStep {
	out := make([]*models.ExecutionStep, len(statuses))
	for i, s := range statuses {
		out[i] = &models.ExecutionStep{Status: s}
	}
	return out
}

func TestProgressOf_Counts(t *testing.T) {
	p := ProgressOf(steps(models.StepStatusCompleted, models.StepStatusFailed, models.StepStatusRunning, models.StepStatusPending))

	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Running)
	assert.Equal(t, 1, p.Pending)
}

func TestProgress_PercentComplete(t *testing.T) {
	p := ProgressOf(steps(models.StepStatusCompleted, models.StepStatusCompleted, models.StepStatusRunning, models.StepStatusPending))
	assert.Equal(t, 50, p.PercentComplete())
}

func TestProgress_PercentComplete_EmptyPlan(t *testing.T) {
	p := ProgressOf(nil)
	assert.Equal(t, 0, p.PercentComplete())
	assert.False(t, p.Done())
}

func TestProgress_Done(t *testing.T) {
	p := ProgressOf(steps(models.StepStatusCompleted, models.StepStatusFailed))
	assert.True(t, p.Done())

	p2 := ProgressOf(steps(models.StepStatusCompleted, models.StepStatusRunning))
	assert.False(t, p2.Done())
}

func TestTracker_UpdateReportsChange(t *testing.T) {
	tr := NewTracker()

	p1, changed1 := tr.Update("exec-1", steps(models.StepStatusRunning, models.StepStatusPending))
	assert.True(t, changed1)
	assert.Equal(t, 2, p1.Total)

	p2, changed2 := tr.Update("exec-1", steps(models.StepStatusRunning, models.StepStatusPending))
	assert.False(t, changed2)
	assert.Equal(t, p1, p2)

	_, changed3 := tr.Update("exec-1", steps(models.StepStatusCompleted, models.StepStatusPending))
	assert.True(t, changed3)
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker()
	tr.Update("exec-1", steps(models.StepStatusRunning))

	tr.Forget("exec-1")

	_, changed := tr.Update("exec-1", steps(models.StepStatusRunning))
	assert.True(t, changed, "expected forgotten execution to be treated as unseen")
}

func TestProgress_Payload(t *testing.T) {
	p := ProgressOf(steps(models.StepStatusCompleted, models.StepStatusFailed, models.StepStatusPending, models.StepStatusPending))

	payload := p.Payload("tenant-1", "exec-1")

	assert.Equal(t, "tenant-1", payload.TenantID)
	assert.Equal(t, "exec-1", payload.ExecutionID)
	assert.Equal(t, 4, payload.TotalSteps)
	assert.Equal(t, 1, payload.CompletedSteps)
	assert.Equal(t, 1, payload.FailedSteps)
	assert.Equal(t, float64(50), payload.PercentComplete)
	assert.NotEmpty(t, payload.Timestamp)
}
