package monitoring

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/events"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Progress summarizes an execution's step states for a status response or
// an events.ExecutionProgressPayload.
type Progress struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Skipped   int
}

// PercentComplete returns the fraction of steps that reached a terminal
// state, as an integer 0-100. A plan with zero steps reports 0.
func (p Progress) PercentComplete() int {
	if p.Total == 0 {
		return 0
	}
	done := p.Completed + p.Failed + p.Skipped
	return done * 100 / p.Total
}

// Done reports whether every step has reached a terminal state.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed+p.Failed+p.Skipped == p.Total
}

// ProgressOf derives a Progress snapshot from an execution's steps.
func ProgressOf(steps []*models.ExecutionStep) Progress {
	p := Progress{Total: len(steps)}
	for _, s := range steps {
		switch s.Status {
		case models.StepStatusPending:
			p.Pending++
		case models.StepStatusRunning:
			p.Running++
		case models.StepStatusCompleted:
			p.Completed++
		case models.StepStatusFailed:
			p.Failed++
		case models.StepStatusSkipped:
			p.Skipped++
		}
	}
	return p
}

// Tracker caches the last Progress emitted per execution so the events
// publisher only has to push an update when something actually changed,
// rather than re-emitting an identical snapshot on every poll tick.
type Tracker struct {
	mu   sync.Mutex
	last map[string]Progress
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]Progress)}
}

// Update computes the current Progress for an execution's steps and
// reports whether it differs from the last Progress recorded for that
// execution ID. The new snapshot replaces the cached one either way.
func (t *Tracker) Update(executionID string, steps []*models.ExecutionStep) (Progress, bool) {
	current := ProgressOf(steps)

	t.mu.Lock()
	defer t.mu.Unlock()
	prior, seen := t.last[executionID]
	t.last[executionID] = current
	return current, !seen || prior != current
}

// Forget drops the cached snapshot for an execution once it reaches a
// terminal state, so the tracker's memory doesn't grow unbounded.
func (t *Tracker) Forget(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, executionID)
}

// Payload converts a Progress snapshot into the wire payload the events
// publisher broadcasts to an execution's stream channel.
func (p Progress) Payload(tenantID, executionID string) events.ExecutionProgressPayload {
	return events.ExecutionProgressPayload{
		ExecutionID:     executionID,
		TenantID:        tenantID,
		TotalSteps:      p.Total,
		CompletedSteps:  p.Completed,
		FailedSteps:     p.Failed,
		SkippedSteps:    p.Skipped,
		PercentComplete: float64(p.PercentComplete()),
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}
}
