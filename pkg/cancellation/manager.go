package cancellation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// CompensationHook is a step-type-specific cleanup action invoked during
// cancellation cleanup for any step that reached running or completed
// before the execution was cancelled. It is looked up from a small
// dispatch table keyed by step type rather than conditionals scattered at
// call sites.
type CompensationHook func(ctx context.Context, step *models.ExecutionStep) error

// EventRecorder is the narrow event-emission surface the Manager needs,
// kept independent of the full pkg/events surface.
type EventRecorder interface {
	RecordStepCleanup(ctx context.Context, executionID, stepID string, err error)
}

// Manager owns one Token per in-flight execution and the compensation-hook
// dispatch table used during cleanup.
type Manager struct {
	mu     sync.Mutex
	tokens map[string]*Token
	hooks  map[models.StepType]CompensationHook

	events         EventRecorder
	cleanupTimeout time.Duration
}

// NewManager constructs a Manager. cleanupTimeout bounds the whole cleanup
// pass (default 30s).
func NewManager(events EventRecorder, cleanupTimeout time.Duration) *Manager {
	if cleanupTimeout <= 0 {
		cleanupTimeout = 30 * time.Second
	}
	return &Manager{
		tokens:         make(map[string]*Token),
		hooks:          make(map[models.StepType]CompensationHook),
		events:         events,
		cleanupTimeout: cleanupTimeout,
	}
}

// RegisterHook installs a compensation hook for a step type. Call during
// startup wiring, before any execution runs.
func (m *Manager) RegisterHook(stepType models.StepType, hook CompensationHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[stepType] = hook
}

// NewTokenFor creates and registers a cancellation token for an execution.
// The caller is responsible for calling Forget once the execution reaches a
// terminal state.
func (m *Manager) NewTokenFor(executionID string) *Token {
	tok := NewToken()
	m.mu.Lock()
	m.tokens[executionID] = tok
	m.mu.Unlock()
	return tok
}

// Token returns the cancellation token for an execution, or nil if none is
// registered (e.g. the execution already terminated).
func (m *Manager) Token(executionID string) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[executionID]
}

// Forget drops the token for an execution once it has reached a terminal
// state, so the registry doesn't grow unbounded over the process lifetime.
func (m *Manager) Forget(executionID string) {
	m.mu.Lock()
	delete(m.tokens, executionID)
	m.mu.Unlock()
}

// Cancel cancels the execution's token, if one is registered, with the
// given reason and message. No-op if the execution has no active token.
func (m *Manager) Cancel(executionID string, reason models.CancellationReason, message string) {
	tok := m.Token(executionID)
	if tok == nil {
		return
	}
	tok.Cancel(reason, message)
}

// RunCleanup walks steps in reverse order and invokes the step-type's
// compensation hook, if registered, for any step that reached running or
// completed. It returns a non-nil error — meant to promote the execution's
// final status to failed — only if the whole pass exceeds its bounded
// timeout.
func (m *Manager) RunCleanup(ctx context.Context, executionID string, steps []*models.ExecutionStep) error {
	cleanupCtx, cancel := context.WithTimeout(ctx, m.cleanupTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(steps) - 1; i >= 0; i-- {
			step := steps[i]
			if step.Status != models.StepStatusRunning && step.Status != models.StepStatusCompleted {
				continue
			}

			m.mu.Lock()
			hook, ok := m.hooks[step.StepType]
			m.mu.Unlock()
			if !ok {
				continue
			}

			err := m.invokeHook(cleanupCtx, hook, step)
			if m.events != nil {
				m.events.RecordStepCleanup(cleanupCtx, executionID, step.ID, err)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-cleanupCtx.Done():
		return fmt.Errorf("cleanup exceeded %s timeout for execution %s", m.cleanupTimeout, executionID)
	}
}

func (m *Manager) invokeHook(ctx context.Context, hook CompensationHook, step *models.ExecutionStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation hook panicked: %v", r)
			slog.Error("compensation hook panicked", "step_id", step.ID, "recovered", r)
		}
	}()
	return hook(ctx, step)
}
