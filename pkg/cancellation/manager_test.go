package cancellation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) RecordStepCleanup(_ context.Context, _, stepID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.events = append(r.events, stepID+":error")
		return
	}
	r.events = append(r.events, stepID+":ok")
}

func TestManager_TokenLifecycle(t *testing.T) {
	m := NewManager(nil, time.Second)
	tok := m.NewTokenFor("exec-1")
	if m.Token("exec-1") != tok {
		t.Fatal("expected Token to return the registered token")
	}
	m.Forget("exec-1")
	if m.Token("exec-1") != nil {
		t.Fatal("expected token to be forgotten")
	}
}

func TestManager_Cancel_NoTokenIsNoOp(t *testing.T) {
	m := NewManager(nil, time.Second)
	m.Cancel("missing", models.ReasonError, "") // must not panic
}

func TestManager_RunCleanup_WalksStepsInReverseAndInvokesHooks(t *testing.T) {
	events := &recordingEvents{}
	m := NewManager(events, time.Second)

	var order []string
	var mu sync.Mutex
	m.RegisterHook(models.StepRemoteShell, func(_ context.Context, step *models.ExecutionStep) error {
		mu.Lock()
		order = append(order, step.ID)
		mu.Unlock()
		return nil
	})

	steps := []*models.ExecutionStep{
		{ID: "s1", StepType: models.StepRemoteShell, Status: models.StepStatusCompleted},
		{ID: "s2", StepType: models.StepRemoteShell, Status: models.StepStatusCompleted},
		{ID: "s3", StepType: models.StepRemoteShell, Status: models.StepStatusPending}, // never ran, no cleanup
	}

	if err := m.RunCleanup(context.Background(), "exec-1", steps); err != nil {
		t.Fatalf("unexpected cleanup error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "s2" || order[1] != "s1" {
		t.Fatalf("expected reverse order [s2 s1], got %v", order)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 2 {
		t.Fatalf("expected 2 cleanup events, got %v", events.events)
	}
}

func TestManager_RunCleanup_NoHookForStepTypeIsSkipped(t *testing.T) {
	m := NewManager(nil, time.Second)
	steps := []*models.ExecutionStep{{ID: "s1", StepType: models.StepHTTP, Status: models.StepStatusCompleted}}
	if err := m.RunCleanup(context.Background(), "exec-1", steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestManager_RunCleanup_TimeoutPromotesToError(t *testing.T) {
	m := NewManager(nil, 10*time.Millisecond)
	m.RegisterHook(models.StepRemoteShell, func(ctx context.Context, _ *models.ExecutionStep) error {
		<-ctx.Done()
		return ctx.Err()
	})
	steps := []*models.ExecutionStep{{ID: "s1", StepType: models.StepRemoteShell, Status: models.StepStatusRunning}}

	err := m.RunCleanup(context.Background(), "exec-1", steps)
	if err == nil {
		t.Fatal("expected cleanup timeout to produce an error")
	}
}

func TestManager_RunCleanup_HookPanicIsRecovered(t *testing.T) {
	events := &recordingEvents{}
	m := NewManager(events, time.Second)
	m.RegisterHook(models.StepRemoteShell, func(context.Context, *models.ExecutionStep) error {
		panic("compensation exploded")
	})
	steps := []*models.ExecutionStep{{ID: "s1", StepType: models.StepRemoteShell, Status: models.StepStatusCompleted}}

	if err := m.RunCleanup(context.Background(), "exec-1", steps); err != nil {
		t.Fatalf("panic in hook should not fail the whole cleanup pass: %v", err)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 1 || events.events[0] != "s1:error" {
		t.Fatalf("expected recorded cleanup error for panicking hook, got %v", events.events)
	}
}
