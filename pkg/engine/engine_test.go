package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/mutex"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/secrets"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
)

// --- stubs -------------------------------------------------------------

type fakeStepStore struct {
	mu    sync.Mutex
	rows  map[string]*models.ExecutionStep
	order []*models.ExecutionStep
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{rows: map[string]*models.ExecutionStep{}}
}

func (f *fakeStepStore) CreateAll(_ context.Context, steps []*models.ExecutionStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range steps {
		f.rows[s.ID] = s
		f.order = append(f.order, s)
	}
	return nil
}

func (f *fakeStepStore) MarkRunning(_ context.Context, id string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Status = models.StepStatusRunning
	f.rows[id].Attempt = attempt
	return nil
}

func (f *fakeStepStore) Complete(_ context.Context, id string, status models.StepStatus, output map[string]any, errMsg string, durationMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Status = status
	f.rows[id].OutputData = output
	f.rows[id].ErrorMessage = errMsg
	f.rows[id].DurationMS = durationMS
	return nil
}

type fakeExecutionUpdater struct {
	mu     sync.Mutex
	status models.Status
	errMsg string
}

func (f *fakeExecutionUpdater) Complete(_ context.Context, id string, status models.Status, result map[string]any, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.errMsg = errMsg
	return nil
}

type fakeEventRecorder struct {
	mu     sync.Mutex
	events []*models.ExecutionEvent
}

func (f *fakeEventRecorder) Append(_ context.Context, ev *models.ExecutionEvent, _ string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeLockStore struct{}

func (fakeLockStore) AcquireAll(context.Context, string, string, string, string, []string, time.Duration) error {
	return nil
}
func (fakeLockStore) Heartbeat(context.Context, string, string, []string, time.Duration) error {
	return nil
}
func (fakeLockStore) ReleaseAll(context.Context, string, string) error { return nil }
func (fakeLockStore) ReapExpired(context.Context) (int64, error)       { return 0, nil }

type fakeSecretsClient struct{}

func (fakeSecretsClient) Read(_ context.Context, path string) (string, error) {
	return "resolved:" + path, nil
}

type allowAllChecker struct{}

func (allowAllChecker) HasPermission(context.Context, string, string, string, models.ActionClass, string) (bool, error) {
	return true, nil
}

type fakeLocalAdapter struct {
	calls []adapters.LocalCommandInput
}

func (f *fakeLocalAdapter) Execute(_ context.Context, input adapters.LocalCommandInput) (*adapters.Result, error) {
	f.calls = append(f.calls, input)
	code := 0
	return &adapters.Result{ExitCode: &code, Stdout: "ok"}, nil
}

type failThenSucceedAdapter struct {
	failures int
	calls    int
}

func (a *failThenSucceedAdapter) Execute(_ context.Context, _ adapters.LocalCommandInput) (*adapters.Result, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, errAdapterUnavailable
	}
	code := 0
	return &adapters.Result{ExitCode: &code}, nil
}

var errAdapterUnavailable = fmtErrorf("adapter temporarily unavailable")

func fmtErrorf(msg string) error { return &simpleErr{msg} }

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

// --- test harness --------------------------------------------------------

func newTestEngine(t *testing.T, local adapters.LocalCommandAdapter) (*Engine, *fakeStepStore, *fakeExecutionUpdater) {
	t.Helper()
	steps := newFakeStepStore()
	execs := &fakeExecutionUpdater{}
	events := &fakeEventRecorder{}

	guard := mutex.NewGuard(fakeLockStore{}, nil, &config.MutexConfig{
		LeaseDuration:  time.Minute,
		HeartbeatEvery: 200 * time.Millisecond,
		AcquireBackoff: 10 * time.Millisecond,
		AcquireRetries: 3,
	})
	resolver := secrets.NewResolver(fakeSecretsClient{}, nil)
	validator := rbac.NewValidator(allowAllChecker{}, &config.RBACConfig{Mode: config.RBACModeStrict})
	cancelMgr := cancellation.NewManager(nil, time.Second)
	table := timeoutpolicy.NewTable(config.DefaultTimeoutConfig())

	eng := NewEngine(Deps{
		Steps:   steps,
		Execs:   execs,
		Events:  events,
		Locks:   guard,
		Secrets: resolver,
		RBAC:    validator,
		Cancel:  cancelMgr,
		Timeout: table,
		Local:   local,
		Assets:  adapters.NewInMemoryAssetService(),
	})
	return eng, steps, execs
}

func TestEngine_Run_AllStepsSucceedYieldsCompleted(t *testing.T) {
	local := &fakeLocalAdapter{}
	eng, _, execs := newTestEngine(t, local)

	exec := &models.Execution{
		ID:       "exec-1",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "echo"}},
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "echo"}},
		}},
	}

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if execs.status != models.StatusCompleted {
		t.Fatalf("expected execution store to record completed, got %s", execs.status)
	}
	if len(local.calls) != 2 {
		t.Fatalf("expected 2 local dispatches, got %d", len(local.calls))
	}
}

func TestEngine_Run_NonCriticalFailureYieldsPartial(t *testing.T) {
	calls := 0
	local := adapterFunc(func(context.Context, adapters.LocalCommandInput) (*adapters.Result, error) {
		calls++
		if calls == 1 {
			return nil, errAdapterUnavailable
		}
		code := 0
		return &adapters.Result{ExitCode: &code}, nil
	})
	eng, _, execs := newTestEngine(t, local)

	exec := &models.Execution{
		ID:       "exec-2",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "boom"}, MaxRetries: 0},
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "echo"}},
		}},
	}

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusPartial {
		t.Fatalf("expected partial, got %s", status)
	}
	if execs.status != models.StatusPartial {
		t.Fatalf("expected store to record partial, got %s", execs.status)
	}
}

func TestEngine_Run_CriticalFailureAbortsRemainingSteps(t *testing.T) {
	local := adapterFunc(func(context.Context, adapters.LocalCommandInput) (*adapters.Result, error) {
		return nil, errAdapterUnavailable
	})
	eng, steps, execs := newTestEngine(t, local)

	exec := &models.Execution{
		ID:       "exec-3",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "boom"}, Critical: true, MaxRetries: 0},
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "never-runs"}},
		}},
	}

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusFailed && status != models.StatusPartial {
		t.Fatalf("expected failed or partial after critical abort, got %s", status)
	}
	if execs.status == "" {
		t.Fatal("expected execution status to be recorded")
	}
	if len(steps.order) != 2 {
		t.Fatalf("expected both steps persisted even though the second never dispatched, got %d", len(steps.order))
	}
	second := steps.rows[steps.order[1].ID]
	if second.Status != models.StepStatusSkipped {
		t.Fatalf("expected second step to be skipped after critical abort, got %s", second.Status)
	}
}

func TestEngine_Run_StepRetriesThenSucceeds(t *testing.T) {
	adapter := &failThenSucceedAdapter{failures: 2}
	eng, _, execs := newTestEngine(t, adapter)

	exec := &models.Execution{
		ID:       "exec-4",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, Input: map[string]any{"command": "flaky"}, MaxRetries: 3},
		}},
	}

	eng.initialBackoff = time.Millisecond

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed after retries, got %s", status)
	}
	if adapter.calls != 3 {
		t.Fatalf("expected 3 dispatch attempts, got %d", adapter.calls)
	}
	if execs.status != models.StatusCompleted {
		t.Fatal("expected final status recorded as completed")
	}
}

type adapterFunc func(context.Context, adapters.LocalCommandInput) (*adapters.Result, error)

func (f adapterFunc) Execute(ctx context.Context, input adapters.LocalCommandInput) (*adapters.Result, error) {
	return f(ctx, input)
}

func TestEngine_Run_TargetedStepAcquiresAndReleasesLocks(t *testing.T) {
	local := &fakeLocalAdapter{}
	steps := newFakeStepStore()
	execs := &fakeExecutionUpdater{}
	assetSvc := adapters.NewInMemoryAssetService()
	assetSvc.Put(adapters.Asset{ID: "host-1", Hostname: "host-1", OS: "linux"})

	eng := NewEngine(Deps{
		Steps:   steps,
		Execs:   execs,
		Events:  &fakeEventRecorder{},
		Locks:   mutex.NewGuard(fakeLockStore{}, nil, &config.MutexConfig{LeaseDuration: time.Minute, HeartbeatEvery: time.Second, AcquireBackoff: 10 * time.Millisecond, AcquireRetries: 3}),
		Secrets: secrets.NewResolver(fakeSecretsClient{}, nil),
		RBAC:    rbac.NewValidator(allowAllChecker{}, &config.RBACConfig{Mode: config.RBACModeStrict}),
		Cancel:  cancellation.NewManager(nil, time.Second),
		Timeout: timeoutpolicy.NewTable(config.DefaultTimeoutConfig()),
		Local:   local,
		Assets:  assetSvc,
	})

	exec := &models.Execution{
		ID:       "exec-5",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, TargetAssetID: "host-1", Input: map[string]any{"command": "echo"}},
		}},
	}

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if len(local.calls) != 1 {
		t.Fatalf("expected the targeted step to dispatch once, got %d", len(local.calls))
	}
}

func TestEngine_Run_UnresolvableTargetFailsTheStep(t *testing.T) {
	local := &fakeLocalAdapter{}
	eng, _, execs := newTestEngine(t, local)

	exec := &models.Execution{
		ID:       "exec-6",
		TenantID: "tenant-a",
		ActorID:  "alice",
		SLAClass: models.SLAFast,
		PlanSnapshot: models.Plan{Steps: []models.StepDef{
			{Type: models.StepLocalCommand, TargetAssetID: "missing-host", Input: map[string]any{"command": "echo"}},
		}},
	}

	status, err := eng.Run(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusFailed {
		t.Fatalf("expected failed for an unresolvable target, got %s", status)
	}
	if execs.status != models.StatusFailed {
		t.Fatalf("expected store to record failed, got %s", execs.status)
	}
	if len(local.calls) != 0 {
		t.Fatal("expected no dispatch for a step whose target never resolved")
	}
}
