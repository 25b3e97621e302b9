// Package stagee implements the front door every submitted plan passes
// through before it becomes a running Execution. It ties together the
// idempotency guard, RBAC validator, and timeout derivation, then routes
// to either the Execution Engine (inline mode) or the queue (queued mode),
// with an approval gate in front of plans that need a human decision.
package stagee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/idempotency"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
)

// ExecutionCreator is the subset of pkg/store.ExecutionStore the executor
// needs to persist a new submission, look it back up for a decision, and
// advance it past approval, mirroring the CAS-guarded UpdateStatus
// pkg/queue.Worker already uses for its own queued/running leg.
type ExecutionCreator interface {
	Create(ctx context.Context, e *models.Execution) error
	Get(ctx context.Context, id string) (*models.Execution, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status, reason models.CancellationReason) error
}

// ApprovalCreator is the subset of pkg/store.ApprovalStore the executor
// needs to open an approval gate and later record a human's decision on it.
type ApprovalCreator interface {
	Create(ctx context.Context, a *models.Approval) error
	Get(ctx context.Context, id string) (*models.Approval, error)
	Decide(ctx context.Context, id string, status models.ApprovalStatus, decidedBy, reason string) error
}

// Engine runs an execution inline and returns its terminal status.
type Engine interface {
	Run(ctx context.Context, exec *models.Execution) (models.Status, error)
}

// QueueEnqueuer is the subset of pkg/queue.Manager the executor needs.
type QueueEnqueuer interface {
	Enqueue(ctx context.Context, exec *models.Execution, priority models.Priority) error
}

// StepClassifier derives an ActionClass for a step that doesn't declare one,
// satisfied by a thin wrapper around pkg/engine.Classify + Classify's
// action-default rule so stagee never imports pkg/engine directly (it only
// needs the classification function, not the whole engine surface).
type StepClassifier func(models.StepDef) models.ActionClass

// Executor is the Stage-E front door.
type Executor struct {
	execs      ExecutionCreator
	approvals  ApprovalCreator
	idempotent *idempotency.Guard
	rbacCheck  *rbac.Validator
	timeouts   *timeoutpolicy.Table
	engine     Engine
	enqueuer   QueueEnqueuer
	classify   StepClassifier
	isConflict func(error) bool

	cfg *config.SubmissionConfig
}

// Deps groups Executor's collaborators.
type Deps struct {
	Executions  ExecutionCreator
	Approvals   ApprovalCreator
	Idempotency *idempotency.Guard
	RBAC        *rbac.Validator
	Timeouts    *timeoutpolicy.Table
	Engine      Engine
	Queue       QueueEnqueuer
	Classify    StepClassifier
	// IsConflict recognizes the store's unique-violation error, so a
	// submission that loses a Create race is retried as a duplicate lookup
	// instead of surfacing an error.
	IsConflict func(error) bool
	Submission *config.SubmissionConfig
}

// NewExecutor constructs an Executor.
func NewExecutor(d Deps) *Executor {
	cfg := d.Submission
	if cfg == nil {
		cfg = config.DefaultSubmissionConfig()
	}
	return &Executor{
		execs:      d.Executions,
		approvals:  d.Approvals,
		idempotent: d.Idempotency,
		rbacCheck:  d.RBAC,
		timeouts:   d.Timeouts,
		engine:     d.Engine,
		enqueuer:   d.Queue,
		classify:   d.Classify,
		isConflict: d.IsConflict,
		cfg:        cfg,
	}
}

// SubmitRequest is one plan submission.
type SubmitRequest struct {
	TenantID          string
	ActorID           string
	Plan              models.Plan
	SLAClass          models.SLAClass
	ApprovalLevel     int
	ExecutionMode     models.ExecutionMode
	Priority          models.Priority
	TraceID           string
	ParentExecutionID string
	Tags              []string
	Metadata          map[string]any
}

// SubmitResult reports what happened to a submission: either a fresh
// execution was created (possibly already run inline), or an existing one
// was returned because the idempotency key had already been seen.
type SubmitResult struct {
	Execution *models.Execution
	Deduped   bool
	Status    models.Status
}

// Submit runs a plan through the full front-door sequence: RBAC, idempotency
// dedup, execution-record creation, approval gating, and routing to either
// the engine (inline) or the queue.
func (e *Executor) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if len(req.Plan.Steps) == 0 {
		return nil, models.ErrEmptyPlan
	}

	e.classifySubmission(&req)

	if e.rbacCheck != nil {
		if err := e.rbacCheck.CheckPlan(ctx, req.ActorID, req.TenantID, req.Plan.Steps); err != nil {
			return nil, fmt.Errorf("rbac check failed: %w", err)
		}
	}

	key := idempotency.DeriveKey(req.Plan, req.TenantID, req.ActorID)
	planHash := idempotency.DerivePlanHash(req.Plan)

	existing, found, err := e.idempotent.Check(ctx, req.TenantID, key)
	if err != nil {
		return nil, fmt.Errorf("checking idempotency: %w", err)
	}
	if found {
		slog.Info("submission deduplicated", "tenant_id", req.TenantID, "idempotency_key", key, "execution_id", existing.ID)
		return &SubmitResult{Execution: existing, Deduped: true, Status: existing.Status}, nil
	}

	execTimeout, err := e.timeouts.ExecutionTimeout(req.SLAClass, req.Plan.Steps, e.classify)
	if err != nil {
		return nil, fmt.Errorf("deriving execution timeout: %w", err)
	}
	timeoutAt := time.Now().Add(execTimeout)

	exec := &models.Execution{
		ID:                uuid.NewString(),
		TenantID:          req.TenantID,
		ActorID:           req.ActorID,
		IdempotencyKey:    key,
		PlanSnapshot:      req.Plan,
		PlanHash:          planHash,
		ExecutionMode:     req.ExecutionMode,
		SLAClass:          req.SLAClass,
		ApprovalLevel:     req.ApprovalLevel,
		Status:            models.InitialStatus(req.ApprovalLevel),
		StatusChangedAt:   time.Now(),
		CreatedAt:         time.Now(),
		TimeoutAt:         &timeoutAt,
		TraceID:           req.TraceID,
		ParentExecutionID: req.ParentExecutionID,
		Tags:              req.Tags,
		Metadata:          req.Metadata,
	}

	if err := e.execs.Create(ctx, exec); err != nil {
		if e.isConflict != nil && e.isConflict(err) {
			existing, found, checkErr := e.idempotent.Check(ctx, req.TenantID, key)
			if checkErr == nil && found {
				return &SubmitResult{Execution: existing, Deduped: true, Status: existing.Status}, nil
			}
		}
		return nil, fmt.Errorf("persisting execution: %w", err)
	}

	if exec.Status == models.StatusPendingApproval {
		approval := &models.Approval{
			ID:          uuid.NewString(),
			ExecutionID: exec.ID,
			PlanHash:    planHash,
			Status:      models.ApprovalPending,
			RequestedAt: time.Now(),
			ExpiresAt:   approvalExpiry(e.cfg.ApprovalTTL),
		}
		if err := e.approvals.Create(ctx, approval); err != nil {
			return nil, fmt.Errorf("creating approval gate: %w", err)
		}
		return &SubmitResult{Execution: exec, Status: exec.Status}, nil
	}

	return e.route(ctx, exec, req.Priority)
}

// classifySubmission fills in the SLA class and execution mode when the
// caller left them unset. The mode decision is policy-driven: a fast-class,
// approval-free plan whose estimated duration (steps × estimated step
// duration) fits under the inline threshold runs inline; everything else is
// queued.
func (e *Executor) classifySubmission(req *SubmitRequest) {
	if req.SLAClass == "" {
		req.SLAClass = e.deriveSLAClass(req.Plan)
	}
	if req.ExecutionMode != "" {
		return
	}

	estimated := time.Duration(len(req.Plan.Steps)) * e.cfg.EstimatedStepDuration
	if req.SLAClass == models.SLAFast && req.ApprovalLevel == 0 && estimated <= e.cfg.InlineThreshold {
		req.ExecutionMode = models.ModeInline
		return
	}
	req.ExecutionMode = models.ModeQueued
}

// deriveSLAClass picks a coarse time budget from the plan's shape: a short
// read-only plan is fast, anything with a complex step or a long step list
// is long, and the rest is medium. Deterministic for a given plan.
func (e *Executor) deriveSLAClass(plan models.Plan) models.SLAClass {
	readOnly := true
	for _, step := range plan.Steps {
		action := step.Action
		if action == "" && e.classify != nil {
			action = e.classify(step)
		}
		switch action {
		case models.ActionComplex:
			return models.SLALong
		case models.ActionWrite:
			readOnly = false
		}
	}
	switch {
	case len(plan.Steps) > 10:
		return models.SLALong
	case readOnly && len(plan.Steps) <= 3:
		return models.SLAFast
	default:
		return models.SLAMedium
	}
}

// Route advances an execution that just cleared approval (or never needed
// one) to either inline execution or the queue.
func (e *Executor) Route(ctx context.Context, exec *models.Execution, priority models.Priority) (*SubmitResult, error) {
	return e.route(ctx, exec, priority)
}

func (e *Executor) route(ctx context.Context, exec *models.Execution, priority models.Priority) (*SubmitResult, error) {
	from := exec.Status

	if exec.ExecutionMode == models.ModeInline {
		if err := e.execs.UpdateStatus(ctx, exec.ID, from, models.StatusRunning, ""); err != nil {
			return nil, fmt.Errorf("persisting running transition: %w", err)
		}
		exec.Status = models.StatusRunning

		status, err := e.engine.Run(ctx, exec)
		if err != nil {
			slog.Warn("inline execution finished with error", "execution_id", exec.ID, "error", err)
		}
		exec.Status = status
		return &SubmitResult{Execution: exec, Status: status}, nil
	}

	if err := e.execs.UpdateStatus(ctx, exec.ID, from, models.StatusQueued, ""); err != nil {
		return nil, fmt.Errorf("persisting queued transition: %w", err)
	}

	if err := e.enqueuer.Enqueue(ctx, exec, priority); err != nil {
		return nil, fmt.Errorf("enqueuing execution: %w", err)
	}
	exec.Status = models.StatusQueued
	return &SubmitResult{Execution: exec, Status: models.StatusQueued}, nil
}

// DecideRequest is a human's decision on a pending approval gate.
type DecideRequest struct {
	ApprovalID string
	Approve    bool
	DecidedBy  string
	Reason     string
	Priority   models.Priority
}

// Decide records a human's grant/deny decision against an approval gate and
// advances the gated execution accordingly: a grant moves it from
// pending-approval to approved and routes it exactly as Submit would have
// routed an execution that never needed approval; a denial moves it straight
// to cancelled (denial is terminal) and never reaches
// the engine or queue.
func (e *Executor) Decide(ctx context.Context, req DecideRequest) (*SubmitResult, error) {
	approval, err := e.approvals.Get(ctx, req.ApprovalID)
	if err != nil {
		return nil, fmt.Errorf("loading approval: %w", err)
	}

	gated, err := e.execs.Get(ctx, approval.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("loading gated execution: %w", err)
	}
	if approval.PlanHash != gated.PlanHash {
		return nil, fmt.Errorf("approval %s plan hash no longer matches execution %s", approval.ID, gated.ID)
	}

	status := models.ApprovalDenied
	if req.Approve {
		status = models.ApprovalGranted
	}
	if err := e.approvals.Decide(ctx, approval.ID, status, req.DecidedBy, req.Reason); err != nil {
		return nil, fmt.Errorf("recording approval decision: %w", err)
	}

	exec := gated

	if !req.Approve {
		if err := e.execs.UpdateStatus(ctx, exec.ID, models.StatusPendingApproval, models.StatusCancelled, models.ReasonApprovalDenied); err != nil {
			return nil, fmt.Errorf("persisting denial: %w", err)
		}
		exec.Status = models.StatusCancelled
		return &SubmitResult{Execution: exec, Status: models.StatusCancelled}, nil
	}

	if err := e.execs.UpdateStatus(ctx, exec.ID, models.StatusPendingApproval, models.StatusApproved, ""); err != nil {
		return nil, fmt.Errorf("persisting approval: %w", err)
	}
	exec.Status = models.StatusApproved

	return e.route(ctx, exec, req.Priority)
}

func approvalExpiry(ttl time.Duration) *time.Time {
	t := time.Now().Add(ttl)
	return &t
}
