// Package engine implements the execution engine: it expands a submitted
// plan into ordered, persisted steps and runs them one at a time, wiring
// together every other core component (the mutex guard, secrets resolver,
// RBAC validator, cancellation manager, timeout derivation, and the
// transport adapters) around each step's dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/mutex"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/secrets"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
)

// MetricsRecorder is the narrow metrics surface the engine reports
// through, satisfied by *pkg/monitoring.Metrics. Kept as an interface so
// engine tests never have to stand up a Prometheus registry.
type MetricsRecorder interface {
	RecordExecutionStarted(sla models.SLAClass)
	RecordExecutionCompleted(sla models.SLAClass, status models.Status, duration time.Duration)
	RecordStepDuration(stepType models.StepType, status models.StepStatus, duration time.Duration)
}

// ProgressReporter pushes a transient progress snapshot to live stream
// subscribers after each step reaches a terminal state. Satisfied by
// *pkg/monitoring.ProgressPublisher; optional.
type ProgressReporter interface {
	PublishProgress(ctx context.Context, tenantID, executionID string, steps []*models.ExecutionStep)
}

// StepStore is the subset of pkg/store.StepStore the engine needs.
type StepStore interface {
	CreateAll(ctx context.Context, steps []*models.ExecutionStep) error
	MarkRunning(ctx context.Context, id string, attempt int) error
	Complete(ctx context.Context, id string, status models.StepStatus, output map[string]any, errMsg string, durationMS int64) error
}

// ExecutionUpdater is the subset of pkg/store.ExecutionStore the engine
// needs to record terminal outcomes.
type ExecutionUpdater interface {
	Complete(ctx context.Context, id string, status models.Status, result map[string]any, errMsg string) error
}

// EventRecorder is the subset of pkg/store.EventStore the engine needs.
type EventRecorder interface {
	Append(ctx context.Context, ev *models.ExecutionEvent, channel string, wirePayload map[string]any) error
}

// Engine runs one execution's steps to completion, strictly sequentially;
// there is no parallelism inside a single execution.
type Engine struct {
	steps   StepStore
	execs   ExecutionUpdater
	events  EventRecorder
	locks   *mutex.Guard
	secrets *secrets.Resolver
	rbac    *rbac.Validator
	cancel  *cancellation.Manager
	timeout *timeoutpolicy.Table

	shell      adapters.ShellAdapter
	powershell adapters.PowerShellAdapter
	http       adapters.HTTPAdapter
	assets     adapters.AssetService
	local      adapters.LocalCommandAdapter

	metrics  MetricsRecorder
	progress ProgressReporter

	initialBackoff time.Duration
}

// Deps groups Engine's collaborators for NewEngine, since the constructor
// otherwise carries more positional parameters than is readable.
type Deps struct {
	Steps      StepStore
	Execs      ExecutionUpdater
	Events     EventRecorder
	Locks      *mutex.Guard
	Secrets    *secrets.Resolver
	RBAC       *rbac.Validator
	Cancel     *cancellation.Manager
	Timeout    *timeoutpolicy.Table
	Shell      adapters.ShellAdapter
	PowerShell adapters.PowerShellAdapter
	HTTP       adapters.HTTPAdapter
	Assets     adapters.AssetService
	Local      adapters.LocalCommandAdapter
	Metrics    MetricsRecorder
	Progress   ProgressReporter
}

// NewEngine constructs an Engine from its wired collaborators.
func NewEngine(d Deps) *Engine {
	return &Engine{
		steps:          d.Steps,
		execs:          d.Execs,
		events:         d.Events,
		locks:          d.Locks,
		secrets:        d.Secrets,
		rbac:           d.RBAC,
		cancel:         d.Cancel,
		timeout:        d.Timeout,
		shell:          d.Shell,
		powershell:     d.PowerShell,
		http:           d.HTTP,
		assets:         d.Assets,
		local:          d.Local,
		metrics:        d.Metrics,
		progress:       d.Progress,
		initialBackoff: time.Second,
	}
}

// Run expands execution's plan into steps, persists them, and executes each
// in order. It returns the execution's final status and never a bare
// transport error — every failure mode resolves to a terminal models.Status
// plus a recorded error message.
func (e *Engine) Run(ctx context.Context, exec *models.Execution) (models.Status, error) {
	logger := slog.With("execution_id", exec.ID, "tenant_id", exec.TenantID)
	runStarted := time.Now()

	if e.metrics != nil {
		e.metrics.RecordExecutionStarted(exec.SLAClass)
	}

	if e.rbac != nil {
		if err := e.rbac.CheckPlan(ctx, exec.ActorID, exec.TenantID, exec.PlanSnapshot.Steps); err != nil {
			e.recordEvent(ctx, exec, models.EventRBACDenied, "", err.Error())
			_, _ = e.finish(ctx, exec, models.StatusFailed, err.Error(), runStarted)
			return models.StatusFailed, err
		}
	}

	defs := exec.PlanSnapshot.Steps
	stepRows := expandSteps(exec, defs)
	if err := e.steps.CreateAll(ctx, stepRows); err != nil {
		return models.StatusFailed, fmt.Errorf("persisting execution steps: %w", err)
	}

	token := e.cancel.NewTokenFor(exec.ID)
	defer e.cancel.Forget(exec.ID)

	var completed, failed, skipped int
	aborted := false

	for i, step := range stepRows {
		def := defs[i]

		if token.IsCancelled() || aborted {
			skipped++
			step.Status = models.StepStatusSkipped
			_ = e.steps.Complete(ctx, step.ID, models.StepStatusSkipped, nil, "", 0)
			e.recordStepEvent(ctx, exec, step, models.EventStepSkipped, "")
			if e.progress != nil {
				e.progress.PublishProgress(ctx, exec.TenantID, exec.ID, stepRows)
			}
			continue
		}

		err := e.runStep(ctx, exec, step, def, token)
		if err != nil {
			failed++
			logger.Warn("step failed", "step_id", step.ID, "step_index", step.StepIndex, "error", err)
			if def.Critical {
				aborted = true
			}
		} else {
			completed++
		}

		if e.progress != nil {
			e.progress.PublishProgress(ctx, exec.TenantID, exec.ID, stepRows)
		}
	}

	if token.IsCancelled() {
		if err := e.cancel.RunCleanup(ctx, exec.ID, stepRows); err != nil {
			logger.Error("cleanup pass failed to finish within its deadline", "error", err)
			return e.finish(ctx, exec, models.StatusFailed, "cleanup did not complete: "+err.Error(), runStarted)
		}
		status := models.StatusCancelled
		if token.Reason() == models.ReasonTimeout {
			status = models.StatusTimedOut
		}
		return e.finish(ctx, exec, status, token.Message(), runStarted)
	}

	status := finalStatus(completed, failed, skipped)
	return e.finish(ctx, exec, status, "", runStarted)
}

// finish records the terminal outcome. The store pairs the terminal status
// write with its status_changed audit event in one transaction, so no
// separate event emission happens here.
func (e *Engine) finish(ctx context.Context, exec *models.Execution, status models.Status, errMsg string, runStarted time.Time) (models.Status, error) {
	if e.metrics != nil {
		e.metrics.RecordExecutionCompleted(exec.SLAClass, status, time.Since(runStarted))
	}
	if err := e.execs.Complete(ctx, exec.ID, status, nil, errMsg); err != nil {
		return status, fmt.Errorf("recording final execution status: %w", err)
	}
	return status, nil
}

// finalStatus maps step outcomes to a terminal status: all completed,
// all failed, or mixed (partial).
func finalStatus(completed, failed, skipped int) models.Status {
	switch {
	case failed == 0 && skipped == 0:
		return models.StatusCompleted
	case completed == 0 && skipped == 0:
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}

// runStep carries one step through every orchestration stage: mark
// running, resolve target, classify, lock, resolve secrets, check RBAC,
// poll cancellation, dispatch with retry, validate, record, release.
func (e *Engine) runStep(ctx context.Context, exec *models.Execution, step *models.ExecutionStep, def models.StepDef, token *cancellation.Token) error {
	e.recordStepEvent(ctx, exec, step, models.EventStepStarted, "")
	stepStarted := time.Now()

	var asset *adapters.Asset
	targetID := step.TargetAssetID
	if targetID == "" {
		targetID = step.TargetHostname
	}
	if targetID != "" {
		var err error
		asset, err = e.assets.Resolve(ctx, targetID)
		if err != nil {
			return e.failStep(ctx, exec, step, fmt.Errorf("%w: %s", ErrMissingTarget, err), stepStarted, def.Type)
		}
	}

	stepType := Classify(def, asset)

	stepTimeout, err := e.timeout.StepTimeout(exec.SLAClass, defaultAction(def, stepType))
	if err != nil || stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}

	assetIDs := lockAssetIDs(targetID, def.RequiredAssets)
	var held *mutex.Held
	if len(assetIDs) > 0 {
		holderToken := uuid.NewString()
		deadline := time.Now().Add(stepTimeout)
		held, err = e.locks.AcquireAll(ctx, exec.TenantID, exec.ID, step.ID, holderToken, assetIDs, deadline)
		if err != nil {
			return e.failStep(ctx, exec, step, fmt.Errorf("acquiring locks: %w", err), stepStarted, stepType)
		}
		defer func() {
			if releaseErr := held.Release(context.Background()); releaseErr != nil {
				slog.Warn("failed to release asset locks", "step_id", step.ID, "error", releaseErr)
			}
		}()
	}

	resolvedInput, err := e.secrets.Resolve(ctx, exec.TenantID, exec.ID, def.Input)
	if err != nil {
		return e.failStep(ctx, exec, step, fmt.Errorf("resolving secrets: %w", err), stepStarted, stepType)
	}
	resolvedMap, _ := resolvedInput.(map[string]any)

	if e.rbac != nil {
		if err := e.rbac.CheckStep(ctx, exec.ActorID, exec.TenantID, def); err != nil {
			e.recordEvent(ctx, exec, models.EventRBACDenied, step.ID, err.Error())
			return e.failStep(ctx, exec, step, err, stepStarted, stepType)
		}
	}

	if token.IsCancelled() {
		return e.failStep(ctx, exec, step, ErrCancelled, stepStarted, stepType)
	}

	result, err := e.dispatchWithRetry(ctx, exec, step, stepType, resolvedMap, asset, token, stepTimeout)
	if err != nil {
		return e.failStep(ctx, exec, step, err, stepStarted, stepType)
	}

	if err := validateResult(def.Validation, result); err != nil {
		return e.failStep(ctx, exec, step, err, stepStarted, stepType)
	}

	return e.completeStep(ctx, exec, step, result, stepStarted, stepType)
}

// dispatchWithRetry retries adapter-level failures (not validation
// failures) up to step.MaxRetries times with exponential backoff.
// Step-level retries are distinct from queue-level re-dispatch of the
// whole execution.
func (e *Engine) dispatchWithRetry(ctx context.Context, exec *models.Execution, step *models.ExecutionStep, stepType models.StepType, input map[string]any, asset *adapters.Asset, token *cancellation.Token, stepTimeout time.Duration) (*adapters.Result, error) {
	backoff := e.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		if token.IsCancelled() {
			return nil, ErrCancelled
		}
		step.Status = models.StepStatusRunning
		if err := e.steps.MarkRunning(ctx, step.ID, attempt+1); err != nil {
			slog.Warn("failed to record step attempt", "step_id", step.ID, "error", err)
		}

		attemptCtx, cancelAttempt := context.WithTimeout(ctx, stepTimeout)
		result, err := e.dispatch(attemptCtx, stepType, input, asset)
		cancelAttempt()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrStepTimedOut, err)
		}
		lastErr = err

		if attempt == step.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-token.Done():
			return nil, ErrCancelled
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("step exhausted %d retries: %w", step.MaxRetries, lastErr)
}

func (e *Engine) dispatch(ctx context.Context, stepType models.StepType, input map[string]any, asset *adapters.Asset) (*adapters.Result, error) {
	switch stepType {
	case models.StepRemoteShell:
		return e.shell.Execute(ctx, shellInput(input, asset))
	case models.StepRemotePowerShell:
		return e.powershell.Execute(ctx, powershellInput(input, asset))
	case models.StepHTTP:
		return e.http.Execute(ctx, httpInput(input))
	case models.StepAssetQuery:
		return e.assetQuery(ctx, input)
	case models.StepLocalCommand:
		return e.local.Execute(ctx, localInput(input))
	case models.StepFileOp:
		return e.fileOp(ctx, input, asset)
	case models.StepValidation:
		return &adapters.Result{}, nil // no dispatch; validateResult does the work
	default:
		return e.local.Execute(ctx, localInput(input))
	}
}

func (e *Engine) assetQuery(ctx context.Context, input map[string]any) (*adapters.Result, error) {
	filter, _ := input["query"].(map[string]any)
	found, err := e.assets.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, 1)
	data["assets"] = found
	return &adapters.Result{Data: data}, nil
}

// fileOp has no dedicated transport; it reuses the shell or
// local-command transport depending on whether the step has a remote
// target, constructing a small idempotent shell script from the declared
// path/content/mode/action.
func (e *Engine) fileOp(ctx context.Context, input map[string]any, asset *adapters.Asset) (*adapters.Result, error) {
	command := fileOpCommand(input)
	if asset != nil {
		return e.shell.Execute(ctx, adapters.ShellInput{
			Host:       asset.Hostname,
			User:       stringField(input, "user"),
			Password:   stringField(input, "password"),
			PrivateKey: stringField(input, "private_key"),
			Command:    command,
			Timeout:    durationField(input, "timeout_seconds"),
		})
	}
	return e.local.Execute(ctx, adapters.LocalCommandInput{
		Command: "sh",
		Args:    []string{"-c", command},
		Timeout: durationField(input, "timeout_seconds"),
	})
}

func (e *Engine) failStep(ctx context.Context, exec *models.Execution, step *models.ExecutionStep, err error, started time.Time, stepType models.StepType) error {
	step.Status = models.StepStatusFailed
	_ = e.steps.Complete(ctx, step.ID, models.StepStatusFailed, nil, err.Error(), 0)
	e.recordStepEvent(ctx, exec, step, models.EventStepFailed, err.Error())
	if e.metrics != nil {
		e.metrics.RecordStepDuration(stepType, models.StepStatusFailed, time.Since(started))
	}
	return err
}

func (e *Engine) completeStep(ctx context.Context, exec *models.Execution, step *models.ExecutionStep, result *adapters.Result, started time.Time, stepType models.StepType) error {
	output := resultToOutput(result)
	duration := int64(0)
	if result != nil {
		duration = result.Duration.Milliseconds()
	}
	step.Status = models.StepStatusCompleted
	if err := e.steps.Complete(ctx, step.ID, models.StepStatusCompleted, output, "", duration); err != nil {
		return fmt.Errorf("recording completed step: %w", err)
	}
	e.recordStepEvent(ctx, exec, step, models.EventStepSucceeded, "")
	if e.metrics != nil {
		e.metrics.RecordStepDuration(stepType, models.StepStatusCompleted, time.Since(started))
	}
	return nil
}

func (e *Engine) recordStepEvent(ctx context.Context, exec *models.Execution, step *models.ExecutionStep, eventType, errMsg string) {
	e.recordEvent(ctx, exec, eventType, step.ID, errMsg)
}

func (e *Engine) recordEvent(ctx context.Context, exec *models.Execution, eventType, stepID, errMsg string) {
	if e.events == nil {
		return
	}
	ev := &models.ExecutionEvent{
		ExecutionID:  exec.ID,
		EventType:    eventType,
		ActorID:      exec.ActorID,
		ErrorMessage: errMsg,
		TraceID:      exec.TraceID,
		Details:      map[string]any{"step_id": stepID},
	}
	channel := channelFor(exec.TenantID, exec.ID)
	payload := map[string]any{"event_type": eventType, "step_id": stepID, "execution_id": exec.ID}
	if err := e.events.Append(ctx, ev, channel, payload); err != nil {
		slog.Warn("failed to record execution event", "execution_id", exec.ID, "event_type", eventType, "error", err)
	}
}

func channelFor(tenantID, executionID string) string {
	return fmt.Sprintf("execution:%s:%s", tenantID, executionID)
}

func expandSteps(exec *models.Execution, defs []models.StepDef) []*models.ExecutionStep {
	rows := make([]*models.ExecutionStep, len(defs))
	for i, def := range defs {
		rows[i] = &models.ExecutionStep{
			ID:             uuid.NewString(),
			ExecutionID:    exec.ID,
			StepIndex:      i,
			StepType:       def.Type,
			TargetAssetID:  def.TargetAssetID,
			TargetHostname: def.TargetHostname,
			InputData:      def.Input,
			Status:         models.StepStatusPending,
			MaxRetries:     def.MaxRetries,
			Critical:       def.Critical,
		}
	}
	return rows
}

func lockAssetIDs(target string, required []string) []string {
	var ids []string
	if target != "" {
		ids = append(ids, target)
	}
	ids = append(ids, required...)
	return ids
}

// defaultAction supplies an ActionClass for timeout lookup when a step
// doesn't declare one explicitly.
func defaultAction(def models.StepDef, stepType models.StepType) models.ActionClass {
	if def.Action != "" {
		return def.Action
	}
	switch stepType {
	case models.StepAssetQuery, models.StepValidation, models.StepHTTP:
		return models.ActionRead
	default:
		return models.ActionWrite
	}
}

func resultToOutput(res *adapters.Result) map[string]any {
	if res == nil {
		return nil
	}
	out := map[string]any{}
	if res.ExitCode != nil {
		out["exit_code"] = *res.ExitCode
	}
	if res.Stdout != "" {
		out["stdout"] = res.Stdout
	}
	if res.Stderr != "" {
		out["stderr"] = res.Stderr
	}
	if res.StatusCode != 0 {
		out["status_code"] = res.StatusCode
	}
	if res.Body != "" {
		out["body"] = res.Body
	}
	for k, v := range res.Data {
		out[k] = v
	}
	return out
}

func shellInput(input map[string]any, asset *adapters.Asset) adapters.ShellInput {
	host := stringField(input, "host")
	if host == "" && asset != nil {
		host = asset.Hostname
	}
	return adapters.ShellInput{
		Host:       host,
		Port:       intField(input, "port"),
		User:       stringField(input, "user"),
		Password:   stringField(input, "password"),
		PrivateKey: stringField(input, "private_key"),
		Command:    stringField(input, "command"),
		Timeout:    durationField(input, "timeout_seconds"),
	}
}

func powershellInput(input map[string]any, asset *adapters.Asset) adapters.PowerShellInput {
	host := stringField(input, "host")
	if host == "" && asset != nil {
		host = asset.Hostname
	}
	return adapters.PowerShellInput{
		Host:     host,
		Port:     intField(input, "port"),
		User:     stringField(input, "user"),
		Password: stringField(input, "password"),
		HTTPS:    boolField(input, "https"),
		Insecure: boolField(input, "insecure"),
		Script:   stringField(input, "script"),
		Timeout:  durationField(input, "timeout_seconds"),
	}
}

func httpInput(input map[string]any) adapters.HTTPInput {
	headers := map[string]string{}
	if raw, ok := input["headers"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	query := map[string]string{}
	if raw, ok := input["query"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				query[k] = s
			}
		}
	}
	return adapters.HTTPInput{
		Method:      stringField(input, "method"),
		URL:         stringField(input, "url"),
		Headers:     headers,
		Query:       query,
		Body:        stringField(input, "body"),
		AuthHeader:  stringField(input, "auth_header"),
		Timeout:     durationField(input, "timeout_seconds"),
		InsecureTLS: boolField(input, "insecure_tls"),
	}
}

func localInput(input map[string]any) adapters.LocalCommandInput {
	var args []string
	if raw, ok := input["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}
	env := map[string]string{}
	if raw, ok := input["env"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				env[k] = s
			}
		}
	}
	return adapters.LocalCommandInput{
		Command: stringField(input, "command"),
		Args:    args,
		Env:     env,
		Dir:     stringField(input, "dir"),
		Timeout: durationField(input, "timeout_seconds"),
	}
}

func fileOpCommand(input map[string]any) string {
	path := stringField(input, "path")
	action := stringField(input, "action")
	switch action {
	case "delete":
		return fmt.Sprintf("rm -f %s", path)
	case "chmod":
		return fmt.Sprintf("chmod %s %s", stringField(input, "mode"), path)
	default: // write/template
		content := stringField(input, "content")
		return fmt.Sprintf("cat > %s <<'EXECUTION_CORE_EOF'\n%s\nEXECUTION_CORE_EOF", path, content)
	}
}

func stringField(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func intField(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func boolField(input map[string]any, key string) bool {
	b, _ := input[key].(bool)
	return b
}

func durationField(input map[string]any, key string) time.Duration {
	switch v := input[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

// IsCancelled reports whether err represents the engine's own cancellation
// sentinel, for callers (e.g. the queue worker) deciding whether to retry.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
