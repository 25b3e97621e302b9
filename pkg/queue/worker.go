package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/store"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
)

// QueueStore is the subset of pkg/store.QueueStore a Worker depends on.
type QueueStore interface {
	Claim(ctx context.Context, workerID string, batch int, visibilityTimeout time.Duration) ([]*models.QueueItem, error)
	RenewLease(ctx context.Context, queueID, leaseToken string, extension time.Duration) error
	Complete(ctx context.Context, queueID, leaseToken string) error
	Fail(ctx context.Context, queueID, leaseToken, lastError string) error
	RequeueForRetry(ctx context.Context, queueID string) error
}

// ExecutionStore is the subset of pkg/store.ExecutionStore a Worker depends on.
type ExecutionStore interface {
	Get(ctx context.Context, id string) (*models.Execution, error)
	MarkStarted(ctx context.Context, id, workerID string) error
	UpdateStatus(ctx context.Context, id string, from, to models.Status, reason models.CancellationReason) error
	Complete(ctx context.Context, id string, status models.Status, result map[string]any, errMsg string) error
}

// DLQStore is the subset of pkg/store.DLQStore a Worker depends on.
type DLQStore interface {
	Create(ctx context.Context, item *models.DeadLetterItem) error
}

// DeadLetterNotifier is the narrow interface onto pkg/notify's dead-letter
// alert, kept optional (nil disables notification, never processing).
type DeadLetterNotifier interface {
	NotifyDeadLettered(ctx context.Context, executionID, finalError string)
}

// Worker polls the queue for leased work, dispatches each claimed
// execution to the Execution Engine, renews its lease while in flight, and
// routes exhausted retries to the dead-letter queue.
type Worker struct {
	id     string
	podID  string
	queue  QueueStore
	execs  ExecutionStore
	dlq    DLQStore
	notify DeadLetterNotifier

	executor Executor
	cancel   *cancellation.Manager
	timeout  *timeoutpolicy.Table
	cfg      *config.QueueConfig

	registry ExecutionRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                 sync.RWMutex
	status             WorkerStatus
	currentExecutionID string
	processed          int
	lastActivity       time.Time
}

// ExecutionRegistry lets the pool track which workers are processing which
// execution, so cancellation requests made while the core is mid-run can be
// delivered promptly even without a dedicated per-session channel.
type ExecutionRegistry interface {
	RegisterExecution(executionID string, cancel context.CancelFunc)
	UnregisterExecution(executionID string)
}

// NewWorker constructs a Worker.
func NewWorker(id, podID string, queue QueueStore, execs ExecutionStore, dlq DLQStore, notify DeadLetterNotifier, executor Executor, cancelMgr *cancellation.Manager, timeoutTable *timeoutpolicy.Table, cfg *config.QueueConfig, registry ExecutionRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        queue,
		execs:        execs,
		dlq:          dlq,
		notify:       notify,
		executor:     executor,
		cancel:       cancelMgr,
		timeout:      timeoutTable,
		cfg:          cfg,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current execution, if
// any, to finish. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                  w.id,
		Status:              w.status,
		CurrentExecutionID: w.currentExecutionID,
		Processed:           w.processed,
		LastActivity:        w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			w.touch()
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNoItemsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing queue item", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	jitter := time.Duration(0)
	if w.cfg.PollIntervalJitter > 0 {
		jitter = time.Duration(rand.Int64N(int64(w.cfg.PollIntervalJitter)))
	}
	return w.cfg.PollInterval + jitter
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims up to a batch of queue items and runs each to
// completion in claim order. Executions within a batch still run one at a
// time; the batch only amortizes claim round-trips.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	batch := w.cfg.BatchSize
	if batch < 1 {
		batch = 1
	}
	items, err := w.queue.Claim(ctx, w.id, batch, w.cfg.VisibilityTimeout)
	if err != nil {
		return err
	}

	for _, item := range items {
		select {
		case <-w.stopCh:
			// Shutting down mid-batch: drop the lease renewal for the
			// remaining items and let the reaper return them to pending.
			return nil
		default:
		}
		if err := w.processItem(ctx, item); err != nil {
			slog.Error("error processing claimed queue item", "queue_id", item.QueueID, "error", err)
		}
	}
	return nil
}

// processItem loads one claimed item's execution and runs it, handling
// retry/dead-letter routing on failure.
func (w *Worker) processItem(ctx context.Context, item *models.QueueItem) error {
	leaseToken := item.LeaseToken
	log := slog.With("execution_id", item.ExecutionID, "queue_id", item.QueueID, "worker_id", w.id)
	log.Info("execution claimed")

	exec, err := w.execs.Get(ctx, item.ExecutionID)
	if err != nil {
		_ = w.queue.Fail(ctx, item.QueueID, leaseToken, fmt.Sprintf("loading execution: %v", err))
		return fmt.Errorf("loading execution %s: %w", item.ExecutionID, err)
	}

	if err := w.execs.MarkStarted(ctx, exec.ID, w.id); err != nil {
		log.Warn("failed to record execution start", "error", err)
	}
	_ = w.execs.UpdateStatus(ctx, exec.ID, models.StatusQueued, models.StatusRunning, "")
	exec.Status = models.StatusRunning

	w.setStatus(WorkerStatusWorking, exec.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	execTimeout := w.executionTimeout(exec)
	runCtx, cancelRun := context.WithTimeout(ctx, execTimeout)
	defer cancelRun()

	if w.registry != nil {
		w.registry.RegisterExecution(exec.ID, cancelRun)
		defer w.registry.UnregisterExecution(exec.ID)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(runCtx)
	defer stopHeartbeat()
	go w.runHeartbeat(heartbeatCtx, exec.ID, item.QueueID, leaseToken)

	watchdogCtx, stopWatchdog := context.WithCancel(runCtx)
	defer stopWatchdog()
	go w.runTimeoutWatchdog(watchdogCtx, exec.ID, execTimeout)

	status, runErr := w.executor.Run(runCtx, exec)
	stopHeartbeat()
	stopWatchdog()

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	if runErr != nil {
		return w.handleFailure(ctx, item, leaseToken, exec, runErr)
	}

	if err := w.queue.Complete(ctx, item.QueueID, leaseToken); err != nil {
		log.Warn("failed to mark queue item completed", "error", err)
	}
	log.Info("execution finished", "status", status)
	return nil
}

// runTimeoutWatchdog cancels the execution's cooperative token if the SLA
// deadline elapses before the engine finishes on its own.
func (w *Worker) runTimeoutWatchdog(ctx context.Context, executionID string, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
		w.cancel.Cancel(executionID, models.ReasonTimeout, fmt.Sprintf("execution exceeded %s SLA timeout", timeout))
	}
}

func (w *Worker) executionTimeout(exec *models.Execution) time.Duration {
	timeout, err := w.timeout.ExecutionTimeout(exec.SLAClass, exec.PlanSnapshot.Steps, defaultStepAction)
	if err != nil || timeout <= 0 {
		return 30 * time.Minute
	}
	return timeout
}

func defaultStepAction(def models.StepDef) models.ActionClass {
	if def.Action != "" {
		return def.Action
	}
	return models.ActionWrite
}

// runHeartbeat renews the queue lease while the execution is in flight. A
// failed renewal means this worker can no longer prove ownership of the
// item, so the execution is cancelled with reason error rather than left
// racing whichever worker re-claims it.
func (w *Worker) runHeartbeat(ctx context.Context, executionID, queueID, leaseToken string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(context.Background(), interval)
			err := w.queue.RenewLease(hbCtx, queueID, leaseToken, w.cfg.VisibilityTimeout)
			cancel()
			if err != nil {
				slog.Warn("queue lease heartbeat failed, cancelling execution", "queue_id", queueID, "error", err)
				w.cancel.Cancel(executionID, models.ReasonError, "lease renewal failed, worker can no longer prove ownership")
				return
			}
		}
	}
}

// handleFailure records the failed attempt and either requeues it for
// retry or routes it to the dead-letter queue if attempts are exhausted.
func (w *Worker) handleFailure(ctx context.Context, item *models.QueueItem, leaseToken string, exec *models.Execution, runErr error) error {
	log := slog.With("execution_id", exec.ID, "queue_id", item.QueueID)

	if err := w.queue.Fail(ctx, item.QueueID, leaseToken, runErr.Error()); err != nil {
		log.Warn("failed to record queue item failure", "error", err)
	}

	if item.AttemptCount < item.MaxAttempts {
		if err := w.queue.RequeueForRetry(ctx, item.QueueID); err != nil {
			return fmt.Errorf("requeuing execution %s for retry: %w", exec.ID, err)
		}
		_ = w.execs.UpdateStatus(ctx, exec.ID, models.StatusRunning, models.StatusQueued, "")
		log.Info("execution requeued for retry", "attempt", item.AttemptCount, "max_attempts", item.MaxAttempts)
		return nil
	}

	return w.deadLetter(ctx, item, exec, runErr)
}

// deadLetter moves an execution that exhausted its retry budget to the
// dead-letter queue and marks it terminally failed.
func (w *Worker) deadLetter(ctx context.Context, item *models.QueueItem, exec *models.Execution, runErr error) error {
	dlqItem := &models.DeadLetterItem{
		ID:           uuid.NewString(),
		ExecutionID:  exec.ID,
		QueueID:      item.QueueID,
		FinalError:   runErr.Error(),
		AttemptCount: item.AttemptCount,
		OriginalPlan: exec.PlanSnapshot,
		FailedAt:     time.Now(),
	}
	if err := w.dlq.Create(ctx, dlqItem); err != nil {
		return fmt.Errorf("dead-lettering execution %s: %w", exec.ID, err)
	}
	if err := w.execs.Complete(ctx, exec.ID, models.StatusFailed, nil, runErr.Error()); err != nil {
		slog.Warn("failed to mark dead-lettered execution terminal", "execution_id", exec.ID, "error", err)
	}
	if w.notify != nil {
		w.notify.NotifyDeadLettered(ctx, exec.ID, runErr.Error())
	}
	slog.Warn("execution exhausted retries, routed to dead-letter queue", "execution_id", exec.ID, "attempts", item.AttemptCount)
	return nil
}

// touch records loop liveness so the pool's health check can tell an idle
// worker from a dead goroutine.
func (w *Worker) touch() {
	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) setStatus(status WorkerStatus, executionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentExecutionID = executionID
	w.lastActivity = time.Now()
}
