package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Reaper is the subset of pkg/store.QueueStore the pool's lease-reaping
// loop needs, kept separate from Worker's QueueStore so the two can be
// tested independently.
type Reaper interface {
	ReapExpiredLeases(ctx context.Context) ([]*models.QueueItem, error)
	RequeueForRetry(ctx context.Context, queueID string) error
	Stats(ctx context.Context) (map[models.QueueStatus]int, error)
}

// WorkerPool owns the set of Workers plus the background lease-reaper
// that reclaims work abandoned by a crashed or disconnected worker.
type WorkerPool struct {
	podID   string
	cfg     *config.QueueConfig
	reaper  Reaper
	newWork func(id string) *Worker

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	cancelMgr *cancellation.Manager

	mu            sync.RWMutex
	workers       []*Worker
	nextWorkerSeq int
	active        map[string]context.CancelFunc
	lastReapScan  time.Time
	leasesReaped  int
	restarts      int
}

// NewWorkerPool constructs a WorkerPool. newWork builds one Worker given a
// worker ID, deferred to the caller so construction wiring (store, engine,
// notify) stays in cmd/execution-core rather than leaking into this package.
func NewWorkerPool(podID string, cfg *config.QueueConfig, reaper Reaper, cancelMgr *cancellation.Manager, newWork func(id string) *Worker) *WorkerPool {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	return &WorkerPool{
		podID:     podID,
		cfg:       cfg,
		reaper:    reaper,
		newWork:   newWork,
		cancelMgr: cancelMgr,
		stopCh:    make(chan struct{}),
		active:    make(map[string]context.CancelFunc),
	}
}

// Start spawns the configured number of worker goroutines plus the
// lease-reaper loop. Safe to call once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)
	p.mu.Lock()
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.spawnWorkerLocked(ctx)
	}
	p.mu.Unlock()

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.runReapLoop(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.runHealthLoop(ctx)
	}()
}

// spawnWorkerLocked creates and starts one worker. Caller holds p.mu.
func (p *WorkerPool) spawnWorkerLocked(ctx context.Context) *Worker {
	id := fmt.Sprintf("%s-worker-%d", p.podID, p.nextWorkerSeq)
	p.nextWorkerSeq++
	w := p.newWork(id)
	p.workers = append(p.workers, w)
	w.Start(ctx)
	return w
}

// Scale grows or shrinks the pool to n workers. Shrinking stops the excess
// workers gracefully — each finishes its in-flight execution first.
func (p *WorkerPool) Scale(ctx context.Context, n int) {
	if n < 0 {
		n = 0
	}

	p.mu.Lock()
	current := len(p.workers)
	if n >= current {
		for i := current; i < n; i++ {
			p.spawnWorkerLocked(ctx)
		}
		p.mu.Unlock()
		if n > current {
			slog.Info("scaled worker pool up", "pod_id", p.podID, "from", current, "to", n)
		}
		return
	}

	victims := append([]*Worker(nil), p.workers[n:]...)
	p.workers = p.workers[:n]
	p.mu.Unlock()

	for _, w := range victims {
		w.Stop()
	}
	slog.Info("scaled worker pool down", "pod_id", p.podID, "from", current, "to", n)
}

// Stop drains the pool: workers stop fetching new items, every in-flight
// execution is cancelled with reason system-shutdown so its engine exits at
// the next step boundary, and the whole drain is bounded by the configured
// graceful shutdown timeout.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool", "pod_id", p.podID)
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.RLock()
	workers := append([]*Worker(nil), p.workers...)
	inflight := make([]string, 0, len(p.active))
	for id := range p.active {
		inflight = append(inflight, id)
	}
	p.mu.RUnlock()

	if p.cancelMgr != nil {
		for _, id := range inflight {
			p.cancelMgr.Cancel(id, models.ReasonSystemShutdown, "worker pool shutting down")
		}
	}

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			w.Stop()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		p.wg.Wait()
		close(done)
	}()

	drain := p.cfg.GracefulShutdownTimeout
	if drain <= 0 {
		drain = 5 * time.Minute
	}
	select {
	case <-done:
		slog.Info("worker pool stopped")
	case <-time.After(drain):
		slog.Warn("worker pool drain timeout elapsed, exiting with executions still in flight", "timeout", drain)
	}
}

// RegisterExecution implements ExecutionRegistry.
func (p *WorkerPool) RegisterExecution(executionID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[executionID] = cancel
}

// UnregisterExecution implements ExecutionRegistry.
func (p *WorkerPool) UnregisterExecution(executionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, executionID)
}

// CancelExecution requests cancellation of an in-flight execution, both
// through the cooperative token (so the engine stops at the next step
// boundary) and by cancelling the worker's run context directly if this
// pod happens to be the one running it. Returns true if this pod is
// running the execution.
func (p *WorkerPool) CancelExecution(executionID string, reason models.CancellationReason, message string) bool {
	p.cancelMgr.Cancel(executionID, reason, message)

	p.mu.RLock()
	cancel, ok := p.active[executionID]
	p.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// runHealthLoop periodically inspects every worker and replaces any whose
// polling loop has gone silent past the stall threshold. A
// worker mid-execution is exempt — the timeout watchdog bounds that case.
func (p *WorkerPool) runHealthLoop(ctx context.Context) {
	interval := p.cfg.WorkerHealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.restartStalledWorkers(ctx)
		}
	}
}

func (p *WorkerPool) restartStalledWorkers(ctx context.Context) {
	threshold := p.cfg.WorkerStallThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	var stalled []*Worker
	p.mu.Lock()
	for i, w := range p.workers {
		h := w.Health()
		if h.Status != WorkerStatusIdle || time.Since(h.LastActivity) < threshold {
			continue
		}
		slog.Warn("worker stalled, restarting", "worker_id", h.ID, "last_activity", h.LastActivity)
		stalled = append(stalled, w)
		p.workers[i] = p.spawnReplacementLocked(ctx)
		p.restarts++
	}
	p.mu.Unlock()

	for _, w := range stalled {
		w.Stop()
	}
}

// spawnReplacementLocked builds and starts a replacement worker without
// appending it to p.workers (the caller slots it in place). Caller holds p.mu.
func (p *WorkerPool) spawnReplacementLocked(ctx context.Context) *Worker {
	id := fmt.Sprintf("%s-worker-%d", p.podID, p.nextWorkerSeq)
	p.nextWorkerSeq++
	w := p.newWork(id)
	w.Start(ctx)
	return w
}

func (p *WorkerPool) runReapLoop(ctx context.Context) {
	interval := p.cfg.LeaseReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.reapOnce(ctx); err != nil {
				slog.Error("lease reap pass failed", "error", err)
			}
		}
	}
}

func (p *WorkerPool) reapOnce(ctx context.Context) error {
	reaped, err := p.reaper.ReapExpiredLeases(ctx)
	if err != nil {
		return fmt.Errorf("reaping expired leases: %w", err)
	}

	p.mu.Lock()
	p.lastReapScan = time.Now()
	p.leasesReaped += len(reaped)
	p.mu.Unlock()

	if len(reaped) > 0 {
		slog.Warn("reaped expired queue leases", "count", len(reaped))
	}
	return nil
}

// Health reports the pool's aggregate health, combining live worker state
// with current queue depth.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	stats, err := p.reaper.Stats(ctx)
	if err != nil {
		slog.Error("failed to query queue stats for health check", "error", err)
	}

	p.mu.RLock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.RUnlock()

	workerStats := make([]WorkerHealth, len(workers))
	active := 0
	for i, w := range workers {
		h := w.Health()
		workerStats[i] = h
		if h.Status == WorkerStatusWorking {
			active++
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return &PoolHealth{
		PodID:            p.podID,
		ActiveWorkers:    active,
		TotalWorkers:     len(workers),
		ActiveExecutions: len(p.active),
		MaxConcurrent:    p.cfg.MaxConcurrentExecutions,
		QueueDepth:       stats[models.QueueStatusPending],
		WorkerStats:      workerStats,
		LastReapScan:     p.lastReapScan,
		LeasesReaped:     p.leasesReaped,
		WorkerRestarts:   p.restarts,
	}
}
