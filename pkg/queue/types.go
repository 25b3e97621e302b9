// Package queue implements the durable priority queue's runtime side: the
// Manager that enqueues newly-submitted executions, and the WorkerPool
// that leases, runs, and retries them via the Execution Engine.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ErrAtCapacity indicates the global concurrent execution limit
// (config.QueueConfig.MaxConcurrentExecutions) has been reached.
var ErrAtCapacity = errors.New("queue: at capacity")

// Executor runs one execution to completion. Satisfied by *pkg/engine.Engine.
type Executor interface {
	Run(ctx context.Context, exec *models.Execution) (models.Status, error)
}

// WorkerStatus is the coarse state of a single worker goroutine.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports one worker's state for the pool health check.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            WorkerStatus `json:"status"`
	CurrentExecutionID string   `json:"current_execution_id,omitempty"`
	Processed         int       `json:"processed"`
	LastActivity      time.Time `json:"last_activity"`
}

// PoolHealth reports the worker pool's aggregate state.
type PoolHealth struct {
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveExecutions int            `json:"active_executions"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastReapScan     time.Time      `json:"last_reap_scan"`
	LeasesReaped     int            `json:"leases_reaped"`
	WorkerRestarts   int            `json:"worker_restarts"`
}
