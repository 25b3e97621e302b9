package config

import "time"

// QueueConfig contains queue and worker pool configuration. These values
// control how queue items are polled, leased, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod. Each
	// worker independently polls and processes queue items.
	WorkerCount int `yaml:"worker_count"`

	// BatchSize is how many queue items a worker leases per dequeue. Items
	// in a batch are still executed one at a time; a larger batch trades
	// per-item claim round-trips for longer lease occupancy.
	BatchSize int `yaml:"batch_size"`

	// MaxConcurrentExecutions is the global limit of concurrent executions
	// being processed across ALL replicas/pods, enforced by a COUNT(*)
	// check against running executions.
	MaxConcurrentExecutions int `yaml:"max_concurrent_executions"`

	// PollInterval is the base interval for checking pending queue items.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval. Actual
	// interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// VisibilityTimeout is the default lease duration granted to a worker
	// claiming a queue item, renewed by heartbeats while processing.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// HeartbeatInterval is how often a worker renews its lease while a
	// queue item is in flight.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for active executions
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// LeaseReapInterval is how often to scan for expired leases left behind
	// by a worker that crashed or lost connectivity.
	LeaseReapInterval time.Duration `yaml:"lease_reap_interval"`

	// LeaseReapThreshold is how long a lease may sit expired before the
	// item is reclaimed for another attempt.
	LeaseReapThreshold time.Duration `yaml:"lease_reap_threshold"`

	// WorkerHealthCheckInterval is how often the pool inspects each worker
	// and restarts any whose polling loop has died.
	WorkerHealthCheckInterval time.Duration `yaml:"worker_health_check_interval"`

	// WorkerStallThreshold is how long a worker may go without loop
	// activity before the pool considers it dead and restarts it.
	WorkerStallThreshold time.Duration `yaml:"worker_stall_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:               5,
		BatchSize:                 1,
		MaxConcurrentExecutions:   20,
		PollInterval:              1 * time.Second,
		PollIntervalJitter:        500 * time.Millisecond,
		VisibilityTimeout:         5 * time.Minute,
		HeartbeatInterval:         1 * time.Minute,
		GracefulShutdownTimeout:   5 * time.Minute,
		LeaseReapInterval:         1 * time.Minute,
		LeaseReapThreshold:        2 * time.Minute,
		WorkerHealthCheckInterval: 30 * time.Second,
		WorkerStallThreshold:      10 * time.Minute,
	}
}
