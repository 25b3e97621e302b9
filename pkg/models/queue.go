package models

import "time"

// QueueStatus is the lifecycle state of one QueueItem row.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusLeased    QueueStatus = "leased"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// Priority is the coarse ordering key for dequeue: lower value dequeues
// first, ties broken by EnqueuedAt ascending.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 5
	PriorityLow    Priority = 10
)

// QueueItem is the authoritative column set for the queue table.
// archived/archived_at/requeued fields live only on DeadLetterItem: a queue
// item that exhausts its retries is replaced by a dead-letter row rather
// than flagged in place.
type QueueItem struct {
	QueueID                 string
	ExecutionID             string
	Priority                Priority
	SLAClass                SLAClass
	LeaseToken              string
	LeaseExpiresAt          *time.Time
	AttemptCount            int
	MaxAttempts             int
	LastError               string
	Status                  QueueStatus
	EnqueuedAt              time.Time
	DequeuedAt              *time.Time
	CompletedAt             *time.Time
	VisibilityTimeoutSeconds int
	WorkerID                string
}
