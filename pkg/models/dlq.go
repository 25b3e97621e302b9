package models

import "time"

// DeadLetterItem holds an execution that exhausted its queue-level retry
// budget. Archival and manual requeue are tracked only here, never on the
// originating QueueItem.
type DeadLetterItem struct {
	ID            string
	ExecutionID   string
	QueueID       string
	FinalError    string
	AttemptCount  int
	OriginalPlan  Plan
	FailedAt      time.Time
	Archived      bool
	ArchivedAt    *time.Time
	Requeued      bool
	RequeuedAt    *time.Time
	RequeuedBy    string
}
