package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// QueueStore implements the durable priority queue: enqueue, lease-based
// dequeue via SELECT ... FOR UPDATE SKIP LOCKED, heartbeat renewal, and
// stale-lease reaping, with explicit lease tokens rather than an in-place
// status flip.
type QueueStore struct {
	db *Client
}

// NewQueueStore constructs a QueueStore.
func NewQueueStore(db *Client) *QueueStore {
	return &QueueStore{db: db}
}

// ErrNoItemsAvailable indicates no pending queue item is claimable right
// now, distinguishing "nothing to do" from a real error.
var ErrNoItemsAvailable = errors.New("store: no queue items available")

// Enqueue inserts a new pending queue item for an execution.
func (s *QueueStore) Enqueue(ctx context.Context, item *models.QueueItem) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO queue_items (
			queue_id, execution_id, priority, sla_class, max_attempts, status,
			enqueued_at, visibility_timeout_seconds
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.QueueID, item.ExecutionID, item.Priority, item.SLAClass, item.MaxAttempts,
		models.QueueStatusPending, time.Now(), item.VisibilityTimeoutSeconds,
	)
	if err != nil {
		return fmt.Errorf("enqueuing item: %w", err)
	}
	return nil
}

// Claim atomically leases up to batch pending items ordered by priority
// then FIFO within priority, using FOR UPDATE SKIP LOCKED so concurrent
// workers never contend on the same rows. Each claimed item gets its own
// fresh lease token; every later state change on the item must present it.
func (s *QueueStore) Claim(ctx context.Context, workerID string, batch int, visibilityTimeout time.Duration) ([]*models.QueueItem, error) {
	if batch < 1 {
		batch = 1
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, queueSelectColumns+`
		WHERE status = $1
		ORDER BY priority ASC, enqueued_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, models.QueueStatusPending, batch)
	if err != nil {
		return nil, fmt.Errorf("querying pending queue items: %w", err)
	}

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading pending queue items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItemsAvailable
	}

	now := time.Now()
	leaseExpiry := now.Add(visibilityTimeout)
	for _, item := range items {
		leaseToken := uuid.NewString()
		_, err = tx.Exec(ctx, `
			UPDATE queue_items
			SET status = $1, lease_token = $2, lease_expires_at = $3, dequeued_at = $4,
			    attempt_count = attempt_count + 1, worker_id = $5
			WHERE queue_id = $6`,
			models.QueueStatusLeased, leaseToken, leaseExpiry, now, workerID, item.QueueID,
		)
		if err != nil {
			return nil, fmt.Errorf("claiming queue item %s: %w", item.QueueID, err)
		}

		item.Status = models.QueueStatusLeased
		item.LeaseToken = leaseToken
		item.LeaseExpiresAt = &leaseExpiry
		item.AttemptCount++
		item.WorkerID = workerID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return items, nil
}

// RenewLease extends the lease on an in-flight item, called from the
// worker's heartbeat loop (modeled on Worker.runHeartbeat). Fails with
// ErrLeaseMismatch if the token no longer matches — the item was already
// reaped and reassigned.
func (s *QueueStore) RenewLease(ctx context.Context, queueID, leaseToken string, extension time.Duration) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE queue_items SET lease_expires_at = now() + $1
		WHERE queue_id = $2 AND lease_token = $3 AND status = $4`,
		extension, queueID, leaseToken, models.QueueStatusLeased,
	)
	if err != nil {
		return fmt.Errorf("renewing lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseMismatch
	}
	return nil
}

// Complete marks a leased item completed.
func (s *QueueStore) Complete(ctx context.Context, queueID, leaseToken string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE queue_items SET status = $1, completed_at = now()
		WHERE queue_id = $2 AND lease_token = $3`,
		models.QueueStatusCompleted, queueID, leaseToken,
	)
	if err != nil {
		return fmt.Errorf("completing queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseMismatch
	}
	return nil
}

// Fail records a failed attempt. If attempt_count has reached max_attempts
// the caller is responsible for routing the execution to the dead-letter
// queue instead of calling RequeueForRetry.
func (s *QueueStore) Fail(ctx context.Context, queueID, leaseToken, lastError string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE queue_items SET status = $1, last_error = $2
		WHERE queue_id = $3 AND lease_token = $4`,
		models.QueueStatusFailed, lastError, queueID, leaseToken,
	)
	if err != nil {
		return fmt.Errorf("failing queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseMismatch
	}
	return nil
}

// RequeueForRetry returns a failed item to pending for another attempt,
// clearing its lease so Claim can pick it up again.
func (s *QueueStore) RequeueForRetry(ctx context.Context, queueID string) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE queue_items
		SET status = $1, lease_token = '', lease_expires_at = NULL, worker_id = ''
		WHERE queue_id = $2`,
		models.QueueStatusPending, queueID,
	)
	return err
}

// CancelByExecution flips a still-pending queue item to cancelled so a
// worker's subsequent Claim never dequeues it, covering the window between
// an execution being cancelled via the API and a worker actually claiming
// it. A no-op (zero rows) if the item is already leased or terminal — the
// caller is racing a worker, not erroring.
func (s *QueueStore) CancelByExecution(ctx context.Context, executionID string) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE queue_items SET status = $1
		WHERE execution_id = $2 AND status = $3`,
		models.QueueStatusCancelled, executionID, models.QueueStatusPending,
	)
	if err != nil {
		return fmt.Errorf("cancelling queue item: %w", err)
	}
	return nil
}

// ReapExpiredLeases returns leased items whose lease has expired without a
// heartbeat renewal to pending, making them claimable again.
func (s *QueueStore) ReapExpiredLeases(ctx context.Context) ([]*models.QueueItem, error) {
	rows, err := s.db.Pool.Query(ctx, `
		UPDATE queue_items
		SET status = $1, lease_token = '', lease_expires_at = NULL, worker_id = ''
		WHERE status = $2 AND lease_expires_at < now()
		RETURNING queue_id, execution_id, priority, sla_class, lease_token, lease_expires_at,
		          attempt_count, max_attempts, last_error, status, enqueued_at, dequeued_at,
		          completed_at, visibility_timeout_seconds, worker_id`,
		models.QueueStatusPending, models.QueueStatusLeased,
	)
	if err != nil {
		return nil, fmt.Errorf("reaping expired leases: %w", err)
	}
	defer rows.Close()

	var reaped []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		reaped = append(reaped, item)
	}
	return reaped, rows.Err()
}

// Stats returns queue depth broken down by status, used by pkg/monitoring.
func (s *QueueStore) Stats(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT status, count(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status models.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning queue stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const queueSelectColumns = `
	SELECT queue_id, execution_id, priority, sla_class, lease_token, lease_expires_at,
	       attempt_count, max_attempts, last_error, status, enqueued_at, dequeued_at,
	       completed_at, visibility_timeout_seconds, worker_id
	FROM queue_items`

func scanQueueItem(row pgx.Row) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.QueueID, &item.ExecutionID, &item.Priority, &item.SLAClass, &item.LeaseToken,
		&item.LeaseExpiresAt, &item.AttemptCount, &item.MaxAttempts, &item.LastError, &item.Status,
		&item.EnqueuedAt, &item.DequeuedAt, &item.CompletedAt, &item.VisibilityTimeoutSeconds,
		&item.WorkerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning queue item: %w", err)
	}
	return &item, nil
}
