package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ExecutionStore persists models.Execution rows with raw SQL rather than
// through generated ORM code. Every status transition it writes is paired
// with an audit event row in the same transaction — there is no way to move
// an execution between states through this store without leaving an event.
type ExecutionStore struct {
	db     *Client
	events *EventStore
}

// NewExecutionStore constructs an ExecutionStore. events receives the
// paired audit row for every status transition.
func NewExecutionStore(db *Client, events *EventStore) *ExecutionStore {
	return &ExecutionStore{db: db, events: events}
}

// Create inserts a new execution row. Returns ErrAlreadyExists if the
// (tenant_id, idempotency_key) unique constraint is violated — the
// Idempotency Guard's fast path.
func (s *ExecutionStore) Create(ctx context.Context, e *models.Execution) error {
	plan, err := json.Marshal(e.PlanSnapshot)
	if err != nil {
		return fmt.Errorf("marshaling plan snapshot: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO executions (
			id, tenant_id, actor_id, idempotency_key, plan_snapshot, plan_hash,
			execution_mode, sla_class, approval_level, status, previous_status,
			status_changed_at, created_at, timeout_at, trace_id, parent_execution_id, tags, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		e.ID, e.TenantID, e.ActorID, e.IdempotencyKey, plan, e.PlanHash,
		e.ExecutionMode, e.SLAClass, e.ApprovalLevel, e.Status, e.PreviousStatus,
		e.StatusChangedAt, e.CreatedAt, e.TimeoutAt, e.TraceID, e.ParentExecutionID, e.Tags, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetByIdempotencyKey returns the execution previously created for this
// (tenant, key) pair, or ErrNotFound.
func (s *ExecutionStore) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Execution, error) {
	row := s.db.Pool.QueryRow(ctx, executionSelectColumns+` WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
	return scanExecution(row)
}

// Get returns a single execution by ID.
func (s *ExecutionStore) Get(ctx context.Context, id string) (*models.Execution, error) {
	row := s.db.Pool.QueryRow(ctx, executionSelectColumns+` WHERE id = $1`, id)
	return scanExecution(row)
}

// UpdateStatus performs a compare-and-swap status transition: the UPDATE
// only applies if the row's current status still matches 'from', guarding
// against two writers racing on the same execution. The transition and its
// status_changed audit event commit in one transaction, so no caller can
// move an execution without an event recording the move.
func (s *ExecutionStore) UpdateStatus(ctx context.Context, id string, from, to models.Status, reason models.CancellationReason) error {
	if !models.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning status transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tenantID string
	err = tx.QueryRow(ctx, `
		UPDATE executions
		SET status = $1, previous_status = $2, status_changed_at = $3, cancellation_reason = $4
		WHERE id = $5 AND status = $2
		RETURNING tenant_id`,
		to, from, time.Now(), reason, id,
	).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleTransition
		}
		return fmt.Errorf("updating execution status: %w", err)
	}

	if err := s.appendTransitionTx(ctx, tx, tenantID, id, from, to, reason, ""); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing status transition: %w", err)
	}
	return nil
}

// appendTransitionTx writes the status_changed audit row paired with a
// status UPDATE in the caller's transaction.
func (s *ExecutionStore) appendTransitionTx(ctx context.Context, tx pgx.Tx, tenantID, id string, from, to models.Status, reason models.CancellationReason, errMsg string) error {
	ev := &models.ExecutionEvent{
		ExecutionID:  id,
		EventType:    models.EventStatusChanged,
		FromStatus:   from,
		ToStatus:     to,
		ErrorMessage: errMsg,
	}
	if reason != "" {
		ev.Details = map[string]any{"reason": reason}
	}
	channel := "execution:" + tenantID + ":" + id
	payload := map[string]any{
		"event_type":  models.EventStatusChanged,
		"from_status": from,
		"to_status":   to,
	}
	if err := s.events.appendTx(ctx, tx, ev, channel, payload); err != nil {
		return fmt.Errorf("recording status transition event: %w", err)
	}
	return nil
}

// MarkStarted records the worker claiming this execution.
func (s *ExecutionStore) MarkStarted(ctx context.Context, id, workerID string) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE executions SET started_at = now(), worker_id = $1 WHERE id = $2`, workerID, id)
	return err
}

// Complete writes the terminal result of an execution along with its paired
// status_changed audit event, in one transaction. The from-status is
// whatever the row held at commit time rather than a caller-supplied value,
// so the event always reflects the transition that actually happened.
func (s *ExecutionStore) Complete(ctx context.Context, id string, status models.Status, result map[string]any, errMsg string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning terminal transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// RETURNING sees post-update values; previous_status now holds the
	// pre-update status.
	var tenantID string
	var from models.Status
	err = tx.QueryRow(ctx, `
		UPDATE executions
		SET status = $1, previous_status = status, status_changed_at = now(),
		    completed_at = now(), result = $2, error_message = $3
		WHERE id = $4
		RETURNING tenant_id, previous_status`,
		status, resultJSON, errMsg, id,
	).Scan(&tenantID, &from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("completing execution: %w", err)
	}

	if err := s.appendTransitionTx(ctx, tx, tenantID, id, from, status, "", errMsg); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing terminal transition: %w", err)
	}
	return nil
}

// ListFilter narrows a tenant-scoped execution listing.
type ListFilter struct {
	Status   models.Status
	SLAClass models.SLAClass
	Limit    int
}

// List returns a tenant's executions, newest first, optionally filtered by
// status and SLA class. Soft-deleted rows are excluded.
func (s *ExecutionStore) List(ctx context.Context, tenantID string, filter ListFilter) ([]*models.Execution, error) {
	query := executionSelectColumns + ` WHERE tenant_id = $1 AND deleted_at IS NULL`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SLAClass != "" {
		args = append(args, filter.SLAClass)
		query += fmt.Sprintf(" AND sla_class = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// SoftDeleteOlderThan marks terminal executions completed before cutoff as
// deleted, called by the retention cleanup loop. Soft-delete keeps the row
// (and its FK-referenced steps/events/queue history) intact for audit,
// rather than a hard DELETE.
func (s *ExecutionStore) SoftDeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE executions
		SET deleted_at = now()
		WHERE deleted_at IS NULL
		  AND completed_at IS NOT NULL
		  AND completed_at < $1
		  AND status IN ('completed', 'partial', 'failed', 'cancelled', 'timed-out')`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting old executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

const executionSelectColumns = `
	SELECT id, tenant_id, actor_id, idempotency_key, plan_snapshot, plan_hash,
	       execution_mode, sla_class, approval_level, status, previous_status,
	       status_changed_at, created_at, started_at, completed_at, timeout_at,
	       result, error_message, error_details, trace_id, parent_execution_id,
	       tags, metadata, worker_id, cancellation_reason
	FROM executions`

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var e models.Execution
	var plan, result, errorDetails, metadata []byte

	err := row.Scan(
		&e.ID, &e.TenantID, &e.ActorID, &e.IdempotencyKey, &plan, &e.PlanHash,
		&e.ExecutionMode, &e.SLAClass, &e.ApprovalLevel, &e.Status, &e.PreviousStatus,
		&e.StatusChangedAt, &e.CreatedAt, &e.StartedAt, &e.CompletedAt, &e.TimeoutAt,
		&result, &e.ErrorMessage, &errorDetails, &e.TraceID, &e.ParentExecutionID,
		&e.Tags, &metadata, &e.WorkerID, &e.CancellationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning execution: %w", err)
	}

	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &e.PlanSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshaling plan snapshot: %w", err)
		}
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &e.Result)
	}
	if len(errorDetails) > 0 {
		_ = json.Unmarshal(errorDetails, &e.ErrorDetails)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &e.Metadata)
	}

	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
