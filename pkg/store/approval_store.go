package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ApprovalStore persists models.Approval rows for the human-in-the-loop
// gate on high-risk plans.
type ApprovalStore struct {
	db *Client
}

// NewApprovalStore constructs an ApprovalStore.
func NewApprovalStore(db *Client) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Create inserts a new pending approval request.
func (s *ApprovalStore) Create(ctx context.Context, a *models.Approval) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO approvals (id, execution_id, plan_hash, status, requested_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.ExecutionID, a.PlanHash, a.Status, a.RequestedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting approval: %w", err)
	}
	return nil
}

// Get returns an approval by ID.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.Pool.QueryRow(ctx, approvalSelectColumns+` WHERE id = $1`, id)
	return scanApproval(row)
}

// GetByExecution returns the approval request for an execution, if any.
func (s *ApprovalStore) GetByExecution(ctx context.Context, executionID string) (*models.Approval, error) {
	row := s.db.Pool.QueryRow(ctx, approvalSelectColumns+` WHERE execution_id = $1`, executionID)
	return scanApproval(row)
}

// Decide records a grant or deny decision, compare-and-swap against the
// pending state so a decision can't be applied twice.
func (s *ApprovalStore) Decide(ctx context.Context, id string, status models.ApprovalStatus, decidedBy, reason string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE approvals SET status = $1, decided_at = now(), decided_by = $2, reason = $3
		WHERE id = $4 AND status = $5`,
		status, decidedBy, reason, id, models.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("deciding approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ExpirePending flips any pending approval past its expiry to expired,
// called periodically so a stalled approval doesn't block an execution
// forever; returns the execution IDs affected so callers can fail them.
func (s *ApprovalStore) ExpirePending(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `
		UPDATE approvals SET status = $1, decided_at = now()
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < now()
		RETURNING execution_id`,
		models.ApprovalExpired, models.ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("expiring stale approvals: %w", err)
	}
	defer rows.Close()

	var executionIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning expired approval: %w", err)
		}
		executionIDs = append(executionIDs, id)
	}
	return executionIDs, rows.Err()
}

const approvalSelectColumns = `
	SELECT id, execution_id, plan_hash, status, requested_at, decided_at, decided_by, reason, expires_at
	FROM approvals`

func scanApproval(row pgx.Row) (*models.Approval, error) {
	var a models.Approval
	err := row.Scan(&a.ID, &a.ExecutionID, &a.PlanHash, &a.Status, &a.RequestedAt, &a.DecidedAt, &a.DecidedBy, &a.Reason, &a.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning approval: %w", err)
	}
	return &a, nil
}
