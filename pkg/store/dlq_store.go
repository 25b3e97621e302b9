package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// DLQStore persists models.DeadLetterItem rows: executions whose queue
// item exhausted its retry budget, plus the operator archive/requeue
// workflow.
type DLQStore struct {
	db *Client
}

// NewDLQStore constructs a DLQStore.
func NewDLQStore(db *Client) *DLQStore {
	return &DLQStore{db: db}
}

// Create records an execution's final failure in the dead-letter queue.
func (s *DLQStore) Create(ctx context.Context, item *models.DeadLetterItem) error {
	plan, err := json.Marshal(item.OriginalPlan)
	if err != nil {
		return fmt.Errorf("marshaling original plan: %w", err)
	}
	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO dead_letter_items (
			id, execution_id, queue_id, final_error, attempt_count, original_plan, failed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.ExecutionID, item.QueueID, item.FinalError, item.AttemptCount, plan, item.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting dead-letter item: %w", err)
	}
	return nil
}

// Get returns one dead-letter item by ID.
func (s *DLQStore) Get(ctx context.Context, id string) (*models.DeadLetterItem, error) {
	row := s.db.Pool.QueryRow(ctx, dlqSelectColumns+` WHERE id = $1`, id)
	return scanDLQItem(row)
}

// ListActive returns unarchived dead-letter items, oldest first, for the
// operator review queue.
func (s *DLQStore) ListActive(ctx context.Context, limit int) ([]*models.DeadLetterItem, error) {
	rows, err := s.db.Pool.Query(ctx, dlqSelectColumns+`
		WHERE archived = false ORDER BY failed_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dead-letter items: %w", err)
	}
	defer rows.Close()

	var items []*models.DeadLetterItem
	for rows.Next() {
		item, err := scanDLQItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Archive marks a dead-letter item as reviewed and closed without replay.
func (s *DLQStore) Archive(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE dead_letter_items SET archived = true, archived_at = now() WHERE id = $1 AND archived = false`, id)
	if err != nil {
		return fmt.Errorf("archiving dead-letter item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRequeued records that an operator replayed this dead-letter item back
// onto the live queue.
func (s *DLQStore) MarkRequeued(ctx context.Context, id, requeuedBy string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE dead_letter_items SET requeued = true, requeued_at = now(), requeued_by = $1
		WHERE id = $2 AND requeued = false`, requeuedBy, id)
	if err != nil {
		return fmt.Errorf("marking dead-letter item requeued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteArchivedOlderThan permanently removes dead-letter items that were
// archived before cutoff, called by the retention cleanup loop. Only
// archived rows are eligible — an item an operator hasn't reviewed yet is
// never purged regardless of age.
func (s *DLQStore) DeleteArchivedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM dead_letter_items WHERE archived = true AND archived_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting archived dead-letter items: %w", err)
	}
	return tag.RowsAffected(), nil
}

const dlqSelectColumns = `
	SELECT id, execution_id, queue_id, final_error, attempt_count, original_plan,
	       failed_at, archived, archived_at, requeued, requeued_at, requeued_by
	FROM dead_letter_items`

func scanDLQItem(row pgx.Row) (*models.DeadLetterItem, error) {
	var item models.DeadLetterItem
	var plan []byte

	err := row.Scan(
		&item.ID, &item.ExecutionID, &item.QueueID, &item.FinalError, &item.AttemptCount, &plan,
		&item.FailedAt, &item.Archived, &item.ArchivedAt, &item.Requeued, &item.RequeuedAt, &item.RequeuedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning dead-letter item: %w", err)
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &item.OriginalPlan); err != nil {
			return nil, fmt.Errorf("unmarshaling original plan: %w", err)
		}
	}
	return &item, nil
}
