package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// StepStore persists models.ExecutionStep rows.
type StepStore struct {
	db *Client
}

// NewStepStore constructs a StepStore.
func NewStepStore(db *Client) *StepStore {
	return &StepStore{db: db}
}

// CreateAll inserts the expanded steps for one execution in a single
// statement batch, preserving step_index ordering.
func (s *StepStore) CreateAll(ctx context.Context, steps []*models.ExecutionStep) error {
	batch := &pgx.Batch{}
	for _, st := range steps {
		input, err := json.Marshal(st.InputData)
		if err != nil {
			return fmt.Errorf("marshaling step input: %w", err)
		}
		batch.Queue(`
			INSERT INTO execution_steps (
				id, execution_id, step_index, step_type, target_asset_id, target_hostname,
				input_data, status, attempt, max_retries, critical
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			st.ID, st.ExecutionID, st.StepIndex, st.StepType, st.TargetAssetID, st.TargetHostname,
			input, st.Status, st.Attempt, st.MaxRetries, st.Critical,
		)
	}
	results := s.db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range steps {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting execution step: %w", err)
		}
	}
	return nil
}

// ListByExecution returns every step of an execution ordered by step_index.
func (s *StepStore) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	rows, err := s.db.Pool.Query(ctx, stepSelectColumns+` WHERE execution_id = $1 ORDER BY step_index ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying execution steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.ExecutionStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// MarkRunning transitions a step to running and records its start time.
func (s *StepStore) MarkRunning(ctx context.Context, id string, attempt int) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE execution_steps SET status = $1, attempt = $2, started_at = now() WHERE id = $3`,
		models.StepStatusRunning, attempt, id)
	return err
}

// Complete writes the terminal state of one step.
func (s *StepStore) Complete(ctx context.Context, id string, status models.StepStatus, output map[string]any, errMsg string, durationMS int64) error {
	out, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshaling step output: %w", err)
	}
	_, err = s.db.Pool.Exec(ctx, `
		UPDATE execution_steps
		SET status = $1, output_data = $2, error_message = $3, duration_ms = $4, completed_at = now()
		WHERE id = $5`,
		status, out, errMsg, durationMS, id,
	)
	return err
}

const stepSelectColumns = `
	SELECT id, execution_id, step_index, step_type, target_asset_id, target_hostname,
	       input_data, status, attempt, max_retries, critical, error_message,
	       output_data, duration_ms, started_at, completed_at
	FROM execution_steps`

func scanStep(row pgx.Row) (*models.ExecutionStep, error) {
	var st models.ExecutionStep
	var input, output []byte

	err := row.Scan(
		&st.ID, &st.ExecutionID, &st.StepIndex, &st.StepType, &st.TargetAssetID, &st.TargetHostname,
		&input, &st.Status, &st.Attempt, &st.MaxRetries, &st.Critical, &st.ErrorMessage,
		&output, &st.DurationMS, &st.StartedAt, &st.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning execution step: %w", err)
	}

	if len(input) > 0 {
		_ = json.Unmarshal(input, &st.InputData)
	}
	if len(output) > 0 {
		_ = json.Unmarshal(output, &st.OutputData)
	}

	return &st, nil
}
