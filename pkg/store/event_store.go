package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// EventStore persists models.ExecutionEvent rows and broadcasts them via
// pg_notify in the same transaction as the INSERT, so the NOTIFY is only
// visible to listeners once the audit row is durably committed.
type EventStore struct {
	db *Client
}

// NewEventStore constructs an EventStore.
func NewEventStore(db *Client) *EventStore {
	return &EventStore{db: db}
}

// notifyPayloadLimit sits under PostgreSQL's 8000-byte NOTIFY payload
// ceiling, with headroom for JSON escaping.
const notifyPayloadLimit = 7900

// Append persists one audit event and notifies 'channel' within a single
// transaction. A listener must be able to read the just-committed event by
// ID, so the event row always exists before the NOTIFY fires.
func (s *EventStore) Append(ctx context.Context, ev *models.ExecutionEvent, channel string, wirePayload map[string]any) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.appendTx(ctx, tx, ev, channel, wirePayload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing event transaction: %w", err)
	}
	return nil
}

// appendTx writes the event row and its NOTIFY inside a caller-owned
// transaction, so a status UPDATE and its paired audit event can commit (or
// roll back) as one unit. The caller commits.
func (s *EventStore) appendTx(ctx context.Context, tx pgx.Tx, ev *models.ExecutionEvent, channel string, wirePayload map[string]any) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshaling event details: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO execution_events (
			id, execution_id, event_type, from_status, to_status, actor_id,
			actor_type, details, error_message, trace_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ev.ID, ev.ExecutionID, ev.EventType, ev.FromStatus, ev.ToStatus, ev.ActorID,
		ev.ActorType, details, ev.ErrorMessage, ev.TraceID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution event: %w", err)
	}

	if wirePayload == nil {
		wirePayload = map[string]any{}
	}
	wirePayload["event_id"] = ev.ID
	wirePayload["execution_id"] = ev.ExecutionID
	wirePayload["event_type"] = ev.EventType

	notifyJSON, err := truncatedPayload(wirePayload)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, notifyJSON); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// ListSince returns events for an execution created at or after 'afterID'
// in insertion order, supporting the catch-up query a client issues after
// reconnecting a dropped WebSocket stream.
func (s *EventStore) ListSince(ctx context.Context, executionID, afterID string) ([]*models.ExecutionEvent, error) {
	var rows pgxRows
	var err error
	if afterID == "" {
		rows, err = s.db.Pool.Query(ctx, eventSelectColumns+` WHERE execution_id = $1 ORDER BY created_at ASC`, executionID)
	} else {
		rows, err = s.db.Pool.Query(ctx, eventSelectColumns+`
			WHERE execution_id = $1 AND created_at > (SELECT created_at FROM execution_events WHERE id = $2)
			ORDER BY created_at ASC`, executionID, afterID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution events: %w", err)
	}
	defer rows.Close()

	var events []*models.ExecutionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteOlderThan removes events past the retention TTL, called by
// pkg/cleanup as a safety net beyond per-execution cleanup.
func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM execution_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

const eventSelectColumns = `
	SELECT id, execution_id, event_type, from_status, to_status, actor_id,
	       actor_type, details, error_message, trace_id, created_at
	FROM execution_events`

// pgxRows narrows *pgx.Rows to the subset this file uses, so scanEvent can
// take either a live query result or (in tests) a stub.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanEvent(row interface{ Scan(dest ...any) error }) (*models.ExecutionEvent, error) {
	var ev models.ExecutionEvent
	var details []byte

	err := row.Scan(
		&ev.ID, &ev.ExecutionID, &ev.EventType, &ev.FromStatus, &ev.ToStatus, &ev.ActorID,
		&ev.ActorType, &details, &ev.ErrorMessage, &ev.TraceID, &ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning execution event: %w", err)
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &ev.Details)
	}
	return &ev, nil
}

// truncatedPayload builds the fallback routing-only payload: if the
// marshaled event exceeds PostgreSQL's NOTIFY payload limit, only routing
// fields are sent and the client must fetch the full row via ListSince.
func truncatedPayload(payload map[string]any) (string, error) {
	full, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling notify payload: %w", err)
	}
	if len(full) <= notifyPayloadLimit {
		return string(full), nil
	}

	truncated := map[string]any{
		"event_id":     payload["event_id"],
		"execution_id": payload["execution_id"],
		"event_type":   payload["event_type"],
		"truncated":    true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshaling truncated notify payload: %w", err)
	}
	return string(truncBytes), nil
}
