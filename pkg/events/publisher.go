package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// notifier is the minimal pg_notify surface EventPublisher needs. Satisfied
// by *pgxpool.Pool (pkg/store.Client.Pool).
type notifier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventPublisher broadcasts transient (NOTIFY-only) events. Durable events
// go through pkg/store.EventStore.Append directly, which persists the audit
// row and fires pg_notify in the same transaction — this publisher only
// covers events with no backing row (execution.progress, queue.depth); the
// persist-and-notify half lives on store.EventStore instead.
type EventPublisher struct {
	db notifier
}

// NewEventPublisher creates a new EventPublisher over a pg_notify-capable pool.
func NewEventPublisher(db notifier) *EventPublisher {
	return &EventPublisher{db: db}
}

// PublishExecutionProgress broadcasts an execution.progress transient event
// to the execution's own channel.
func (p *EventPublisher) PublishExecutionProgress(ctx context.Context, payload ExecutionProgressPayload) error {
	payload.Type = EventTypeExecutionProgress
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ExecutionProgressPayload: %w", err)
	}
	return p.notifyOnly(ctx, ExecutionChannel(payload.TenantID, payload.ExecutionID), payloadJSON)
}

// PublishQueueDepth broadcasts a queue.depth transient event to the
// tenant-wide dashboard channel.
func (p *EventPublisher) PublishQueueDepth(ctx context.Context, payload QueueDepthPayload) error {
	payload.Type = EventTypeQueueDepth
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal QueueDepthPayload: %w", err)
	}
	return p.notifyOnly(ctx, TenantChannel(payload.TenantID), payloadJSON)
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting to DB.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type        string `json:"type"`
		ExecutionID string `json:"execution_id"`
		TenantID    string `json:"tenant_id"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":         routing.Type,
		"execution_id": routing.ExecutionID,
		"tenant_id":    routing.TenantID,
		"truncated":    true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
