// Package events provides real-time event delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// Two wire event families exist:
//
//   - Persistent: mirror a models.ExecutionEvent row. The payload is
//     already durable (pkg/store.EventStore.Append wrote it and fired
//     pg_notify in the same transaction) by the time it reaches this
//     package — ConnectionManager only has to fan it out to subscribed
//     WebSocket clients and serve catchup from the same store.
//   - Transient: execution/queue progress snapshots broadcast via
//     pg_notify only, with no backing row. Lost on disconnect; a
//     reconnecting client falls back to GET execution/{id} for the
//     current state.
//
// Events never carry secret values — only IDs, statuses, counters, and
// timestamps.
package events

import "strings"

// EventTypeExecutionEvent is the wire type for a persisted ExecutionEvent
// row, mirroring models.ExecutionEvent.EventType values.
const EventTypeExecutionEvent = "execution_event"

// Transient event types (NOTIFY only, no DB persistence).
const (
	// EventTypeExecutionProgress is a step-completion progress snapshot,
	// published after each step finishes so long-running executions don't
	// require clients to poll.
	EventTypeExecutionProgress = "execution.progress"

	// EventTypeQueueDepth is a periodic queue-depth snapshot for the
	// operational dashboard, published to the per-tenant channel.
	EventTypeQueueDepth = "queue.depth"
)

// TenantChannel is the channel carrying tenant-wide transient events
// (queue depth, and a copy of every execution's status transitions) for
// dashboard-style subscribers watching a tenant rather than one execution.
// Format: "executions:{tenant}".
func TenantChannel(tenantID string) string {
	return "executions:" + tenantID
}

// ExecutionChannel returns the channel name for a single execution's
// events. Format: "execution:{tenant}:{execution_id}".
func ExecutionChannel(tenantID, executionID string) string {
	return "execution:" + tenantID + ":" + executionID
}

// StreamKey identifies one live event stream a client may subscribe to:
// a single execution's stream, or — with ExecutionID empty — the tenant's
// dashboard stream carrying queue depth and a copy of every execution's
// status transitions. Subscriptions are keyed by (tenant, execution), never
// by raw channel strings; the pg_notify channel name is a transport detail
// derived from the key.
type StreamKey struct {
	TenantID    string
	ExecutionID string
}

// Channel returns the pg_notify channel backing this stream.
func (k StreamKey) Channel() string {
	if k.ExecutionID == "" {
		return TenantChannel(k.TenantID)
	}
	return ExecutionChannel(k.TenantID, k.ExecutionID)
}

// IsTenantWide reports whether this key names a tenant dashboard stream
// rather than a single execution's stream. Tenant streams are
// transient-only: they have no durable audit trail to catch up from.
func (k StreamKey) IsTenantWide() bool {
	return k.ExecutionID == ""
}

// StreamKeyFromChannel maps a pg_notify channel name back to the stream it
// backs, the inverse of StreamKey.Channel. A NOTIFY arriving on an
// unrecognized channel resolves to (zero, false) and is dropped by the fan-out.
func StreamKeyFromChannel(channel string) (StreamKey, bool) {
	if rest, ok := strings.CutPrefix(channel, "execution:"); ok {
		tenantID, executionID, found := strings.Cut(rest, ":")
		if !found || tenantID == "" || executionID == "" {
			return StreamKey{}, false
		}
		return StreamKey{TenantID: tenantID, ExecutionID: executionID}, true
	}
	if tenantID, ok := strings.CutPrefix(channel, "executions:"); ok && tenantID != "" {
		return StreamKey{TenantID: tenantID}, true
	}
	return StreamKey{}, false
}

// ClientMessage is the JSON structure for client → server WebSocket
// messages. Clients address streams by (tenant_id, execution_id) — an
// empty execution_id targets the tenant's dashboard stream.
type ClientMessage struct {
	Action      string `json:"action"` // "subscribe", "unsubscribe", "catchup", "ping"
	TenantID    string `json:"tenant_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"` // catchup cursor: the last ExecutionEvent ID seen
}
