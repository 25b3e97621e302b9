package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit caps how many missed events one catchup response replays. A
// client further behind than this gets a stream.reset and must re-fetch the
// execution over REST instead of paginating catchup requests.
const catchupLimit = 200

// listenTimeout bounds how long a LISTEN may block when the first
// subscriber of a stream arrives. Without it, a stalled listener connection
// would block that client's read loop indefinitely.
const listenTimeout = 10 * time.Second

// CatchupEvent is one replayed audit event: its ID (the client's next
// catchup cursor) plus the same wire payload a live NOTIFY would have
// carried, so replayed and live events are indistinguishable to the client.
type CatchupEvent struct {
	ID      string
	Payload map[string]interface{}
}

// CatchupQuerier reads an execution's audit trail for catchup replay.
// Implemented by EventStoreAdapter over pkg/store.EventStore.
type CatchupQuerier interface {
	EventsSince(ctx context.Context, executionID, afterEventID string, limit int) ([]CatchupEvent, error)
}

// ConnectionManager owns this pod's WebSocket clients and their stream
// subscriptions. Subscriptions are keyed by StreamKey — (tenant,
// execution) — and the manager maps between keys and the pg_notify
// channels that back them; clients never see channel names.
type ConnectionManager struct {
	// clients: connection_id → *client
	clients map[string]*client
	mu      sync.RWMutex

	// streams: stream key → set of connection_ids subscribed to it
	streams  map[StreamKey]map[string]bool
	streamMu sync.RWMutex

	catchup CatchupQuerier

	// listener drives LISTEN/UNLISTEN as streams gain their first or lose
	// their last local subscriber (set once after construction).
	listener   *NotifyListener
	listenerMu sync.RWMutex

	writeTimeout time.Duration
}

// client is one WebSocket subscriber.
//
// subscriptions is accessed WITHOUT a lock: every read and write happens on
// the single goroutine that owns the connection (HandleConnection's read
// loop and its deferred cleanup). If a client is ever mutated from another
// goroutine (say, an admin disconnect feature), this needs a mutex.
type client struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[StreamKey]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a ConnectionManager. One exists per pod.
func NewConnectionManager(catchup CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		clients:      make(map[string]*client),
		streams:      make(map[StreamKey]map[string]bool),
		catchup:      catchup,
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NotifyListener for dynamic LISTEN/UNLISTEN. Called
// once during startup, after both sides exist.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleConnection runs the lifecycle of one WebSocket connection. Called
// by the stream HTTP handler after upgrade; blocks until the connection
// closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &client{
		id:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[StreamKey]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "stream.connected",
		"connection_id": c.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return // closed or errored; deferred cleanup unsubscribes everything
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid stream client message", "connection_id", c.id, "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg)
	}
}

// Broadcast fans a NOTIFY payload out to every local subscriber of the
// stream the channel backs. Payloads arriving on channels that don't map to
// a stream are dropped.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	key, ok := StreamKeyFromChannel(channel)
	if !ok {
		slog.Debug("dropping notify on unrecognized channel", "channel", channel)
		return
	}

	m.streamMu.RLock()
	subs, exists := m.streams[key]
	if !exists {
		m.streamMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	m.streamMu.RUnlock()

	// Snapshot client pointers, then release the lock before writing:
	// a slow client may take up to writeTimeout per send, and that must
	// not stall register/unregister.
	m.mu.RLock()
	clients := make([]*client, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := m.sendRaw(c, event); err != nil {
			slog.Warn("failed to deliver event to stream client",
				"connection_id", c.id, "execution_id", key.ExecutionID, "error", err)
		}
	}
}

// ActiveConnections returns the number of connected WebSocket clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// subscriberCount reports how many local clients follow a stream.
// Unexported — tests poll this instead of sleeping.
func (m *ConnectionManager) subscriberCount(key StreamKey) int {
	m.streamMu.RLock()
	defer m.streamMu.RUnlock()
	return len(m.streams[key])
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *client, msg *ClientMessage) {
	key := StreamKey{TenantID: msg.TenantID, ExecutionID: msg.ExecutionID}

	switch msg.Action {
	case "subscribe":
		if msg.TenantID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "tenant_id is required for subscribe"})
			return
		}
		if err := m.subscribe(c, key); err != nil {
			m.sendJSON(c, map[string]string{
				"type":         "stream.error",
				"tenant_id":    key.TenantID,
				"execution_id": key.ExecutionID,
				"message":      "failed to open stream",
			})
			return
		}
		m.sendJSON(c, map[string]string{
			"type":         "stream.subscribed",
			"tenant_id":    key.TenantID,
			"execution_id": key.ExecutionID,
		})
		// Replay the audit trail so a subscriber that arrived mid-run sees
		// every transition that already happened, not just the ones ahead.
		m.replayCatchup(ctx, c, key, "")

	case "unsubscribe":
		if msg.TenantID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "tenant_id is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, key)

	case "catchup":
		if msg.TenantID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "tenant_id is required for catchup"})
			return
		}
		m.replayCatchup(ctx, c, key, msg.LastEventID)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe adds c to a stream, LISTENing on the backing channel if c is
// the stream's first local subscriber. The LISTEN is synchronous so it is
// active before subscribe returns — the subsequent catchup replay then runs
// with live delivery already established, closing the window where an event
// committed between replay and LISTEN would be lost.
//
// Returns an error if LISTEN fails, so the caller reports stream.error
// instead of a false stream.subscribed.
func (m *ConnectionManager) subscribe(c *client, key StreamKey) error {
	m.streamMu.Lock()
	firstSubscriber := false
	if _, exists := m.streams[key]; !exists {
		m.streams[key] = make(map[string]bool)
		firstSubscriber = true
	}
	m.streams[key][c.id] = true
	m.streamMu.Unlock()

	if firstSubscriber {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, key.Channel()); err != nil {
				slog.Error("failed to open stream", "execution_id", key.ExecutionID, "tenant_id", key.TenantID, "error", err)
				m.abandonStream(c, key)
				return fmt.Errorf("opening stream for %s: %w", key.Channel(), err)
			}
		}
	}

	c.subscriptions[key] = true
	return nil
}

// abandonStream tears a stream down after its initial LISTEN failed,
// notifying every subscriber that piggy-backed on the failed attempt.
//
// Between registering the stream entry and the LISTEN completing, other
// clients may have subscribed to the same stream; they saw an existing
// entry, skipped LISTEN, and were told stream.subscribed. Those clients are
// now orphaned — subscribed with no live delivery underneath — so the whole
// stream is dropped and each of them gets a stream.error. The triggering
// client is excluded; its subscribe call reports the error directly.
//
// Client contract: an orphaned subscriber may observe stream.subscribed →
// replayed events → stream.error. stream.error is authoritative: discard
// what was received for the stream and re-subscribe with backoff, or fall
// back to polling the execution over REST.
//
// A stale c.subscriptions entry may linger on affected clients. Harmless:
// Broadcast consults m.streams (now deleted), and unsubscribe/unregister
// tolerate missing stream entries.
func (m *ConnectionManager) abandonStream(triggering *client, key StreamKey) {
	m.streamMu.Lock()
	affected := make([]string, 0, len(m.streams[key]))
	for id := range m.streams[key] {
		if id != triggering.id {
			affected = append(affected, id)
		}
	}
	delete(m.streams, key)
	m.streamMu.Unlock()

	// The listener may still be reconciling toward this channel; drop the
	// intent so a late LISTEN doesn't outlive the stream it was for.
	m.listenerMu.RLock()
	l := m.listener
	m.listenerMu.RUnlock()
	if l != nil {
		_ = l.Unsubscribe(context.Background(), key.Channel())
	}

	if len(affected) == 0 {
		return
	}

	m.mu.RLock()
	clients := make([]*client, 0, len(affected))
	for _, id := range affected {
		if c, ok := m.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range clients {
		slog.Warn("dropping orphaned stream subscriber after listen failure",
			"connection_id", c.id, "execution_id", key.ExecutionID)
		m.sendJSON(c, map[string]string{
			"type":         "stream.error",
			"tenant_id":    key.TenantID,
			"execution_id": key.ExecutionID,
			"message":      "stream could not be opened; subscription removed",
		})
	}
}

// unsubscribe removes c from a stream, UNLISTENing the backing channel when
// the last local subscriber leaves.
func (m *ConnectionManager) unsubscribe(c *client, key StreamKey) {
	m.streamMu.Lock()
	if subs, exists := m.streams[key]; exists {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.streams, key)
			// Last local subscriber left. The goroutine re-checks m.streams
			// before dropping the LISTEN so a rapid unsubscribe/resubscribe
			// (a dashboard tab refresh mid-execution) doesn't tear down
			// delivery a newer subscriber depends on.
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				go func() {
					m.streamMu.RLock()
					_, resubscribed := m.streams[key]
					m.streamMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), key.Channel()); err != nil {
						slog.Error("failed to close stream", "execution_id", key.ExecutionID, "error", err)
					}
				}()
			}
		}
	}
	m.streamMu.Unlock()

	delete(c.subscriptions, key)
}

// replayCatchup sends the audit events the client missed since
// afterEventID. Tenant dashboard streams carry only transient snapshots
// with no durable trail, so there is nothing to replay for them — a
// dashboard reconnect re-fetches its lists over REST instead.
func (m *ConnectionManager) replayCatchup(ctx context.Context, c *client, key StreamKey, afterEventID string) {
	if m.catchup == nil || key.IsTenantWide() {
		return
	}

	// One extra row past the limit detects overflow without a count query.
	events, err := m.catchup.EventsSince(ctx, key.ExecutionID, afterEventID, catchupLimit+1)
	if err != nil {
		slog.Error("catchup replay failed", "execution_id", key.ExecutionID, "error", err)
		return
	}

	overflowed := len(events) > catchupLimit
	if overflowed {
		events = events[:catchupLimit]
	}

	// Replay in audit order. Each payload carries its event_id so the
	// client can resume a later catchup from the last ID it processed.
	for _, evt := range events {
		evt.Payload["event_id"] = evt.ID
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, payload); err != nil {
			slog.Warn("failed to send catchup event", "connection_id", c.id, "error", err)
			return
		}
	}

	// Too far behind to replay: the client must reload the execution (and
	// its events page) over REST rather than paginate catchup.
	if overflowed {
		m.sendJSON(c, map[string]interface{}{
			"type":         "stream.reset",
			"tenant_id":    key.TenantID,
			"execution_id": key.ExecutionID,
		})
	}
}

func (m *ConnectionManager) register(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.id] = c
}

// unregister removes a client and every stream subscription it held.
func (m *ConnectionManager) unregister(c *client) {
	for key := range c.subscriptions {
		m.unsubscribe(c, key)
	}

	m.mu.Lock()
	delete(m.clients, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal stream message", "connection_id", c.id, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send stream message", "connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *client, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
