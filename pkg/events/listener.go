package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// NotifyListener holds the one dedicated PostgreSQL connection this pod
// uses to receive NOTIFYs for execution streams, and fans every payload out
// to the local ConnectionManager plus any registered internal handlers.
//
// LISTEN/UNLISTEN is managed by reconciliation rather than per-call
// commands: Subscribe and Unsubscribe only edit the desired channel set,
// and the receive loop — the sole goroutine allowed to touch the pgx
// connection — converges the connection's actual LISTENs to that set
// between notification waits. Rapid unsubscribe/resubscribe flapping (a
// dashboard tab reloading mid-execution) needs no special-case ordering:
// whatever the desired set says when the loop next reconciles, wins. A
// reconnect starts from an empty actual set and the same reconcile pass
// restores every desired LISTEN.
type NotifyListener struct {
	connString string
	manager    *ConnectionManager

	// mu guards the reconciliation state below.
	mu      sync.Mutex
	desired map[string]bool         // channels the stream hub wants delivery on
	active  map[string]bool         // channels LISTENed on the live connection
	waiters map[string][]chan error // Subscribe calls awaiting their channel's activation

	conn   *pgx.Conn // dedicated LISTEN connection
	connMu sync.Mutex

	running atomic.Bool

	// handlers are internal callbacks for backend-to-backend payloads, such
	// as a cancellation request that lands on a pod other than the one whose
	// worker holds the execution.
	handlers   map[string]func(payload []byte)
	handlersMu sync.RWMutex

	// cancelLoop and loopDone coordinate receive-loop shutdown.
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewNotifyListener creates a listener over its own dedicated connection
// string. The connection is not opened until Start.
func NewNotifyListener(connString string, manager *ConnectionManager) *NotifyListener {
	return &NotifyListener{
		connString: connString,
		manager:    manager,
		desired:    make(map[string]bool),
		active:     make(map[string]bool),
		waiters:    make(map[string][]chan error),
		handlers:   make(map[string]func(payload []byte)),
	}
}

// Start opens the dedicated connection and begins receiving notifications.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connecting for stream delivery: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("stream notify listener started")
	return nil
}

// Subscribe asks for delivery on a channel and blocks until the receive
// loop has the LISTEN active (or ctx gives up). Blocking matters to the
// hub: a stream's first subscriber must not be told the stream is open
// until events can actually arrive on it.
func (l *NotifyListener) Subscribe(ctx context.Context, channel string) error {
	if !l.running.Load() {
		return fmt.Errorf("stream delivery connection not established")
	}

	l.mu.Lock()
	l.desired[channel] = true
	if l.active[channel] {
		l.mu.Unlock()
		return nil // already live, nothing to wait for
	}
	result := make(chan error, 1)
	l.waiters[channel] = append(l.waiters[channel], result)
	l.mu.Unlock()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("opening delivery on %s: %w", channel, err)
		}
		slog.Debug("stream channel active", "channel", channel)
		return nil
	case <-ctx.Done():
		// The desired entry stays: if the LISTEN does land later, the hub
		// either still wants it or will retract it via Unsubscribe.
		return ctx.Err()
	}
}

// Unsubscribe retracts the desire for a channel. The actual UNLISTEN
// happens on the receive loop's next reconcile pass; callers don't wait,
// since late delivery on an unwanted channel is harmless (the hub has no
// subscribers left to fan it to).
func (l *NotifyListener) Unsubscribe(_ context.Context, channel string) error {
	l.mu.Lock()
	delete(l.desired, channel)
	l.mu.Unlock()
	return nil
}

// isListening reports whether delivery on a channel is live. Unexported —
// tests poll this instead of sleeping.
func (l *NotifyListener) isListening(channel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[channel]
}

// RegisterHandler installs an internal callback for one channel, invoked
// ahead of the WebSocket fan-out whenever a NOTIFY arrives there. This is
// the backend-to-backend path: a cancel request accepted by one pod's API
// must still reach the pod whose worker is running the execution.
func (l *NotifyListener) RegisterHandler(channel string, fn func(payload []byte)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers[channel] = fn
}

// receiveLoop alternates between reconciling LISTENs and waiting for
// notifications. It is the only goroutine that touches the pgx connection,
// so WaitForNotification and Exec can never race each other.
func (l *NotifyListener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.reconcile(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		// A short wait keeps reconciliation responsive: a new stream's
		// Subscribe blocks at most one wait interval before its LISTEN runs.
		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return // shutting down
			}
			if waitCtx.Err() != nil {
				continue // wait interval elapsed; reconcile again
			}
			slog.Error("stream notify receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		l.handlersMu.RLock()
		handler := l.handlers[notification.Channel]
		l.handlersMu.RUnlock()
		if handler != nil {
			handler([]byte(notification.Payload))
		}

		l.manager.Broadcast(notification.Channel, []byte(notification.Payload))
	}
}

// reconcile converges the connection's LISTENs to the desired set: LISTEN
// whatever is desired but not active, UNLISTEN whatever is active but no
// longer desired. Waiters blocked in Subscribe are released as their
// channel goes live (or its LISTEN fails).
func (l *NotifyListener) reconcile(ctx context.Context) {
	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn == nil {
		return // reconnect re-enters reconcile with a live connection
	}

	l.mu.Lock()
	var toListen, toUnlisten []string
	for ch := range l.desired {
		if !l.active[ch] {
			toListen = append(toListen, ch)
		}
	}
	for ch := range l.active {
		if !l.desired[ch] {
			toUnlisten = append(toUnlisten, ch)
		}
	}
	l.mu.Unlock()

	for _, ch := range toListen {
		_, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize())

		l.mu.Lock()
		if err == nil {
			l.active[ch] = true
		} else {
			// Give up on this channel; the hub tears the stream down and
			// re-subscribing starts a fresh attempt.
			delete(l.desired, ch)
		}
		waiting := l.waiters[ch]
		delete(l.waiters, ch)
		l.mu.Unlock()

		for _, w := range waiting {
			w <- err
		}
		if err != nil {
			slog.Error("LISTEN failed", "channel", ch, "error", err)
		}
	}

	for _, ch := range toUnlisten {
		if _, err := conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			// Leave it active so the next pass retries; stray delivery in
			// the meantime fans out to zero subscribers.
			slog.Warn("UNLISTEN failed, will retry", "channel", ch, "error", err)
			continue
		}
		l.mu.Lock()
		delete(l.active, ch)
		l.mu.Unlock()
	}
}

// reconnect re-establishes the dedicated connection with exponential
// backoff. The actual set resets to empty; the first reconcile on the new
// connection re-LISTENs everything still desired.
func (l *NotifyListener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
	l.connMu.Unlock()

	l.mu.Lock()
	l.active = make(map[string]bool)
	l.mu.Unlock()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("stream delivery reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		l.connMu.Lock()
		l.conn = conn
		l.connMu.Unlock()

		slog.Info("stream notify listener reconnected")
		return
	}
}

// Stop shuts the receive loop down, then closes the connection. Ordering
// matters: the loop must exit before the connection closes underneath its
// WaitForNotification.
func (l *NotifyListener) Stop(ctx context.Context) {
	l.running.Store(false)

	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
