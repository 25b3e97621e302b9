// Package cancellation implements cooperative, idempotent,
// first-cancel-wins tokens carried into every asynchronous operation
// inside the Execution Engine, plus the per-step cleanup pass run when a
// cancelled execution terminates.
package cancellation

import (
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Token is a cooperative cancellation signal. The zero value is not usable;
// construct with NewToken. Safe for concurrent use.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	reason    models.CancellationReason
	message   string
	done      chan struct{}
	callbacks []func(models.CancellationReason, string)
}

// NewToken constructs an armed, not-yet-cancelled Token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Done returns a channel closed on first cancellation, so a select loop can
// poll it between suspension points the same way a context.Context is
// polled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// IsCancelled is a cheap, thread-safe read. Long operations must poll this
// between I/O boundaries and fail fast.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the cancellation reason, valid only once IsCancelled is
// true.
func (t *Token) Reason() models.CancellationReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Message returns the optional cancellation message.
func (t *Token) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// Cancel marks the token cancelled with the given reason/message.
// Cancelling an already-cancelled token is a no-op — first cancel wins.
// Registered callbacks fire exactly once, best-effort: a panicking
// callback is recovered and logged, never propagated to the caller.
func (t *Token) Cancel(reason models.CancellationReason, message string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	t.message = message
	callbacks := t.callbacks
	t.mu.Unlock()

	close(t.done)

	for _, cb := range callbacks {
		t.runCallback(cb, reason, message)
	}
}

// OnCancel registers a callback fired on first cancel. If the token is
// already cancelled, the callback runs immediately (still best-effort).
func (t *Token) OnCancel(cb func(models.CancellationReason, string)) {
	t.mu.Lock()
	if t.cancelled {
		reason, message := t.reason, t.message
		t.mu.Unlock()
		t.runCallback(cb, reason, message)
		return
	}
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

func (t *Token) runCallback(cb func(models.CancellationReason, string), reason models.CancellationReason, message string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cancellation callback panicked", "recovered", r)
		}
	}()
	cb(reason, message)
}
