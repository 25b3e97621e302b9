package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNotifyListener(t *testing.T) {
	manager := NewConnectionManager(&mockCatchupQuerier{}, 0)
	listener := NewNotifyListener("host=localhost dbname=test", manager)

	assert.NotNil(t, listener)
	assert.Equal(t, "host=localhost dbname=test", listener.connString)
	assert.NotNil(t, listener.desired)
	assert.NotNil(t, listener.active)
	assert.Equal(t, manager, listener.manager)
}

func TestNotifyListener_WithoutConnection(t *testing.T) {
	// Without Start(), the delivery connection doesn't exist. Subscribe
	// must refuse rather than block; Unsubscribe only retracts intent and
	// always succeeds.
	manager := NewConnectionManager(&mockCatchupQuerier{}, 0)
	listener := NewNotifyListener("host=localhost dbname=test", manager)

	t.Run("subscribe without connection returns error", func(t *testing.T) {
		err := listener.Subscribe(t.Context(), ExecutionChannel("acme", "exec-1"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not established")
	})

	t.Run("unsubscribe without connection is a no-op", func(t *testing.T) {
		err := listener.Unsubscribe(t.Context(), ExecutionChannel("acme", "exec-1"))
		assert.NoError(t, err)
	})
}

func TestNotifyListener_UnsubscribeRetractsDesire(t *testing.T) {
	manager := NewConnectionManager(&mockCatchupQuerier{}, 0)
	listener := NewNotifyListener("host=localhost dbname=test", manager)

	channel := ExecutionChannel("acme", "exec-9")
	listener.mu.Lock()
	listener.desired[channel] = true
	listener.mu.Unlock()

	err := listener.Unsubscribe(t.Context(), channel)
	assert.NoError(t, err)

	listener.mu.Lock()
	_, stillDesired := listener.desired[channel]
	listener.mu.Unlock()
	assert.False(t, stillDesired, "unsubscribe must clear the desired entry")
	assert.False(t, listener.isListening(channel))
}
