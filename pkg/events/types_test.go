package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionChannel(t *testing.T) {
	tests := []struct {
		name        string
		tenantID    string
		executionID string
		want        string
	}{
		{
			name:        "formats execution channel correctly",
			tenantID:    "acme",
			executionID: "abc-123",
			want:        "execution:acme:abc-123",
		},
		{
			name:        "handles UUID format",
			tenantID:    "acme",
			executionID: "550e8400-e29b-41d4-a716-446655440000",
			want:        "execution:acme:550e8400-e29b-41d4-a716-446655440000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExecutionChannel(tt.tenantID, tt.executionID)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTenantChannel(t *testing.T) {
	assert.Equal(t, "executions:acme", TenantChannel("acme"))
}

func TestEventTypeConstants(t *testing.T) {
	types := []string{
		EventTypeExecutionEvent,
		EventTypeExecutionProgress,
		EventTypeQueueDepth,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ, "event type should not be empty")
		assert.False(t, seen[typ], "duplicate event type: %s", typ)
		seen[typ] = true
	}
}

func TestStreamKeyChannel(t *testing.T) {
	execKey := StreamKey{TenantID: "acme", ExecutionID: "abc-123"}
	assert.Equal(t, "execution:acme:abc-123", execKey.Channel())
	assert.False(t, execKey.IsTenantWide())

	tenantKey := StreamKey{TenantID: "acme"}
	assert.Equal(t, "executions:acme", tenantKey.Channel())
	assert.True(t, tenantKey.IsTenantWide())
}

func TestStreamKeyFromChannel(t *testing.T) {
	key, ok := StreamKeyFromChannel("execution:acme:exec-1")
	assert.True(t, ok)
	assert.Equal(t, StreamKey{TenantID: "acme", ExecutionID: "exec-1"}, key)

	key, ok = StreamKeyFromChannel("executions:acme")
	assert.True(t, ok)
	assert.Equal(t, StreamKey{TenantID: "acme"}, key)

	_, ok = StreamKeyFromChannel("execution:missing-exec-id")
	assert.False(t, ok)

	_, ok = StreamKeyFromChannel("bogus")
	assert.False(t, ok)
}

func TestStreamKeyChannelRoundTrips(t *testing.T) {
	for _, key := range []StreamKey{
		{TenantID: "acme", ExecutionID: "550e8400-e29b-41d4-a716-446655440000"},
		{TenantID: "acme"},
	} {
		got, ok := StreamKeyFromChannel(key.Channel())
		assert.True(t, ok)
		assert.Equal(t, key, got)
	}
}
