package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	t.Run("NotifyDeadLettered is no-op", func(_ *testing.T) {
		s.NotifyDeadLettered(context.Background(), "exec-1", "boom")
	})

	t.Run("NotifyCancelled is no-op", func(_ *testing.T) {
		s.NotifyCancelled(context.Background(), "exec-1", models.ReasonTimeout, "")
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}
