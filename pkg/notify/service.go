package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers operational Slack notifications. Nil-safe: every method
// is a no-op when the service itself is nil, so callers can wire a disabled
// notifier without branching at every call site.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new notification Service. Returns nil if Token or
// Channel is empty; absent config disables the feature.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client,
// used in tests against a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyDeadLettered alerts that an execution exhausted its retry budget.
// Implements pkg/queue.DeadLetterNotifier. Fail-open: errors are logged,
// never returned, so a Slack outage never blocks the worker's dead-letter
// path.
func (s *Service) NotifyDeadLettered(ctx context.Context, executionID, finalError string) {
	if s == nil {
		return
	}
	blocks := BuildDeadLetterMessage(executionID, finalError, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("failed to send dead-letter notification", "execution_id", executionID, "error", err)
	}
}

// NotifyCancelled alerts that an execution was cancelled.
func (s *Service) NotifyCancelled(ctx context.Context, executionID string, reason models.CancellationReason, message string) {
	if s == nil {
		return
	}
	blocks := BuildCancellationMessage(executionID, reason, message, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("failed to send cancellation notification", "execution_id", executionID, "error", err)
	}
}
