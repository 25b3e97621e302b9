package config

import "fmt"

// Validator validates configuration comprehensively with clear,
// fail-fast error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateTimeout(); err != nil {
		return fmt.Errorf("timeout validation failed: %w", err)
	}
	if err := v.validateRBAC(); err != nil {
		return fmt.Errorf("rbac validation failed: %w", err)
	}
	if err := v.validateMutex(); err != nil {
		return fmt.Errorf("mutex validation failed: %w", err)
	}
	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}
	if err := v.validateSubmission(); err != nil {
		return fmt.Errorf("submission validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateSubmission() error {
	s := v.cfg.Submission
	if s.DedupWindow <= 0 {
		return NewValidationError("submission", "dedup_window", fmt.Errorf("must be positive"))
	}
	if s.EstimatedStepDuration <= 0 {
		return NewValidationError("submission", "estimated_step_duration", fmt.Errorf("must be positive"))
	}
	if s.CleanupTimeout <= 0 {
		return NewValidationError("submission", "cleanup_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateServer() error {
	if v.cfg.Server.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", fmt.Errorf("required"))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.Host == "" {
		return NewValidationError("database", "host", fmt.Errorf("required"))
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return NewValidationError("database", "max_idle_conns", fmt.Errorf("cannot exceed max_open_conns (%d)", d.MaxOpenConns))
	}
	if d.MaxOpenConns < 1 {
		return NewValidationError("database", "max_open_conns", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("must be between 1 and 50, got %d", q.WorkerCount))
	}
	if q.BatchSize < 1 || q.BatchSize > 100 {
		return NewValidationError("queue", "batch_size", fmt.Errorf("must be between 1 and 100, got %d", q.BatchSize))
	}
	if q.MaxConcurrentExecutions < 1 {
		return NewValidationError("queue", "max_concurrent_executions", fmt.Errorf("must be at least 1"))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "poll_interval", fmt.Errorf("must be positive"))
	}
	if q.PollIntervalJitter < 0 || q.PollIntervalJitter >= q.PollInterval {
		return NewValidationError("queue", "poll_interval_jitter", fmt.Errorf("must be non-negative and less than poll_interval"))
	}
	if q.VisibilityTimeout <= 0 {
		return NewValidationError("queue", "visibility_timeout", fmt.Errorf("must be positive"))
	}
	if q.HeartbeatInterval <= 0 || q.HeartbeatInterval >= q.VisibilityTimeout {
		return NewValidationError("queue", "heartbeat_interval", fmt.Errorf("must be positive and less than visibility_timeout, to prevent false lease expiry"))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}
	if q.LeaseReapInterval <= 0 {
		return NewValidationError("queue", "lease_reap_interval", fmt.Errorf("must be positive"))
	}
	if q.LeaseReapThreshold <= 0 {
		return NewValidationError("queue", "lease_reap_threshold", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r.ExecutionRetentionDays < 1 {
		return NewValidationError("retention", "execution_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.EventTTL <= 0 {
		return NewValidationError("retention", "event_ttl", fmt.Errorf("must be positive"))
	}
	if r.DeadLetterRetentionDays < 1 {
		return NewValidationError("retention", "dead_letter_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateTimeout() error {
	t := v.cfg.Timeout
	if t.BufferFraction < 0 || t.BufferFraction >= 1 {
		return NewValidationError("timeout", "buffer_fraction", fmt.Errorf("must be in [0, 1)"))
	}
	requiredSLA := []string{"fast", "medium", "long"}
	requiredAction := []string{"read", "write", "complex"}
	for _, sla := range requiredSLA {
		row, ok := t.Matrix[sla]
		if !ok {
			return NewValidationError("timeout", "matrix", fmt.Errorf("missing sla class %q", sla))
		}
		for _, action := range requiredAction {
			d, ok := row[action]
			if !ok || d.Duration <= 0 {
				return NewValidationError("timeout", "matrix", fmt.Errorf("sla class %q action %q must have a positive duration", sla, action))
			}
		}
	}
	return nil
}

func (v *Validator) validateRBAC() error {
	switch v.cfg.RBAC.Mode {
	case RBACModeStrict, RBACModePermissive:
		return nil
	default:
		return NewValidationError("rbac", "mode", fmt.Errorf("must be %q or %q, got %q", RBACModeStrict, RBACModePermissive, v.cfg.RBAC.Mode))
	}
}

func (v *Validator) validateMutex() error {
	m := v.cfg.Mutex
	if m.RedisAddr == "" {
		return NewValidationError("mutex", "redis_addr", fmt.Errorf("required"))
	}
	if m.LeaseDuration <= 0 {
		return NewValidationError("mutex", "lease_duration", fmt.Errorf("must be positive"))
	}
	if m.HeartbeatEvery <= 0 || m.HeartbeatEvery >= m.LeaseDuration {
		return NewValidationError("mutex", "heartbeat_every", fmt.Errorf("must be positive and less than lease_duration"))
	}
	if m.AcquireRetries < 0 {
		return NewValidationError("mutex", "acquire_retries", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func (v *Validator) validateSlack() error {
	s := v.cfg.Slack
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Channel == "" {
		return NewValidationError("slack", "channel", fmt.Errorf("required when slack is enabled"))
	}
	if s.TokenEnv == "" {
		return NewValidationError("slack", "token_env", fmt.Errorf("required when slack is enabled"))
	}
	return nil
}
