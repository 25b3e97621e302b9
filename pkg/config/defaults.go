package config

import "time"

// DefaultServerConfig returns the built-in HTTP server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: ":8080",
	}
}

// DefaultDatabaseConfig returns the built-in database connection-pool
// production defaults (25 max open, 10 max idle).
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "execution_core",
		Database:        "execution_core",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// DefaultRBACConfig returns the built-in RBAC defaults. Strict mode is the
// safer default; permissive mode must be chosen explicitly.
func DefaultRBACConfig() *RBACConfig {
	return &RBACConfig{Mode: RBACModeStrict, Timeout: 5 * time.Second}
}

// DefaultMaskingConfig returns the built-in masking defaults: always on,
// using the baseline pattern group.
func DefaultMaskingConfig() *MaskingConfig {
	return &MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"baseline"},
		MaskPII:       false,
	}
}

// DefaultMutexConfig returns the built-in Mutex Guard defaults: a 5-minute
// lease heartbeated every 30 seconds, so a holder misses several heartbeats
// before its lock becomes reapable.
func DefaultMutexConfig() *MutexConfig {
	return &MutexConfig{
		RedisAddr:      "localhost:6379",
		RedisDB:        0,
		LeaseDuration:  5 * time.Minute,
		HeartbeatEvery: 30 * time.Second,
		AcquireRetries: 5,
		AcquireBackoff: 200 * time.Millisecond,
	}
}

// DefaultSubmissionConfig returns the built-in Stage-E front-door defaults.
func DefaultSubmissionConfig() *SubmissionConfig {
	return &SubmissionConfig{
		DedupWindow:           24 * time.Hour,
		EstimatedStepDuration: 2 * time.Second,
		InlineThreshold:       10 * time.Second,
		ApprovalTTL:           24 * time.Hour,
		CleanupTimeout:        30 * time.Second,
	}
}

// DefaultSecretsConfig returns the built-in Secrets Resolver defaults.
func DefaultSecretsConfig() *SecretsConfig {
	return &SecretsConfig{
		VaultAddr:  "http://localhost:8200",
		VaultToken: "VAULT_TOKEN",
		MountPath:  "secret/data",
	}
}

// DefaultSlackConfig returns the built-in Slack notification defaults
// (disabled unless explicitly enabled).
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}

// DefaultTimeoutConfig returns the built-in SLA-class × action-class
// timeout matrix.
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		BufferFraction: 0.1,
		Matrix: map[string]map[string]Duration{
			"fast": {
				"read":    {30 * time.Second},
				"write":   {1 * time.Minute},
				"complex": {2 * time.Minute},
			},
			"medium": {
				"read":    {2 * time.Minute},
				"write":   {5 * time.Minute},
				"complex": {10 * time.Minute},
			},
			"long": {
				"read":    {10 * time.Minute},
				"write":   {30 * time.Minute},
				"complex": {1 * time.Hour},
			},
		},
	}
}
