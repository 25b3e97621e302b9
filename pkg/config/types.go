package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DSN renders a libpq-style connection string for both pgxpool and the
// golang-migrate/pgx.Connect paths, so cmd/execution-core and pkg/store
// build the exact same connection target from one place.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s pool_max_conns=%d", c.ListenDSN(), c.MaxOpenConns)
}

// ListenDSN renders the connection string for a single dedicated connection
// (the LISTEN/NOTIFY consumer): the same target as DSN but without the
// pgxpool-only pool_max_conns parameter, which plain pgx.Connect rejects.
func (c *DatabaseConfig) ListenDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RBACMode selects how strictly the RBAC Validator enforces the actor/asset
// permission matrix.
type RBACMode string

const (
	RBACModeStrict     RBACMode = "strict"
	RBACModePermissive RBACMode = "permissive"
)

// RBACConfig configures the RBAC Validator and its backing permission
// catalog client.
type RBACConfig struct {
	Mode         RBACMode      `yaml:"mode"`
	CatalogURL   string        `yaml:"catalog_url"`
	CatalogToken string        `yaml:"catalog_token_env"` // name of env var holding the bearer token
	Timeout      time.Duration `yaml:"timeout"`
}

// MaskingConfig configures the Log Masker (pkg/masking): a single
// process-wide masking policy applied at every output boundary.
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
	MaskPII        bool             `yaml:"mask_pii"`
}

// MaskingPattern defines a regex-based masking pattern.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// MutexConfig configures the Mutex Guard's Redis fast path plus Postgres
// fallback.
type MutexConfig struct {
	RedisAddr      string        `yaml:"redis_addr"`
	RedisDB        int           `yaml:"redis_db"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	HeartbeatEvery time.Duration `yaml:"heartbeat_every"`
	AcquireRetries int           `yaml:"acquire_retries"`
	AcquireBackoff time.Duration `yaml:"acquire_backoff"`
}

// SecretsConfig configures the Secrets Resolver's Vault backing store.
type SecretsConfig struct {
	VaultAddr  string `yaml:"vault_addr"`
	VaultToken string `yaml:"vault_token_env"` // name of env var holding the token
	MountPath  string `yaml:"mount_path"`
}

// SubmissionConfig configures the submission front door: the idempotency
// dedup window, the inline-vs-queued routing heuristic, approval gating,
// and the bounded cleanup pass run on cancellation.
type SubmissionConfig struct {
	// DedupWindow is how long a prior execution suppresses an identical
	// resubmission.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// EstimatedStepDuration is the per-step duration estimate used to
	// decide whether a plan is small enough to run inline.
	EstimatedStepDuration time.Duration `yaml:"estimated_step_duration"`

	// InlineThreshold is the estimated-duration ceiling under which a
	// fast-class plan runs inline instead of being queued.
	InlineThreshold time.Duration `yaml:"inline_threshold"`

	// ApprovalTTL is how long a pending approval gate stays open before
	// expiring.
	ApprovalTTL time.Duration `yaml:"approval_ttl"`

	// CleanupTimeout bounds the compensation-hook pass run when an
	// execution is cancelled.
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
}

// SlackConfig holds operational Slack notification settings for
// DLQ/cancellation alerts.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// TimeoutConfig holds the SLA-class × action-class timeout matrix consumed
// by pkg/timeoutpolicy.
type TimeoutConfig struct {
	BufferFraction float64                        `yaml:"buffer_fraction"`
	Matrix         map[string]map[string]Duration `yaml:"matrix"`
}

// Duration is a YAML-friendly wrapper over time.Duration parsed from
// strings like "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements custom duration string parsing for YAML config.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
