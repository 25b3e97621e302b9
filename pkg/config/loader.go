package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileYAMLConfig represents the complete execution-core.yaml file structure.
type fileYAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Queue     *QueueConfig     `yaml:"queue"`
	Retention *RetentionConfig `yaml:"retention"`
	Timeout   *TimeoutConfig   `yaml:"timeout"`
	RBAC      *RBACConfig      `yaml:"rbac"`
	Masking   *MaskingConfig   `yaml:"masking"`
	Mutex      *MutexConfig      `yaml:"mutex"`
	Secrets    *SecretsConfig    `yaml:"secrets"`
	Slack      *SlackConfig      `yaml:"slack"`
	Submission *SubmissionConfig `yaml:"submission"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading, called once from
// cmd/execution-core/main.go.
//
// Steps performed:
//  1. Load execution-core.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined values onto built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized successfully",
		"rbac_mode", cfg.RBAC.Mode,
		"worker_count", cfg.Queue.WorkerCount,
		"masking_enabled", cfg.Masking.Enabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	file, err := loader.loadFileYAML()
	if err != nil {
		return nil, NewLoadError("execution-core.yaml", err)
	}

	server := file.Server
	if server == nil {
		server = DefaultServerConfig()
	}

	database := file.Database
	if database == nil {
		database = DefaultDatabaseConfig()
	}
	if pw := os.Getenv("EXECUTION_CORE_DB_PASSWORD"); pw != "" {
		database.Password = pw
	}

	queue, err := mergeQueue(file.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to merge queue config: %w", err)
	}

	retention, err := mergeRetention(file.Retention)
	if err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}

	mutex, err := mergeMutex(file.Mutex)
	if err != nil {
		return nil, fmt.Errorf("failed to merge mutex config: %w", err)
	}

	timeout := file.Timeout
	if timeout == nil {
		timeout = DefaultTimeoutConfig()
	}

	rbac := file.RBAC
	if rbac == nil {
		rbac = DefaultRBACConfig()
	}

	masking := file.Masking
	if masking == nil {
		masking = DefaultMaskingConfig()
	}

	secrets := file.Secrets
	if secrets == nil {
		secrets = DefaultSecretsConfig()
	}

	slackCfg := file.Slack
	if slackCfg == nil {
		slackCfg = DefaultSlackConfig()
	}

	submission, err := mergeSubmission(file.Submission)
	if err != nil {
		return nil, fmt.Errorf("failed to merge submission config: %w", err)
	}

	return &Config{
		configDir:  configDir,
		Server:     server,
		Database:   database,
		Queue:      queue,
		Retention:  retention,
		Timeout:    timeout,
		RBAC:       rbac,
		Masking:    masking,
		Mutex:      mutex,
		Secrets:    secrets,
		Slack:      slackCfg,
		Submission: submission,
	}, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables before parsing. Missing variables expand
	// to empty string; validation catches required fields left empty.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadFileYAML() (*fileYAMLConfig, error) {
	var cfg fileYAMLConfig
	if err := l.loadYAML("execution-core.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
