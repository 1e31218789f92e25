package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
	getenv     func(string) string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		getenv:     os.Getenv,
	}
}

// envKeys are the scalar settings that can be overridden with CONFLUX_* variables,
// e.g. CONFLUX_SERVER_PORT or CONFLUX_ORCHESTRATOR_MODE.
var envKeys = []string{
	"server.host",
	"server.port",
	"server.rate_limit.requests_per_minute",
	"server.rate_limit.max_concurrent",
	"ai.model",
	"ai.planner_model",
	"ai.temperature",
	"ai.max_tokens",
	"ai.max_turns",
	"ai.max_retries",
	"orchestrator.mode",
	"orchestrator.dependency_policy",
	"orchestrator.failure_window",
	"storage.data_dir",
	"storage.database_path",
	"storage.keyset_path",
	"storage.conversations_dir",
	"storage.audit_log_path",
	"integrations.demo_mode",
	"integrations.google_oauth.client_id",
	"integrations.google_oauth.client_secret",
	"integrations.google_oauth.token_url",
	"logging.level",
	"logging.file",
	"logging.console",
	"logging.pretty",
	"logging.redaction",
	"tracing.enabled",
	"tracing.service_name",
}

// Load reads the config file (if present), applies CONFLUX_* overrides and
// fills in derived paths and provider profiles from well-known API key variables.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("CONFLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.applyDefaults(cfg); err != nil {
		return nil, err
	}
	l.applyEnvProfiles(cfg)

	return cfg, nil
}

func (l *Loader) applyDefaults(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Storage.DataDir = filepath.Join(home, ".conflux")
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.DataDir, "conflux.db")
	}
	if cfg.Storage.KeysetPath == "" {
		cfg.Storage.KeysetPath = filepath.Join(cfg.Storage.DataDir, "keyset.json")
	}
	if cfg.Storage.ConversationsDir == "" {
		cfg.Storage.ConversationsDir = filepath.Join(cfg.Storage.DataDir, "conversations")
	}
	if cfg.Storage.AuditLogPath == "" {
		cfg.Storage.AuditLogPath = filepath.Join(cfg.Storage.DataDir, "audit.log")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.Storage.DataDir, "conflux.log")
	}
	if cfg.AI.PlannerModel == "" {
		cfg.AI.PlannerModel = cfg.AI.Model
	}
	return nil
}

// applyEnvProfiles synthesizes AI profiles from provider key variables when
// the config file does not declare any.
func (l *Loader) applyEnvProfiles(cfg *Config) {
	if len(cfg.AI.Profiles) > 0 {
		return
	}

	candidates := []struct {
		env      string
		provider string
	}{
		{"GOOGLE_API_KEY", "gemini"},
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"OPENAI_API_KEY", "openai"},
	}

	for i, c := range candidates {
		key := l.getenv(c.env)
		if key == "" {
			continue
		}
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       c.provider + "-env",
			Provider: c.provider,
			APIKey:   key,
			Priority: i,
		})
	}
}

// Save writes the configuration to the loader's path
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(cfg.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".conflux", "conflux.json"), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
