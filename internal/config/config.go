package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Conflux configuration
type Config struct {
	Server       ServerConfig       `json:"server" mapstructure:"server"`
	AI           AIConfig           `json:"ai" mapstructure:"ai"`
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`
	Storage      StorageConfig      `json:"storage" mapstructure:"storage"`
	Integrations IntegrationsConfig `json:"integrations" mapstructure:"integrations"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
	Tracing      TracingConfig      `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	Host      string          `json:"host" mapstructure:"host"`
	Port      int             `json:"port" mapstructure:"port"`
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// AIConfig holds language model configuration shared by the planner and the agent
type AIConfig struct {
	Profiles     []AIProfile `json:"profiles" mapstructure:"profiles"`
	Model        string      `json:"model" mapstructure:"model"`
	PlannerModel string      `json:"planner_model" mapstructure:"planner_model"`
	Temperature  float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int         `json:"max_tokens" mapstructure:"max_tokens"`
	MaxTurns     int         `json:"max_turns" mapstructure:"max_turns"`
	MaxRetries   int         `json:"max_retries" mapstructure:"max_retries"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// OrchestratorConfig selects how planned tasks are executed
type OrchestratorConfig struct {
	Mode             string `json:"mode" mapstructure:"mode"`                           // combined, strict
	DependencyPolicy string `json:"dependency_policy" mapstructure:"dependency_policy"` // proceed, block
	FailureWindow    int    `json:"failure_window" mapstructure:"failure_window"`
}

// StorageConfig holds on-disk locations
type StorageConfig struct {
	DataDir          string `json:"data_dir" mapstructure:"data_dir"`
	DatabasePath     string `json:"database_path" mapstructure:"database_path"`
	KeysetPath       string `json:"keyset_path" mapstructure:"keyset_path"`
	ConversationsDir string `json:"conversations_dir" mapstructure:"conversations_dir"`
	AuditLogPath     string `json:"audit_log_path" mapstructure:"audit_log_path"`
}

// IntegrationsConfig holds service-wide integration settings
type IntegrationsConfig struct {
	DemoMode    bool              `json:"demo_mode" mapstructure:"demo_mode"`
	GoogleOAuth GoogleOAuthConfig `json:"google_oauth" mapstructure:"google_oauth"`
}

// GoogleOAuthConfig holds the OAuth client used to refresh Google tokens
type GoogleOAuthConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	TokenURL     string `json:"token_url" mapstructure:"token_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig toggles OpenTelemetry
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				MaxConcurrent:     10,
			},
		},
		AI: AIConfig{
			Profiles:    []AIProfile{},
			Model:       "gemini-2.5-flash",
			Temperature: 0.1,
			MaxTokens:   4096,
			MaxTurns:    10,
			MaxRetries:  3,
		},
		Orchestrator: OrchestratorConfig{
			Mode:             "combined",
			DependencyPolicy: "proceed",
			FailureWindow:    50,
		},
		Integrations: IntegrationsConfig{
			DemoMode: true,
			GoogleOAuth: GoogleOAuthConfig{
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "conflux",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// HasLLM reports whether at least one AI profile carries a key
func (c *Config) HasLLM() bool {
	for _, p := range c.AI.Profiles {
		if p.APIKey != "" {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid. An empty AI profile list is
// accepted; chat turns then end with a configuration error instead.
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidatePort(c.Server.Port); err != nil {
		return err
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if err := v.ValidateProvider(profile.Provider); err != nil {
			return fmt.Errorf("AI profile %s: %w", profile.ID, err)
		}
	}

	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("ai temperature must be between 0 and 1")
	}
	if c.AI.MaxTurns < 0 {
		return fmt.Errorf("ai max_turns cannot be negative")
	}

	if err := v.ValidateMode(c.Orchestrator.Mode); err != nil {
		return err
	}
	if err := v.ValidateDependencyPolicy(c.Orchestrator.DependencyPolicy); err != nil {
		return err
	}
	if c.Orchestrator.FailureWindow <= 0 {
		return fmt.Errorf("orchestrator failure_window must be positive")
	}

	return v.ValidateLogLevel(c.Logging.Level)
}
