package config

import (
	"fmt"
	"strings"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks the AI provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "anthropic", "openai", "gemini":
		return nil
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("invalid provider %s (must be: anthropic, openai, gemini)", provider)
	}
}

// ValidateAPIKey checks the key prefix for providers that have a stable one
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Google API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidatePort checks that the port is in the valid TCP range
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", port)
	}
	return nil
}

// ValidateMode checks the orchestrator execution mode
func (v *Validator) ValidateMode(mode string) error {
	switch mode {
	case "combined", "strict":
		return nil
	default:
		return fmt.Errorf("invalid orchestrator mode %q (must be: combined, strict)", mode)
	}
}

// ValidateDependencyPolicy checks how failed dependencies are handled
func (v *Validator) ValidateDependencyPolicy(policy string) error {
	switch policy {
	case "proceed", "block":
		return nil
	default:
		return fmt.Errorf("invalid dependency policy %q (must be: proceed, block)", policy)
	}
}

// ValidateLogLevel checks the zerolog level name
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (must be: debug, info, warn, error)", level)
	}
}
