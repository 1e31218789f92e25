package agent

import (
	"errors"
	"io"
	"strings"

	"github.com/harun/conflux/pkg/toolexecutor"
)

// RunParams contains input parameters for one tool-calling run
type RunParams struct {
	SystemPrompt string
	Prompt       string
	Tools        *toolexecutor.ToolExecutor
	// AllowedTools restricts the tools offered to the model. Empty means
	// every tool in Tools.
	AllowedTools []string
	// OnToolResult observes each tool result synchronously, in call order
	OnToolResult func(TraceEntry)
}

// RunResult contains output from a run
type RunResult struct {
	Response string       `json:"response"`
	Trace    []TraceEntry `json:"trace,omitempty"`
	Usage    *TokenUsage  `json:"usage,omitempty"`
}

// TraceEntry records one tool invocation of a run
type TraceEntry struct {
	ToolName   string                 `json:"tool_name"`
	ToolCallID string                 `json:"tool_call_id"`
	Parameters map[string]interface{} `json:"parameters"`
	Output     string                 `json:"output"`
	Err        error                  `json:"-"`
}

// AgentConfig configures model calls
type AgentConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	MaxTurns    int     `json:"max_turns,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "anthropic", "openai", "gemini"
	APIKey        string `json:"api_key"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// ToolName is set on tool results for providers that match by name
	ToolName string `json:"tool_name,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// ToolSchema is a tool rendered for a provider
type ToolSchema struct {
	Name        string
	Description string
	Parameters  []toolexecutor.ToolParameter
	InputSchema map[string]interface{}
}

// Required returns the names of required parameters
func (s ToolSchema) Required() []string {
	var required []string
	for _, p := range s.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

// DefaultConfig returns default agent configuration
func DefaultConfig() AgentConfig {
	return AgentConfig{
		Model:       "gemini-1.5-flash",
		Temperature: 0.1,
		MaxTokens:   4096,
		MaxTurns:    10,
		MaxRetries:  3,
	}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"econnreset", "etimedout", "connection reset", "connection refused",
		"429", "rate limit", "resource_exhausted",
		"500", "502", "503", "504", "overloaded", "unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
