package integrations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/conflux/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

// ServiceConfig is one user's decrypted auth material for one service
type ServiceConfig struct {
	APIKey      string                 `json:"api_key,omitempty"`
	Credentials map[string]interface{} `json:"credentials,omitempty"`
}

// Credential returns a string credential field, or ""
func (c ServiceConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	if v, ok := c.Credentials[key].(string); ok {
		return v
	}
	return ""
}

func (c ServiceConfig) clone() ServiceConfig {
	out := ServiceConfig{APIKey: c.APIKey}
	if c.Credentials != nil {
		out.Credentials = make(map[string]interface{}, len(c.Credentials))
		for k, v := range c.Credentials {
			out.Credentials[k] = v
		}
	}
	return out
}

// Invocation is a single tool call against a service backend
type Invocation struct {
	Service string
	Tool    string
	Params  map[string]interface{}
	Config  ServiceConfig
}

// Backend performs tool calls against the external services
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, inv Invocation) (string, error)

// Invoke calls f
func (f BackendFunc) Invoke(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}

// BuildTools returns a fresh executor holding the tools of every service in
// configs. Each handler is bound to its own copy of that service's config.
// Unknown services are skipped.
func BuildTools(configs map[string]ServiceConfig, backend Backend) *toolexecutor.ToolExecutor {
	exec := toolexecutor.New()

	services := make([]string, 0, len(configs))
	for s := range configs {
		services = append(services, s)
	}
	sort.Strings(services)

	for _, service := range services {
		specs, ok := catalog[service]
		if !ok {
			log.Debug().Str("service", service).Msg("No tools for service, skipping")
			continue
		}

		cfg := configs[service].clone()
		for _, spec := range specs {
			def := toolexecutor.ToolDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Service:     service,
				Parameters:  spec.Parameters,
				Handler:     newHandler(backend, service, spec.Name, cfg),
			}
			if err := exec.RegisterTool(def); err != nil {
				log.Error().Err(err).Str("tool", spec.Name).Msg("Failed to register tool")
			}
		}
	}

	return exec
}

// newHandler binds a tool to one service config. Backend errors become the
// "Error: ..." result string so every call yields a string.
func newHandler(backend Backend, service, tool string, cfg ServiceConfig) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		out, err := backend.Invoke(ctx, Invocation{
			Service: service,
			Tool:    tool,
			Params:  params,
			Config:  cfg.clone(),
		})
		if err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}
		return out, nil
	}
}

// ServiceForTool returns the service owning toolName, falling back to
// keyword matching and then "unknown"
func ServiceForTool(toolName string) string {
	if service, ok := toolOwner[toolName]; ok {
		return service
	}

	lower := strings.ToLower(toolName)
	switch {
	case strings.Contains(lower, "jira"):
		return "jira"
	case strings.Contains(lower, "gmail"), strings.Contains(lower, "email"):
		return "gmail"
	case strings.Contains(lower, "calendar"), strings.Contains(lower, "event"):
		return "calendar"
	case strings.Contains(lower, "slack"):
		return "slack"
	case strings.Contains(lower, "notion"):
		return "notion"
	}
	return "unknown"
}
