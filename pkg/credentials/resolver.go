package credentials

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/conflux/pkg/integrations"
)

// ResolveAll looks up every supported service for userID. Only connected
// services appear in the result.
func ResolveAll(ctx context.Context, resolver Resolver, userID string) (map[string]integrations.ServiceConfig, error) {
	configs := make(map[string]integrations.ServiceConfig)
	for _, service := range integrations.SupportedServices() {
		cfg, ok, err := resolver.Credentials(ctx, userID, service)
		if err != nil {
			return nil, fmt.Errorf("resolve %s credentials: %w", service, err)
		}
		if ok && cfg != nil {
			configs[service] = *cfg
		}
	}
	return configs, nil
}

// MemoryResolver is an in-memory Resolver keyed by user and service
type MemoryResolver struct {
	mu      sync.RWMutex
	configs map[string]map[string]integrations.ServiceConfig
}

// NewMemoryResolver creates an empty resolver
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{configs: make(map[string]map[string]integrations.ServiceConfig)}
}

// Set stores cfg for userID and service
func (m *MemoryResolver) Set(userID, service string, cfg integrations.ServiceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.configs[userID] == nil {
		m.configs[userID] = make(map[string]integrations.ServiceConfig)
	}
	m.configs[userID][service] = cfg
}

// Credentials implements Resolver
func (m *MemoryResolver) Credentials(ctx context.Context, userID, service string) (*integrations.ServiceConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[userID][service]
	if !ok {
		return nil, false, nil
	}
	return &cfg, true, nil
}
