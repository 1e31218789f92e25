package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/conflux/internal/config"
	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/pkg/agent"
	"github.com/harun/conflux/pkg/chat"
	"github.com/harun/conflux/pkg/coordinator"
	"github.com/harun/conflux/pkg/credentials"
	"github.com/harun/conflux/pkg/integrations"
	"github.com/harun/conflux/pkg/planner"
	"github.com/rs/zerolog"
)

// prepareDataDir creates the data directory and points the audit trail at
// its file
func prepareDataDir(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(cfg.Storage.AuditLogPath); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	return nil
}

// openCredentials opens the encrypted integration store, creating the keyset
// on first use
func openCredentials(cfg *config.Config, log zerolog.Logger) (*credentials.Store, error) {
	handle, created, err := credentials.LoadOrCreateKeyset(cfg.Storage.KeysetPath)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("path", cfg.Storage.KeysetPath).Msg("Generated new keyset")
	}

	cipher, err := credentials.NewAEADCipher(handle)
	if err != nil {
		return nil, err
	}
	return credentials.Open(cfg.Storage.DatabasePath, cipher, log)
}

// newRunner builds the agent runner from the configured AI profiles
func newRunner(cfg *config.Config, log zerolog.Logger) (*agent.Runner, error) {
	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}

	return agent.NewRunner(agent.Config{
		Logger:       log.With().Str("component", "agent").Logger(),
		AuthProfiles: profiles,
		Agent: agent.AgentConfig{
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			MaxTurns:    cfg.AI.MaxTurns,
			MaxRetries:  cfg.AI.MaxRetries,
		},
		PlannerModel: cfg.AI.PlannerModel,
	})
}

// newPlanner returns a model-backed planner when runner is set, else the
// keyword heuristic alone
func newPlanner(runner *agent.Runner, log zerolog.Logger) *planner.Planner {
	pc := planner.Config{Logger: log.With().Str("component", "planner").Logger()}
	if runner != nil {
		pc.Completer = runner
	}
	return planner.New(pc)
}

// unavailableAgent stands in for the runner when no AI profile is
// configured. The chat service rejects such turns before execution.
type unavailableAgent struct{}

func (unavailableAgent) Run(context.Context, agent.RunParams) (*agent.RunResult, error) {
	return nil, chat.ErrNoLLM
}

func newCoordinator(cfg *config.Config, runner *agent.Runner, log zerolog.Logger) (*coordinator.Coordinator, error) {
	var a coordinator.Agent = unavailableAgent{}
	if runner != nil {
		a = runner
	}
	return coordinator.New(coordinator.Config{
		Agent:            a,
		Mode:             coordinator.Mode(cfg.Orchestrator.Mode),
		DependencyPolicy: coordinator.DependencyPolicy(cfg.Orchestrator.DependencyPolicy),
		Classifier:       coordinator.LeadingErrorClassifier{Window: cfg.Orchestrator.FailureWindow},
		Logger:           log.With().Str("component", "coordinator").Logger(),
	})
}

// newBackend selects the tool backend. Live SaaS clients are not part of
// this server, so demo mode off answers every call with an error.
func newBackend(cfg *config.Config) integrations.Backend {
	if !cfg.Integrations.DemoMode {
		return integrations.UnavailableBackend{}
	}

	backend := &integrations.DemoBackend{}
	oauth := cfg.Integrations.GoogleOAuth
	if oauth.ClientID != "" && oauth.ClientSecret != "" {
		backend.Tokens = integrations.NewOAuthTokenSource(oauth.ClientID, oauth.ClientSecret, oauth.TokenURL)
	}
	return backend
}
