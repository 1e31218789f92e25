package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxTurns     = 10
	defaultMaxRetries   = 3
	defaultSystemPrompt = "You are a helpful assistant."
)

// ErrToolNotAllowed is the error of a tool call outside RunParams.AllowedTools
var ErrToolNotAllowed = errors.New("tool not allowed")

// Runner drives tool-calling runs over the configured LLM providers
type Runner struct {
	logger          zerolog.Logger
	providerFactory ProviderCreator
	config          AgentConfig
	plannerModel    string
	newBackOff      func() backoff.BackOff

	// Auth profiles
	authProfiles []AuthProfile
	authMu       sync.RWMutex
}

// Config holds runner configuration
type Config struct {
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
	Agent           AgentConfig
	// PlannerModel is the model used by Complete. Defaults to Agent.Model.
	PlannerModel string
	// BackOff builds the retry schedule of one LLM call
	BackOff func() backoff.BackOff
}

// NewRunner creates a new runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	agentCfg := cfg.Agent
	defaults := DefaultConfig()
	if agentCfg.Model == "" {
		agentCfg.Model = defaults.Model
	}
	if agentCfg.MaxTurns == 0 {
		agentCfg.MaxTurns = defaultMaxTurns
	}
	if agentCfg.MaxRetries == 0 {
		agentCfg.MaxRetries = defaultMaxRetries
	}
	if err := validateConfig(agentCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	newBackOff := cfg.BackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.Multiplier = 2
			return b
		}
	}

	plannerModel := cfg.PlannerModel
	if plannerModel == "" {
		plannerModel = agentCfg.Model
	}

	profiles := make([]AuthProfile, len(cfg.AuthProfiles))
	copy(profiles, cfg.AuthProfiles)

	return &Runner{
		logger:          cfg.Logger,
		providerFactory: providerFactory,
		config:          agentCfg,
		plannerModel:    plannerModel,
		newBackOff:      newBackOff,
		authProfiles:    profiles,
	}, nil
}

// validateConfig validates agent configuration
func validateConfig(config AgentConfig) error {
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxTurns < 0 {
		return fmt.Errorf("max turns cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Run executes one tool-calling run. Tool results are appended to the
// trace and handed to OnToolResult as they are produced.
func (r *Runner) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx, span := tracing.StartSpan(ctx, "conflux.agent", "agent.run",
		attribute.Int("allowedTools", len(params.AllowedTools)))
	defer span.End()

	tools := buildTools(params)
	span.SetAttributes(attribute.Int("tools", len(tools)))

	systemPrompt := params.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	var result *RunResult
	err := r.executeWithFailover(ctx, func(ctx context.Context, provider LLMProvider) (bool, error) {
		res, err := r.executeWithTools(ctx, provider, systemPrompt, tools, params)
		if err != nil {
			// Tools already ran; replaying on another profile would repeat them
			return res == nil || len(res.Trace) == 0, err
		}
		result = res
		return false, nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("toolCalls", len(result.Trace)))
	return result, nil
}

// Complete makes a plain completion without tools
func (r *Runner) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "conflux.agent", "agent.complete")
	defer span.End()

	var content string
	err := r.executeWithFailover(ctx, func(ctx context.Context, provider LLMProvider) (bool, error) {
		resp, err := r.callLLMWithRetry(ctx, provider, LLMRequest{
			Model:        r.plannerModel,
			Messages:     []AgentMessage{{Role: "user", Content: prompt}},
			Temperature:  r.config.Temperature,
			MaxTokens:    r.config.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			return true, err
		}
		content = resp.Content
		return false, nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	return content, nil
}

// buildTools renders the executor's tools, restricted to AllowedTools
func buildTools(params RunParams) []ToolSchema {
	if params.Tools == nil {
		return nil
	}

	defs := params.Tools.Definitions(params.AllowedTools)
	tools := make([]ToolSchema, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
			InputSchema: def.JSONSchema(),
		})
	}
	return tools
}

// executeWithFailover tries auth profiles by priority. attempt reports
// whether a failure may move on to the next profile.
func (r *Runner) executeWithFailover(ctx context.Context, attempt func(context.Context, LLMProvider) (bool, error)) error {
	r.authMu.RLock()
	profiles := make([]AuthProfile, len(r.authProfiles))
	copy(profiles, r.authProfiles)
	r.authMu.RUnlock()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	sortProfilesByPriority(profiles)

	var lastErr error

	for _, profile := range profiles {
		profileStart := time.Now()
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, true)
			logger.Debug().
				Str("profileId", profile.ID).
				Msg("Skipping profile in cooldown")
			continue
		}

		logger.Debug().Str("profileId", profile.ID).Str("provider", profile.Provider).Msg("Trying auth profile")

		provider, err := r.providerFactory.NewProvider(profile)
		if err != nil {
			lastErr = err
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
			logger.Warn().
				Str("profileId", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			continue
		}

		canFailover, err := r.attemptWithProvider(ctx, provider, attempt)
		if err == nil {
			r.updateProfileSuccess(profile.ID)
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), true)
			return nil
		}

		lastErr = err
		observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
		logger.Warn().
			Str("profileId", profile.ID).
			Err(err).
			Msg("Auth profile failed")

		r.updateProfileFailure(profile.ID)

		if !canFailover || !IsRetryableError(err) {
			return err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("every profile is in cooldown")
	}
	logger.Error().Err(lastErr).Msg("All auth profiles failed")
	return fmt.Errorf("all auth profiles failed: %w", lastErr)
}

func (r *Runner) attemptWithProvider(ctx context.Context, provider LLMProvider, attempt func(context.Context, LLMProvider) (bool, error)) (bool, error) {
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	ctx, span := tracing.StartSpan(ctx, "conflux.agent", "agent.execute_with_provider",
		attribute.String("provider", provider.Provider()))
	defer span.End()

	canFailover, err := attempt(ctx, provider)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return canFailover, err
}

// executeWithTools handles the tool execution loop
func (r *Runner) executeWithTools(ctx context.Context, provider LLMProvider, systemPrompt string, tools []ToolSchema, params RunParams) (*RunResult, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)
	messages := []AgentMessage{{Role: "user", Content: params.Prompt}}
	result := &RunResult{}

	// nil allows every call; unknown tools are reported by the executor
	var allowed map[string]bool
	if len(params.AllowedTools) > 0 {
		allowed = make(map[string]bool, len(params.AllowedTools))
		for _, name := range params.AllowedTools {
			allowed[name] = true
		}
	}

	for turn := 0; turn < r.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		response, err := r.callLLMWithRetry(ctx, provider, LLMRequest{
			Model:        r.config.Model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  r.config.Temperature,
			MaxTokens:    r.config.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			return result, err
		}
		result.Usage = addUsage(result.Usage, response.Usage)

		if len(response.ToolCalls) == 0 {
			result.Response = response.Content
			return result, nil
		}

		messages = append(messages, AgentMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			entry := invokeTool(ctx, params.Tools, allowed, call)
			logger.Debug().
				Str("tool", call.Name).
				Str("toolCallId", call.ID).
				Bool("success", entry.Err == nil).
				Msg("Tool call finished")

			result.Trace = append(result.Trace, entry)
			if params.OnToolResult != nil {
				params.OnToolResult(entry)
			}

			content := entry.Output
			if entry.Err != nil {
				content = "Error: " + entry.Err.Error()
			}
			messages = append(messages, AgentMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				IsError:    entry.Err != nil,
			})
		}
	}

	return result, fmt.Errorf("maximum tool execution turns (%d) exceeded", r.config.MaxTurns)
}

func invokeTool(ctx context.Context, tools *toolexecutor.ToolExecutor, allowed map[string]bool, call ToolCall) TraceEntry {
	entry := TraceEntry{
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Parameters: call.Parameters,
	}

	if allowed != nil && !allowed[call.Name] {
		entry.Err = fmt.Errorf("%w: %s", ErrToolNotAllowed, call.Name)
		entry.Output = entry.Err.Error()
		return entry
	}
	if tools == nil {
		entry.Err = fmt.Errorf("tool not found: %s", call.Name)
		entry.Output = entry.Err.Error()
		return entry
	}

	res := tools.Execute(ctx, call.Name, call.Parameters, &toolexecutor.ExecutionContext{
		UserID:         tracing.GetUserID(ctx),
		ConversationID: tracing.GetConversationID(ctx),
		TaskID:         tracing.GetTaskID(ctx),
	})
	entry.Output = res.OutputString()
	if !res.Success {
		entry.Err = errors.New(res.Error)
	}
	return entry
}

// callLLMWithRetry calls the provider with exponential backoff on retryable errors
func (r *Runner) callLLMWithRetry(ctx context.Context, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)
	attempt := 0

	op := func() (*LLMResponse, error) {
		attempt++
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}
		if !IsRetryableError(err) {
			return nil, backoff.Permanent(err)
		}
		logger.Info().
			Int("attempt", attempt).
			Str("provider", provider.Provider()).
			Err(err).
			Msg("Retrying after error")
		return nil, err
	}

	response, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.MaxRetries)))
	if err != nil {
		if IsRetryableError(err) {
			return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, err)
		}
		return nil, err
	}
	return response, nil
}

func addUsage(total, next *TokenUsage) *TokenUsage {
	if next == nil {
		return total
	}
	if total == nil {
		total = &TokenUsage{}
	}
	total.InputTokens += next.InputTokens
	total.OutputTokens += next.OutputTokens
	return total
}

// updateProfileSuccess resets failure count for a profile
func (r *Runner) updateProfileSuccess(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount = 0
			r.authProfiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(r.authProfiles[i].Provider, false)
			break
		}
	}
}

// updateProfileFailure puts a profile in cooldown, one minute per failure
func (r *Runner) updateProfileFailure(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount++
			cooldownMs := time.Now().UnixMilli() + int64(60000*r.authProfiles[i].FailureCount)
			r.authProfiles[i].CooldownUntil = &cooldownMs
			observability.SetProviderCooldown(r.authProfiles[i].Provider, true)
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
