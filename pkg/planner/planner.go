package planner

import (
	"context"
	"errors"
	"strings"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Completer is the plain text completion capability used for planning
type Completer interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Config holds planner dependencies
type Config struct {
	// Completer enables model-driven planning. When nil only the keyword
	// heuristic runs.
	Completer Completer
	Logger    zerolog.Logger
}

// Planner turns a user message into a TaskPlan
type Planner struct {
	completer Completer
	heuristic KeywordPlanner
	logger    zerolog.Logger
}

// New creates a planner
func New(cfg Config) *Planner {
	return &Planner{
		completer: cfg.Completer,
		logger:    cfg.Logger,
	}
}

// PlanTasks builds the plan for message over the available services. Model
// failures are logged and fall back to the keyword heuristic; the call never
// fails. A model that answers with an empty list yields an empty plan.
func (p *Planner) PlanTasks(ctx context.Context, message string, available []string) *TaskPlan {
	ctx, span := tracing.StartSpan(ctx, "conflux.planner", "planner.plan_tasks",
		attribute.Int("services", len(available)))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)

	if p.completer != nil {
		plan, err := p.planWithModel(ctx, message, available)
		if err == nil {
			logger.Info().Int("tasks", plan.Total).Msg("Plan built by model")
			observability.RecordPlan(planSource("llm", plan), plan.Total)
			span.SetAttributes(attribute.String("source", "llm"), attribute.Int("tasks", plan.Total))
			return plan
		}
		logger.Warn().Err(err).Msg("Model planning failed, using keyword heuristic")
	}

	plan := p.heuristic.Plan(message, available)
	logger.Info().Int("tasks", plan.Total).Msg("Plan built by keyword heuristic")
	observability.RecordPlan(planSource("heuristic", plan), plan.Total)
	span.SetAttributes(attribute.String("source", "heuristic"), attribute.Int("tasks", plan.Total))
	return plan
}

func (p *Planner) planWithModel(ctx context.Context, message string, available []string) (*TaskPlan, error) {
	content, err := p.completer.Complete(ctx, planningSystemPrompt, BuildPlanningPrompt(message, available))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("empty planning response")
	}
	return ParsePlanResponse(content, available)
}

func planSource(source string, plan *TaskPlan) string {
	if plan.Total == 0 {
		return "empty"
	}
	return source
}
