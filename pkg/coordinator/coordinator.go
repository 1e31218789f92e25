package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/harun/conflux/pkg/agent"
	"github.com/harun/conflux/pkg/events"
	"github.com/harun/conflux/pkg/integrations"
	"github.com/harun/conflux/pkg/planner"
	"github.com/harun/conflux/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Mode selects how a plan is handed to the agent
type Mode string

const (
	// ModeCombined runs the agent once over the whole plan
	ModeCombined Mode = "combined"
	// ModeStrict runs the agent once per eligible task with only its tool
	ModeStrict Mode = "strict"
)

// DependencyPolicy decides what strict mode does with tasks whose
// dependencies failed
type DependencyPolicy string

const (
	// DependencyProceed runs such tasks anyway, in declared order
	DependencyProceed DependencyPolicy = "proceed"
	// DependencyBlock fails such tasks without running them
	DependencyBlock DependencyPolicy = "block"
)

// Agent is the tool-calling capability driven by the coordinator
type Agent interface {
	Run(ctx context.Context, params agent.RunParams) (*agent.RunResult, error)
}

// Outcome is the result of executing one plan
type Outcome struct {
	Message string
	Actions []events.ActionResult
	Err     error
}

// Config holds coordinator configuration
type Config struct {
	Agent            Agent
	Mode             Mode
	DependencyPolicy DependencyPolicy
	Classifier       OutcomeClassifier
	SystemPrompt     string
	Logger           zerolog.Logger
}

// Coordinator executes task plans through the agent
type Coordinator struct {
	agent        Agent
	mode         Mode
	policy       DependencyPolicy
	classifier   OutcomeClassifier
	systemPrompt string
	logger       zerolog.Logger
}

// New creates a coordinator
func New(cfg Config) (*Coordinator, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}

	mode := cfg.Mode
	switch mode {
	case "":
		mode = ModeCombined
	case ModeCombined, ModeStrict:
	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}

	policy := cfg.DependencyPolicy
	switch policy {
	case "":
		policy = DependencyProceed
	case DependencyProceed, DependencyBlock:
	default:
		return nil, fmt.Errorf("unknown dependency policy: %s", policy)
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = LeadingErrorClassifier{Window: DefaultFailureWindow}
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return &Coordinator{
		agent:        cfg.Agent,
		mode:         mode,
		policy:       policy,
		classifier:   classifier,
		systemPrompt: systemPrompt,
		logger:       cfg.Logger,
	}, nil
}

// ErrorMessage is the assistant text recorded for a failed turn
func ErrorMessage(err error) string {
	return fmt.Sprintf("I encountered an error while processing your request: %v", err)
}

// AgentFailure is the action recorded for a failed turn
func AgentFailure(err error) events.ActionResult {
	return events.ActionResult{
		Service: "agent",
		Action:  "process_message",
		Success: false,
		Error:   err.Error(),
	}
}

// Execute runs plan and emits task events followed by exactly one terminal
// event. The caller has already emitted the plan event.
func (c *Coordinator) Execute(ctx context.Context, plan *planner.TaskPlan, tools *toolexecutor.ToolExecutor, message string, sink events.Sink) Outcome {
	ctx, span := tracing.StartSpan(ctx, "conflux.coordinator", "coordinator.execute",
		attribute.String("mode", string(c.mode)),
		attribute.Int("tasks", len(plan.Tasks)))
	defer span.End()

	t := &tracker{
		c:      c,
		ctx:    ctx,
		plan:   plan,
		tools:  tools,
		sink:   sink,
		logger: tracing.LoggerFromContext(ctx, c.logger),
	}

	var response string
	var err error
	switch {
	case len(plan.Tasks) == 0:
		t.logger.Debug().Msg("Empty plan, running single-shot")
		response, err = c.runSingleShot(ctx, t, message)
	case c.mode == ModeStrict:
		response, err = c.runStrict(ctx, t, message)
	default:
		response, err = c.runCombined(ctx, t, message)
	}

	if err != nil {
		tracing.RecordError(span, err)
		t.logger.Error().Err(err).Msg("Agent run failed")
		text := ErrorMessage(err)
		t.emit(events.Error(text))
		return Outcome{
			Message: text,
			Actions: append(t.actions, AgentFailure(err)),
			Err:     err,
		}
	}

	span.SetAttributes(
		attribute.Int("completed", plan.Completed),
		attribute.Int("failed", plan.Failed))
	t.emit(events.Complete(response, t.actions, plan.Total, plan.Completed, plan.Failed))
	return Outcome{Message: response, Actions: t.actionList()}
}

func (c *Coordinator) runSingleShot(ctx context.Context, t *tracker, message string) (string, error) {
	result, err := c.agent.Run(ctx, agent.RunParams{
		SystemPrompt: c.systemPrompt,
		Prompt:       message,
		Tools:        t.tools,
		OnToolResult: t.extra,
	})
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

func (c *Coordinator) runCombined(ctx context.Context, t *tracker, message string) (string, error) {
	result, err := c.agent.Run(ctx, agent.RunParams{
		SystemPrompt: c.systemPrompt,
		Prompt:       BuildInstruction(message, t.plan),
		Tools:        t.tools,
		OnToolResult: func(entry agent.TraceEntry) {
			task := t.firstPending(entry.ToolName)
			if task == nil {
				t.extra(entry)
				return
			}
			t.start(task)
			t.finish(task, entry)
		},
	})
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

func (c *Coordinator) runStrict(ctx context.Context, t *tracker, message string) (string, error) {
	var responses []string

	for {
		task := t.plan.NextTask()
		if task == nil {
			pending := t.plan.PendingTasks()
			if len(pending) == 0 {
				break
			}
			if c.policy == DependencyBlock {
				t.blockRemaining()
				break
			}
			task = pending[0]
			t.logger.Debug().Str("taskId", task.ID).Msg("Running task despite unfinished dependencies")
		}

		response, err := c.runTask(ctx, t, message, task)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(response) != "" {
			responses = append(responses, strings.TrimSpace(response))
		}
	}

	return strings.Join(responses, "\n\n"), nil
}

func (c *Coordinator) runTask(ctx context.Context, t *tracker, message string, task *planner.PlannedTask) (string, error) {
	ctx = tracing.WithTaskID(ctx, task.ID)
	t.start(task)

	matched := false
	result, err := c.agent.Run(ctx, agent.RunParams{
		SystemPrompt: c.systemPrompt,
		Prompt:       buildTaskPrompt(message, t.plan, task),
		Tools:        t.tools,
		AllowedTools: []string{task.ToolName},
		OnToolResult: func(entry agent.TraceEntry) {
			if !matched && entry.ToolName == task.ToolName {
				matched = true
				t.finish(task, entry)
				return
			}
			t.extra(entry)
		},
	})
	if err != nil {
		return "", err
	}

	if !matched {
		t.fail(task, fmt.Sprintf("agent did not invoke %s", task.ToolName))
	}
	return result.Response, nil
}

// tracker applies trace entries to the plan and emits the matching events.
// It runs on the coordinator goroutine only.
type tracker struct {
	c      *Coordinator
	ctx    context.Context
	plan   *planner.TaskPlan
	tools  *toolexecutor.ToolExecutor
	sink   events.Sink
	logger zerolog.Logger

	actions []events.ActionResult
	extras  int
}

func (t *tracker) emit(ev events.Event) {
	if err := t.sink.Emit(t.ctx, ev); err != nil {
		t.logger.Warn().Err(err).Str("eventType", ev.Type).Msg("Failed to emit event")
	}
}

func (t *tracker) actionList() []events.ActionResult {
	if t.actions == nil {
		return []events.ActionResult{}
	}
	return t.actions
}

func (t *tracker) firstPending(toolName string) *planner.PlannedTask {
	for _, task := range t.plan.Tasks {
		if task.Status == planner.StatusPending && task.ToolName == toolName {
			return task
		}
	}
	return nil
}

func (t *tracker) start(task *planner.PlannedTask) {
	t.plan.UpdateTaskStatus(task.ID, planner.StatusInProgress, "", "")
	t.emit(events.TaskStarted(task.ID, task.Service, task.Action, task.Description))
}

func (t *tracker) finish(task *planner.PlannedTask, entry agent.TraceEntry) {
	if t.c.classifier.Failed(entry) {
		t.fail(task, failureText(entry))
		t.record(task.Service, entry, false)
		return
	}

	t.plan.UpdateTaskStatus(task.ID, planner.StatusCompleted, entry.Output, "")
	observability.RecordTaskOutcome(task.Service, string(planner.StatusCompleted))
	t.logger.Debug().Str("taskId", task.ID).Str("tool", entry.ToolName).Msg("Task completed")
	t.emit(events.TaskCompleted(task.ID, task.Service, task.Action, entry.Output))
	t.record(task.Service, entry, true)
}

func (t *tracker) fail(task *planner.PlannedTask, errMsg string) {
	t.plan.UpdateTaskStatus(task.ID, planner.StatusFailed, "", errMsg)
	observability.RecordTaskOutcome(task.Service, string(planner.StatusFailed))
	t.logger.Info().Str("taskId", task.ID).Str("error", errMsg).Msg("Task failed")
	t.emit(events.TaskFailed(task.ID, task.Service, task.Action, errMsg))
}

// extra surfaces a trace entry that matches no pending task. It never
// touches the plan counters.
func (t *tracker) extra(entry agent.TraceEntry) {
	t.extras++
	id := fmt.Sprintf("extra_%d", t.extras)
	service := t.serviceFor(entry.ToolName)

	t.emit(events.TaskStarted(id, service, entry.ToolName, fmt.Sprintf("Call %s", entry.ToolName)))

	failed := t.c.classifier.Failed(entry)
	if failed {
		t.emit(events.TaskFailed(id, service, entry.ToolName, failureText(entry)))
	} else {
		t.emit(events.TaskCompleted(id, service, entry.ToolName, entry.Output))
	}
	t.record(service, entry, !failed)
}

func (t *tracker) record(service string, entry agent.TraceEntry, success bool) {
	action := events.ActionResult{
		Service: service,
		Action:  entry.ToolName,
		Success: success,
	}
	if success {
		action.Result = entry.Output
	} else {
		action.Error = failureText(entry)
	}
	t.actions = append(t.actions, action)
}

// blockRemaining fails every task that can no longer become eligible
func (t *tracker) blockRemaining() {
	for {
		blocked := t.plan.BlockedTasks()
		if len(blocked) == 0 {
			break
		}
		task := blocked[0]
		dep, _ := t.plan.FailedDependency(task)
		t.fail(task, fmt.Sprintf("blocked by failed dependency %s", dep))
	}

	// Anything left waits on a dependency that never ran
	for _, task := range t.plan.PendingTasks() {
		t.fail(task, "blocked by unfinished dependencies")
	}
}

func (t *tracker) serviceFor(toolName string) string {
	if t.tools != nil {
		if def := t.tools.GetTool(toolName); def != nil && def.Service != "" {
			return def.Service
		}
	}
	return integrations.ServiceForTool(toolName)
}

func failureText(entry agent.TraceEntry) string {
	if entry.Output != "" {
		return entry.Output
	}
	if entry.Err != nil {
		return entry.Err.Error()
	}
	return "unknown error"
}
