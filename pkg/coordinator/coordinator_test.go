package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harun/conflux/pkg/agent"
	"github.com/harun/conflux/pkg/events"
	"github.com/harun/conflux/pkg/planner"
	"github.com/harun/conflux/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAgent replays trace entries through OnToolResult. For strict
// runs the entries are chosen by the single allowed tool.
type scriptedAgent struct {
	trace    []agent.TraceEntry
	byTool   map[string][]agent.TraceEntry
	response string
	err      error

	calls []agent.RunParams
}

func (a *scriptedAgent) Run(ctx context.Context, params agent.RunParams) (*agent.RunResult, error) {
	a.calls = append(a.calls, params)

	entries := a.trace
	if len(params.AllowedTools) == 1 && a.byTool != nil {
		entries = a.byTool[params.AllowedTools[0]]
	}

	result := &agent.RunResult{Response: a.response}
	for _, e := range entries {
		result.Trace = append(result.Trace, e)
		if params.OnToolResult != nil {
			params.OnToolResult(e)
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return result, nil
}

func entry(tool, output string) agent.TraceEntry {
	return agent.TraceEntry{ToolName: tool, ToolCallID: "call-" + tool, Output: output}
}

func task(id, service, action, tool string, deps ...string) *planner.PlannedTask {
	return &planner.PlannedTask{
		ID:          id,
		Service:     service,
		Action:      action,
		Description: "Do " + action,
		ToolName:    tool,
		Parameters:  map[string]interface{}{},
		Status:      planner.StatusPending,
		DependsOn:   deps,
	}
}

func meetingPlan() *planner.TaskPlan {
	return planner.NewTaskPlan([]*planner.PlannedTask{
		task("task_1", "calendar", "create_event", "calendar_create_event"),
		task("task_2", "gmail", "send_email", "gmail_send_email", "task_1"),
	})
}

func newCoordinator(t *testing.T, a Agent, mode Mode, policy DependencyPolicy) *Coordinator {
	c, err := New(Config{Agent: a, Mode: mode, DependencyPolicy: policy, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return c
}

// run emits the plan first, as the chat service does
func run(c *Coordinator, plan *planner.TaskPlan, message string) (Outcome, *events.Recorder) {
	rec := &events.Recorder{}
	stream := events.NewStream(rec, zerolog.Nop())
	ctx := context.Background()
	_ = stream.Emit(ctx, events.Plan(plan.Snapshot()))
	out := c.Execute(ctx, plan, toolexecutor.New(), message, stream)
	return out, rec
}

func TestNew(t *testing.T) {
	t.Run("should require an agent", func(t *testing.T) {
		_, err := New(Config{})
		assert.EqualError(t, err, "agent is required")
	})

	t.Run("should default to combined mode and proceed policy", func(t *testing.T) {
		c, err := New(Config{Agent: &scriptedAgent{}})
		require.NoError(t, err)
		assert.Equal(t, ModeCombined, c.mode)
		assert.Equal(t, DependencyProceed, c.policy)
		assert.Equal(t, LeadingErrorClassifier{Window: DefaultFailureWindow}, c.classifier)
	})

	t.Run("should reject unknown modes and policies", func(t *testing.T) {
		_, err := New(Config{Agent: &scriptedAgent{}, Mode: "parallel"})
		assert.Error(t, err)
		_, err = New(Config{Agent: &scriptedAgent{}, DependencyPolicy: "skip"})
		assert.Error(t, err)
	})
}

func TestCombinedMode(t *testing.T) {
	t.Run("should match trace entries to planned tasks in order", func(t *testing.T) {
		a := &scriptedAgent{
			trace: []agent.TraceEntry{
				entry("calendar_create_event", "✅ Event created!\nMeet link: https://meet.google.com/x"),
				entry("gmail_send_email", "✅ Email sent successfully!"),
			},
			response: "Scheduled and emailed.",
		}
		plan := meetingPlan()
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), plan, "schedule and email")

		require.NoError(t, out.Err)
		assert.Equal(t, "Scheduled and emailed.", out.Message)
		assert.Equal(t, []string{
			events.TypePlan,
			events.TypeTaskStarted, events.TypeTaskCompleted,
			events.TypeTaskStarted, events.TypeTaskCompleted,
			events.TypeComplete,
		}, rec.Types())

		assert.Equal(t, 2, plan.Completed)
		assert.Equal(t, 0, plan.Failed)
		assert.Contains(t, plan.TaskResults["task_1"], "meet.google.com")

		last, _ := rec.Last()
		assert.Equal(t, 2, last.Data["total_tasks"])
		assert.Equal(t, 2, last.Data["completed_tasks"])
		assert.Equal(t, 0, last.Data["failed_tasks"])

		require.Len(t, out.Actions, 2)
		assert.Equal(t, events.ActionResult{
			Service: "calendar",
			Action:  "calendar_create_event",
			Success: true,
			Result:  "✅ Event created!\nMeet link: https://meet.google.com/x",
		}, out.Actions[0])
	})

	t.Run("should run the agent once with the enriched instruction", func(t *testing.T) {
		a := &scriptedAgent{response: "ok"}
		run(newCoordinator(t, a, ModeCombined, ""), meetingPlan(), "schedule and email")

		require.Len(t, a.calls, 1)
		prompt := a.calls[0].Prompt
		assert.True(t, strings.HasPrefix(prompt, "schedule and email"))
		assert.Contains(t, prompt, "1. [task_1] Do create_event — use tool `calendar_create_event` with parameters {}")
		assert.Contains(t, prompt, "2. [task_2] Do send_email — use tool `gmail_send_email` with parameters {} (after: task_1)")
		assert.Less(t, strings.Index(prompt, "[task_1]"), strings.Index(prompt, "[task_2]"))
		assert.Empty(t, a.calls[0].AllowedTools)
		assert.Equal(t, DefaultSystemPrompt, a.calls[0].SystemPrompt)
	})

	t.Run("should order the instruction by dependencies of a model plan", func(t *testing.T) {
		plan, err := planner.ParsePlanResponse(`[
			{"id": "task_1", "service": "gmail", "action": "send_email", "description": "Email bob", "depends_on": ["task_2"]},
			{"id": "task_2", "service": "calendar", "action": "create_event", "description": "Create meeting"}
		]`, []string{"calendar", "gmail"})
		require.NoError(t, err)

		a := &scriptedAgent{response: "ok"}
		run(newCoordinator(t, a, ModeCombined, ""), plan, "meet then email")

		require.Len(t, a.calls, 1)
		prompt := a.calls[0].Prompt
		assert.Contains(t, prompt, "1. [task_2] Create meeting — use tool `calendar_create_event`")
		assert.Contains(t, prompt, "2. [task_1] Email bob — use tool `gmail_send_email` with parameters {} (after: task_2)")
	})

	t.Run("should match every task of a model plan with a generated id", func(t *testing.T) {
		plan, err := planner.ParsePlanResponse(`[
			{"id": "task_2", "service": "slack", "action": "send_message"},
			{"service": "gmail", "action": "send_email"}
		]`, []string{"gmail", "slack"})
		require.NoError(t, err)

		a := &scriptedAgent{trace: []agent.TraceEntry{
			entry("gmail_send_email", "✅ Email sent successfully!"),
			entry("slack_send_message", "✅ Message sent to #general"),
		}}
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), plan, "post and email")
		require.NoError(t, out.Err)

		assert.Equal(t, 2, plan.Completed)
		for _, task := range plan.Tasks {
			assert.Equal(t, planner.StatusCompleted, task.Status, task.ID)
		}
		for _, ev := range rec.Events() {
			if id, ok := ev.Data["task_id"].(string); ok {
				assert.False(t, strings.HasPrefix(id, "extra_"), id)
			}
		}
	})

	t.Run("should mark failures detected by the classifier", func(t *testing.T) {
		a := &scriptedAgent{trace: []agent.TraceEntry{
			entry("calendar_create_event", "Error: bad request"),
			entry("gmail_send_email", "✅ Email sent successfully!"),
		}}
		plan := meetingPlan()
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), plan, "x")

		require.NoError(t, out.Err)
		assert.Equal(t, planner.StatusFailed, plan.Task("task_1").Status)
		assert.Equal(t, "Error: bad request", plan.Task("task_1").Error)
		assert.Equal(t, planner.StatusCompleted, plan.Task("task_2").Status)
		assert.Equal(t, 1, plan.Failed)
		assert.Contains(t, rec.Types(), events.TypeTaskFailed)
		assert.False(t, out.Actions[0].Success)
		assert.Equal(t, "Error: bad request", out.Actions[0].Error)
	})

	t.Run("should surface unmatched entries under synthesized ids", func(t *testing.T) {
		a := &scriptedAgent{trace: []agent.TraceEntry{
			entry("calendar_create_event", "✅ created"),
			entry("calendar_create_event", "✅ created again"),
			entry("slack_send_message", "✅ Message sent to #general"),
		}}
		plan := planner.NewTaskPlan([]*planner.PlannedTask{
			task("task_1", "calendar", "create_event", "calendar_create_event"),
		})
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), plan, "x")

		assert.Equal(t, 1, plan.Total)
		assert.Equal(t, 1, plan.Completed)

		var ids []string
		for _, ev := range rec.Events() {
			if ev.Type == events.TypeTaskStarted {
				ids = append(ids, ev.Data["task_id"].(string))
			}
		}
		assert.Equal(t, []string{"task_1", "extra_1", "extra_2"}, ids)

		require.Len(t, out.Actions, 3)
		assert.Equal(t, "slack", out.Actions[2].Service)
	})

	t.Run("should emit one error event when the agent fails", func(t *testing.T) {
		a := &scriptedAgent{
			trace: []agent.TraceEntry{entry("calendar_create_event", "✅ created")},
			err:   errors.New("quota exceeded"),
		}
		plan := meetingPlan()
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), plan, "x")

		require.Error(t, out.Err)
		assert.Equal(t, "I encountered an error while processing your request: quota exceeded", out.Message)
		assert.Equal(t, []string{
			events.TypePlan, events.TypeTaskStarted, events.TypeTaskCompleted, events.TypeError,
		}, rec.Types())

		require.Len(t, out.Actions, 2)
		assert.Equal(t, AgentFailure(errors.New("quota exceeded")), out.Actions[1])
	})

	t.Run("should fall back to single-shot for an empty plan", func(t *testing.T) {
		a := &scriptedAgent{
			trace:    []agent.TraceEntry{entry("jira_get_my_issues", "You have no open issues")},
			response: "Nothing assigned.",
		}
		out, rec := run(newCoordinator(t, a, ModeCombined, ""), planner.NewTaskPlan(nil), "what's on my plate?")

		require.NoError(t, out.Err)
		require.Len(t, a.calls, 1)
		assert.Equal(t, "what's on my plate?", a.calls[0].Prompt)
		assert.Equal(t, "Nothing assigned.", out.Message)
		assert.Equal(t, []string{
			events.TypePlan, events.TypeTaskStarted, events.TypeTaskCompleted, events.TypeComplete,
		}, rec.Types())

		last, _ := rec.Last()
		assert.Equal(t, 0, last.Data["total_tasks"])
		require.Len(t, out.Actions, 1)
		assert.Equal(t, "jira", out.Actions[0].Service)
	})

	t.Run("should order dependent task events after their dependency", func(t *testing.T) {
		a := &scriptedAgent{trace: []agent.TraceEntry{
			entry("calendar_create_event", "✅ created"),
			entry("gmail_send_email", "✅ sent"),
		}}
		_, rec := run(newCoordinator(t, a, ModeCombined, ""), meetingPlan(), "x")

		finishedFirst, startedSecond := -1, -1
		for i, ev := range rec.Events() {
			id, _ := ev.Data["task_id"].(string)
			if id == "task_1" && ev.Type == events.TypeTaskCompleted {
				finishedFirst = i
			}
			if id == "task_2" && ev.Type == events.TypeTaskStarted {
				startedSecond = i
			}
		}
		assert.Less(t, finishedFirst, startedSecond)
	})
}

func TestStrictMode(t *testing.T) {
	t.Run("should run one agent call per task with only its tool", func(t *testing.T) {
		a := &scriptedAgent{
			byTool: map[string][]agent.TraceEntry{
				"calendar_create_event": {entry("calendar_create_event", "✅ Meet link: https://meet.google.com/abc")},
				"gmail_send_email":      {entry("gmail_send_email", "✅ Email sent successfully!")},
			},
			response: "Done.",
		}
		plan := meetingPlan()
		out, _ := run(newCoordinator(t, a, ModeStrict, ""), plan, "schedule and email")

		require.NoError(t, out.Err)
		require.Len(t, a.calls, 2)
		assert.Equal(t, []string{"calendar_create_event"}, a.calls[0].AllowedTools)
		assert.Equal(t, []string{"gmail_send_email"}, a.calls[1].AllowedTools)
		assert.Equal(t, 2, plan.Completed)
		assert.Equal(t, "Done.\n\nDone.", out.Message)
	})

	t.Run("should chain dependency results into the dependent prompt", func(t *testing.T) {
		a := &scriptedAgent{byTool: map[string][]agent.TraceEntry{
			"calendar_create_event": {entry("calendar_create_event", "✅ Meet link: https://meet.google.com/abc")},
			"gmail_send_email":      {entry("gmail_send_email", "✅ sent")},
		}}
		run(newCoordinator(t, a, ModeStrict, ""), meetingPlan(), "schedule and email")

		require.Len(t, a.calls, 2)
		assert.NotContains(t, a.calls[0].Prompt, "Results of earlier tasks")
		assert.Contains(t, a.calls[1].Prompt, "- [task_1] Do create_event: ✅ Meet link: https://meet.google.com/abc")
	})

	t.Run("should fail a task whose tool was never invoked", func(t *testing.T) {
		a := &scriptedAgent{byTool: map[string][]agent.TraceEntry{}}
		plan := planner.NewTaskPlan([]*planner.PlannedTask{
			task("task_1", "slack", "send_message", "slack_send_message"),
		})
		out, rec := run(newCoordinator(t, a, ModeStrict, ""), plan, "x")

		require.NoError(t, out.Err)
		assert.Equal(t, "agent did not invoke slack_send_message", plan.Task("task_1").Error)
		assert.Equal(t, []string{
			events.TypePlan, events.TypeTaskStarted, events.TypeTaskFailed, events.TypeComplete,
		}, rec.Types())
	})

	t.Run("should block tasks whose dependency failed", func(t *testing.T) {
		a := &scriptedAgent{byTool: map[string][]agent.TraceEntry{
			"calendar_create_event": {entry("calendar_create_event", "Error: calendar unavailable")},
			"gmail_send_email":      {entry("gmail_send_email", "✅ sent")},
		}}
		plan := meetingPlan()
		_, rec := run(newCoordinator(t, a, ModeStrict, DependencyBlock), plan, "x")

		require.Len(t, a.calls, 1)
		assert.Equal(t, planner.StatusFailed, plan.Task("task_2").Status)
		assert.Equal(t, "blocked by failed dependency task_1", plan.Task("task_2").Error)
		assert.Equal(t, 2, plan.Failed)

		for _, ev := range rec.Events() {
			if ev.Type == events.TypeTaskStarted {
				assert.NotEqual(t, "task_2", ev.Data["task_id"])
			}
		}
	})

	t.Run("should run tasks with failed dependencies under proceed", func(t *testing.T) {
		a := &scriptedAgent{byTool: map[string][]agent.TraceEntry{
			"calendar_create_event": {entry("calendar_create_event", "Error: calendar unavailable")},
			"gmail_send_email":      {entry("gmail_send_email", "✅ sent")},
		}}
		plan := meetingPlan()
		run(newCoordinator(t, a, ModeStrict, DependencyProceed), plan, "x")

		require.Len(t, a.calls, 2)
		assert.Contains(t, a.calls[1].Prompt, "- [task_1] Do create_event: failed: Error: calendar unavailable")
		assert.Equal(t, planner.StatusCompleted, plan.Task("task_2").Status)
	})

	t.Run("should stop on agent errors", func(t *testing.T) {
		a := &scriptedAgent{err: errors.New("all auth profiles failed")}
		plan := meetingPlan()
		out, rec := run(newCoordinator(t, a, ModeStrict, ""), plan, "x")

		require.Error(t, out.Err)
		assert.Len(t, a.calls, 1)
		last, _ := rec.Last()
		assert.Equal(t, events.TypeError, last.Type)
	})
}

func TestLeadingErrorClassifier(t *testing.T) {
	c := LeadingErrorClassifier{Window: DefaultFailureWindow}

	tests := []struct {
		name   string
		entry  agent.TraceEntry
		failed bool
	}{
		{"error prefix", agent.TraceEntry{Output: "Error: bad request"}, true},
		{"emoji error", agent.TraceEntry{Output: "❌ Error creating issue"}, true},
		{"plain success", agent.TraceEntry{Output: "✅ Message sent to #general"}, false},
		{
			"error past the window",
			agent.TraceEntry{Output: "Operation completed successfully for all recipients; no error."},
			false,
		},
		{"error inside short success text", agent.TraceEntry{Output: "Operation completed without error."}, true},
		{"explicit err", agent.TraceEntry{Output: "fine", Err: errors.New("boom")}, true},
		{"empty output", agent.TraceEntry{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failed, c.Failed(tt.entry))
		})
	}

	t.Run("should default a zero window", func(t *testing.T) {
		assert.True(t, LeadingErrorClassifier{}.Failed(agent.TraceEntry{Output: "error"}))
	})

	t.Run("should allow a custom classifier", func(t *testing.T) {
		never := ClassifierFunc(func(agent.TraceEntry) bool { return false })
		a := &scriptedAgent{trace: []agent.TraceEntry{entry("slack_send_message", "Error: nope")}}
		co, err := New(Config{Agent: a, Classifier: never, Logger: zerolog.Nop()})
		require.NoError(t, err)

		plan := planner.NewTaskPlan([]*planner.PlannedTask{task("task_1", "slack", "send_message", "slack_send_message")})
		run(co, plan, "x")
		assert.Equal(t, planner.StatusCompleted, plan.Task("task_1").Status)
	})
}
