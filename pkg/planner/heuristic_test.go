package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planShape struct {
	Service   string
	Action    string
	Tool      string
	DependsOn []string
}

func shapeOf(plan *TaskPlan) []planShape {
	out := make([]planShape, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		out = append(out, planShape{Service: t.Service, Action: t.Action, Tool: t.ToolName, DependsOn: t.DependsOn})
	}
	return out
}

func TestKeywordPlanner(t *testing.T) {
	var kp KeywordPlanner

	t.Run("should extract slack channel with dashes", func(t *testing.T) {
		plan := kp.Plan("Post 'Build complete' to #dev-updates on Slack", []string{"slack"})

		require.Len(t, plan.Tasks, 1)
		task := plan.Tasks[0]
		assert.Equal(t, "task_1", task.ID)
		assert.Equal(t, "slack", task.Service)
		assert.Equal(t, "send_message", task.Action)
		assert.Equal(t, "slack_send_message", task.ToolName)
		assert.Equal(t, "dev-updates", task.Parameters["channel"])
		assert.Equal(t, "Send message to #dev-updates", task.Description)
		assert.Equal(t, 1, plan.Total)
	})

	t.Run("should default slack channel to general", func(t *testing.T) {
		plan := kp.Plan("post the release notes on slack", []string{"slack"})
		require.Len(t, plan.Tasks, 1)
		assert.Equal(t, "general", plan.Tasks[0].Parameters["channel"])
	})

	t.Run("should make email depend on calendar", func(t *testing.T) {
		plan := kp.Plan("Schedule a meeting tomorrow at 2pm and email bob@example.com about it", []string{"calendar", "gmail"})

		require.Len(t, plan.Tasks, 2)
		calendar, gmail := plan.Tasks[0], plan.Tasks[1]
		assert.Equal(t, "calendar", calendar.Service)
		assert.Equal(t, "calendar_create_event", calendar.ToolName)
		assert.Equal(t, "gmail", gmail.Service)
		assert.Equal(t, "bob@example.com", gmail.Parameters["to"])
		assert.Equal(t, "Send email to bob@example.com", gmail.Description)
		assert.Contains(t, gmail.DependsOn, calendar.ID)
	})

	t.Run("should make notion summary depend on all prior tasks", func(t *testing.T) {
		plan := kp.Plan("Post to #general on Slack, open a jira ticket in project web, then summarize everything in Notion",
			[]string{"slack", "jira", "notion"})

		require.Len(t, plan.Tasks, 3)
		assert.Equal(t, "WEB", plan.Tasks[1].Parameters["project_key"])
		assert.Equal(t, "Create Jira issue in WEB", plan.Tasks[1].Description)
		notion := plan.Tasks[2]
		assert.Equal(t, "notion", notion.Service)
		assert.Equal(t, "notion_append_content", notion.ToolName)
		assert.Equal(t, []string{"task_1", "task_2"}, notion.DependsOn)
	})

	t.Run("should skip services that are not connected", func(t *testing.T) {
		plan := kp.Plan("Schedule a meeting and email bob@example.com, post on slack", []string{"gmail"})

		for _, task := range plan.Tasks {
			assert.Equal(t, "gmail", task.Service)
		}
		require.Len(t, plan.Tasks, 1)
		assert.Empty(t, plan.Tasks[0].DependsOn)
	})

	t.Run("should default jira project key", func(t *testing.T) {
		plan := kp.Plan("file a bug about the login page", []string{"jira"})
		require.Len(t, plan.Tasks, 1)
		assert.Equal(t, "PROJ", plan.Tasks[0].Parameters["project_key"])
	})

	t.Run("should yield an empty plan when nothing matches", func(t *testing.T) {
		plan := kp.Plan("what's the weather like?", []string{"slack", "gmail"})
		assert.Empty(t, plan.Tasks)
		assert.Equal(t, 0, plan.Total)
	})

	t.Run("should be deterministic", func(t *testing.T) {
		msg := "Schedule a meeting, email bob@example.com, post to #ops and summarize in notion"
		services := []string{"slack", "calendar", "gmail", "notion"}

		first := kp.Plan(msg, services)
		for i := 0; i < 5; i++ {
			again := kp.Plan(msg, services)
			if diff := cmp.Diff(shapeOf(first), shapeOf(again)); diff != "" {
				t.Fatalf("plan shape changed (-first +again):\n%s", diff)
			}
			if diff := cmp.Diff(first.ToDict(), again.ToDict()); diff != "" {
				t.Fatalf("plan dict changed (-first +again):\n%s", diff)
			}
		}
	})

	t.Run("should produce valid graphs", func(t *testing.T) {
		plan := kp.Plan("Schedule a meeting, email bob@example.com, post to #ops and summarize in notion",
			[]string{"slack", "calendar", "gmail", "notion"})
		assert.NoError(t, ValidatePlan(plan))
	})
}

func TestResolveTool(t *testing.T) {
	tests := []struct {
		service, action string
		tool            string
		known           bool
	}{
		{"jira", "create_bug", "jira_create_issue", true},
		{"calendar", "create_meeting", "calendar_create_event", true},
		{"gmail", "read_emails", "gmail_read_latest_emails", true},
		{"github", "add_comment", "github_add_issue_comment", true},
		{"linear", "list_states", "linear_list_states", true},
		{"slack", "archive_channel", "slack_archive_channel", false},
		{"trello", "create_card", "trello_create_card", false},
	}

	for _, tt := range tests {
		t.Run(tt.service+"/"+tt.action, func(t *testing.T) {
			tool, known := ResolveTool(tt.service, tt.action)
			assert.Equal(t, tt.tool, tool)
			assert.Equal(t, tt.known, known)
		})
	}
}
