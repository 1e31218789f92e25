package planner

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	channelPattern = regexp.MustCompile(`#([\w-]+)`)
	emailPattern   = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	projectPattern = regexp.MustCompile(`project\s+(\w+)`)
)

// KeywordPlanner extracts tasks by keyword matching. It is deterministic and
// lower-fidelity than the model path: it recognizes at most one task per
// service and only the slack, calendar, gmail, jira and notion services.
type KeywordPlanner struct{}

// Plan builds a plan from message for the services in available
func (KeywordPlanner) Plan(message string, available []string) *TaskPlan {
	lower := strings.ToLower(message)
	has := make(map[string]bool, len(available))
	for _, s := range available {
		has[s] = true
	}

	var tasks []*PlannedTask
	next := func() string { return fmt.Sprintf("task_%d", len(tasks)+1) }

	if has["slack"] && containsAny(lower, "slack", "post", "channel") {
		channel := "general"
		if m := channelPattern.FindStringSubmatch(message); m != nil {
			channel = m[1]
		}
		tasks = append(tasks, newTask(next(), "slack", "send_message",
			"Send message to #"+channel, map[string]interface{}{"channel": channel}, nil))
	}

	if has["calendar"] && containsAny(lower, "meeting", "calendar", "schedule", "event") {
		tasks = append(tasks, newTask(next(), "calendar", "create_event",
			"Create calendar event", nil, nil))
	}

	if has["gmail"] && containsAny(lower, "email", "mail") {
		to := emailPattern.FindString(message)
		var deps []string
		for _, t := range tasks {
			if t.Service == "calendar" {
				deps = append(deps, t.ID)
			}
		}
		tasks = append(tasks, newTask(next(), "gmail", "send_email",
			"Send email to "+to, map[string]interface{}{"to": to}, deps))
	}

	if has["jira"] && containsAny(lower, "jira", "ticket", "issue", "bug") {
		key := "PROJ"
		if m := projectPattern.FindStringSubmatch(lower); m != nil {
			key = strings.ToUpper(m[1])
		}
		tasks = append(tasks, newTask(next(), "jira", "create_issue",
			"Create Jira issue in "+key, map[string]interface{}{"project_key": key}, nil))
	}

	if has["notion"] && containsAny(lower, "notion", "summarize", "summary", "document") {
		deps := make([]string, 0, len(tasks))
		for _, t := range tasks {
			deps = append(deps, t.ID)
		}
		tasks = append(tasks, newTask(next(), "notion", "append_content",
			"Summarize actions in Notion", nil, deps))
	}

	return NewTaskPlan(tasks)
}

func newTask(id, service, action, description string, params map[string]interface{}, deps []string) *PlannedTask {
	tool, _ := ResolveTool(service, action)
	if params == nil {
		params = map[string]interface{}{}
	}
	if deps == nil {
		deps = []string{}
	}
	return &PlannedTask{
		ID:          id,
		Service:     service,
		Action:      action,
		Description: description,
		ToolName:    tool,
		Parameters:  params,
		Status:      StatusPending,
		DependsOn:   deps,
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
