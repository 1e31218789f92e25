package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a planning response carries no JSON task list
var ErrNoJSON = errors.New("no JSON task list in response")

const planningSystemPrompt = "You are a task planning assistant. You answer with JSON only."

const planningRules = `For EACH task in the message, extract:
1. service: which service to use
2. action: what action to perform
3. description: human-readable description of the task
4. parameters: any parameters mentioned (channel name, email address, time, etc.)
5. depends_on: list of task IDs this task depends on (e.g., email about meeting depends on calendar task)

IMPORTANT RULES:
- Extract ALL tasks, not just the first one
- If an email needs to mention a meeting link, that email task depends on the calendar task
- If a Notion page should summarize actions, it depends on all other tasks
- Order tasks so dependencies come first

Return ONLY valid JSON array. Example format:
[
  {
    "id": "task_1",
    "service": "calendar",
    "action": "create_meeting",
    "description": "Create a meeting tomorrow at 11pm for 1 hour",
    "parameters": {"title": "Meeting", "start_datetime": "tomorrow 11pm", "duration": "1 hour"},
    "depends_on": []
  },
  {
    "id": "task_2",
    "service": "gmail",
    "action": "send_email",
    "description": "Send email about the meeting",
    "parameters": {"to": "user@example.com", "subject": "Meeting Details"},
    "depends_on": ["task_1"]
  }
]

Return ONLY the JSON array, no other text.`

// BuildPlanningPrompt renders the planning prompt for message. Only the
// available services with a known action set are listed; when none are
// known the full catalogue is listed.
func BuildPlanningPrompt(message string, available []string) string {
	services := knownServices(available)
	if len(services) == 0 {
		services = PlannableServices()
	}

	var b strings.Builder
	b.WriteString("You are a task planning assistant. Analyze the user's message and extract ALL individual tasks they want to perform.\n\n")
	b.WriteString("User message: ")
	b.WriteString(message)
	b.WriteString("\n\nAvailable services and their actions:\n")
	for _, s := range services {
		fmt.Fprintf(&b, "- %s: %s\n", s, strings.Join(ServiceActions(s), ", "))
	}
	b.WriteString("\n")
	b.WriteString(planningRules)
	return b.String()
}

func knownServices(available []string) []string {
	var out []string
	for _, s := range PlannableServices() {
		for _, a := range available {
			if a == s {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// ParsePlanResponse converts a model response into a plan. Tasks for
// services outside available are dropped, the dependency graph is sanitized
// and tasks are reordered so dependencies come first. A valid empty array
// yields an empty plan with no error.
func ParsePlanResponse(content string, available []string) (*TaskPlan, error) {
	raw, err := extractTaskList(content)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(available))
	for _, s := range available {
		allowed[s] = true
	}

	tasks := make([]*PlannedTask, 0, len(raw))
	ids := make(map[string]bool, len(raw))
	for _, entry := range raw {
		service := strings.ToLower(strings.TrimSpace(stringField(entry, "service")))
		action := strings.ToLower(strings.TrimSpace(stringField(entry, "action")))
		if !allowed[service] {
			continue
		}

		id := stringField(entry, "id")
		if id == "" {
			id = stringField(entry, "task_id")
		}
		if id == "" || ids[id] {
			id = nextTaskID(ids, len(tasks)+1)
		}
		ids[id] = true

		tool, _ := ResolveTool(service, action)
		params, _ := entry["parameters"].(map[string]interface{})
		if params == nil {
			params = map[string]interface{}{}
		}

		tasks = append(tasks, &PlannedTask{
			ID:          id,
			Service:     service,
			Action:      action,
			Description: stringField(entry, "description"),
			ToolName:    tool,
			Parameters:  params,
			Status:      StatusPending,
			DependsOn:   stringList(entry["depends_on"]),
		})
	}

	sanitizeDependencies(tasks)

	plan, err := orderByLevels(NewTaskPlan(tasks))
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

// nextTaskID returns the first task_<n> from n on that is not taken
func nextTaskID(taken map[string]bool, n int) string {
	for {
		id := fmt.Sprintf("task_%d", n)
		if !taken[id] {
			return id
		}
		n++
	}
}

// extractTaskList finds the JSON task list in content. Code fences are
// stripped and a {"tasks": [...]} wrapper is accepted.
func extractTaskList(content string) ([]map[string]interface{}, error) {
	text := stripCodeFence(strings.TrimSpace(content))
	if text == "" {
		return nil, ErrNoJSON
	}

	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Tasks []map[string]interface{} `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Tasks != nil {
			return wrapped.Tasks, nil
		}
	}

	array, ok := firstJSONArray(text)
	if !ok {
		return nil, ErrNoJSON
	}

	var tasks []map[string]interface{}
	if err := json.Unmarshal([]byte(array), &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task list: %w", err)
	}
	if tasks == nil {
		tasks = []map[string]interface{}{}
	}
	return tasks, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// firstJSONArray returns the first balanced [...] span, skipping brackets
// inside string literals.
func firstJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
