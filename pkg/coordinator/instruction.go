package coordinator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/conflux/pkg/planner"
)

// DefaultSystemPrompt frames every agent run
const DefaultSystemPrompt = `You are Conflux, an intelligent enterprise integration assistant.
Your role is to help users interact with their connected workplace tools through natural language.
Act through the available tools and report only what they returned.`

// BuildInstruction renders the combined-turn prompt: the user's message
// followed by one line per task in declared order.
func BuildInstruction(message string, plan *planner.TaskPlan) string {
	var b strings.Builder

	b.WriteString(message)
	b.WriteString("\n\nThis request has been broken into the tasks below. ")
	b.WriteString("Execute them in this order, calling each task's tool once. ")
	b.WriteString("Use the outputs of earlier tasks in later ones where relevant.\n\n")

	for i, task := range plan.Tasks {
		b.WriteString(TaskLine(i+1, task))
		b.WriteString("\n")
	}

	b.WriteString("\nWhen every task is done, reply with a short summary of what happened.")
	return b.String()
}

// TaskLine renders one numbered task of the instruction
func TaskLine(n int, task *planner.PlannedTask) string {
	line := fmt.Sprintf("%d. [%s] %s — use tool `%s` with parameters %s",
		n, task.ID, task.Description, task.ToolName, paramsJSON(task.Parameters))
	if len(task.DependsOn) > 0 {
		line += fmt.Sprintf(" (after: %s)", strings.Join(task.DependsOn, ", "))
	}
	return line
}

// buildTaskPrompt renders the prompt of one task run in strict mode,
// carrying the outcomes of its dependencies
func buildTaskPrompt(message string, plan *planner.TaskPlan, task *planner.PlannedTask) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Complete this task: %s\n", task.Description)
	fmt.Fprintf(&b, "Use the tool `%s` with parameters %s.\n", task.ToolName, paramsJSON(task.Parameters))
	fmt.Fprintf(&b, "\nOriginal request: %s\n", message)

	if len(task.DependsOn) > 0 {
		b.WriteString("\nResults of earlier tasks:\n")
		for _, id := range task.DependsOn {
			dep := plan.Task(id)
			if dep == nil {
				continue
			}
			switch {
			case dep.Status == planner.StatusCompleted:
				fmt.Fprintf(&b, "- [%s] %s: %s\n", id, dep.Description, plan.TaskResults[id])
			case dep.Status == planner.StatusFailed:
				fmt.Fprintf(&b, "- [%s] %s: failed: %s\n", id, dep.Description, dep.Error)
			default:
				fmt.Fprintf(&b, "- [%s] %s: not run\n", id, dep.Description)
			}
		}
	}

	b.WriteString("\nReply with one sentence describing the outcome.")
	return b.String()
}

func paramsJSON(params map[string]interface{}) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(data)
}
