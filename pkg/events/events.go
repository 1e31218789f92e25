package events

import (
	"github.com/harun/conflux/pkg/planner"
)

// Event types emitted during one chat turn
const (
	TypePlanning      = "planning"
	TypePlan          = "plan"
	TypeTaskStarted   = "task_started"
	TypeTaskCompleted = "task_completed"
	TypeTaskFailed    = "task_failed"
	TypeComplete      = "complete"
	TypeError         = "error"
)

// Event is one progress event. Seq and Timestamp are set by the Stream and
// stay out of the NDJSON form.
type Event struct {
	Type      string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
	Seq       int64                  `json:"-"`
	Timestamp int64                  `json:"-"`
}

// IsTerminal reports whether the event ends a stream
func (e Event) IsTerminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// IsTask reports whether the event reports on a single task
func (e Event) IsTask() bool {
	switch e.Type {
	case TypeTaskStarted, TypeTaskCompleted, TypeTaskFailed:
		return true
	}
	return false
}

// ActionResult is one tool invocation as reported to the client
type ActionResult struct {
	Service string `json:"service"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Planning announces that planning started
func Planning(status string) Event {
	return Event{Type: TypePlanning, Data: map[string]interface{}{"status": status}}
}

// Plan carries the public form of plan
func Plan(plan *planner.TaskPlan) Event {
	return Event{Type: TypePlan, Data: plan.ToDict()}
}

// TaskStarted reports that a task began
func TaskStarted(taskID, service, action, description string) Event {
	return Event{Type: TypeTaskStarted, Data: map[string]interface{}{
		"task_id":     taskID,
		"service":     service,
		"action":      action,
		"description": description,
	}}
}

// TaskCompleted reports a successful task with its tool output
func TaskCompleted(taskID, service, action, result string) Event {
	return Event{Type: TypeTaskCompleted, Data: map[string]interface{}{
		"task_id": taskID,
		"service": service,
		"action":  action,
		"result":  result,
	}}
}

// TaskFailed reports a failed task
func TaskFailed(taskID, service, action, errMsg string) Event {
	return Event{Type: TypeTaskFailed, Data: map[string]interface{}{
		"task_id": taskID,
		"service": service,
		"action":  action,
		"error":   errMsg,
	}}
}

// Complete is the terminal event of a successful turn
func Complete(message string, actions []ActionResult, total, completed, failed int) Event {
	if actions == nil {
		actions = []ActionResult{}
	}
	return Event{Type: TypeComplete, Data: map[string]interface{}{
		"message":         message,
		"actions_taken":   actions,
		"total_tasks":     total,
		"completed_tasks": completed,
		"failed_tasks":    failed,
	}}
}

// Error is the terminal event of a failed turn
func Error(message string) Event {
	return Event{Type: TypeError, Data: map[string]interface{}{"message": message}}
}
