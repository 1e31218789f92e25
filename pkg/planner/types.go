package planner

import "fmt"

// TaskStatus represents the execution status of a planned task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PlannedTask is one unit of work extracted from a user request
type PlannedTask struct {
	ID          string                 `json:"task_id"`
	Service     string                 `json:"service"`
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	ToolName    string                 `json:"tool_name"`
	Parameters  map[string]interface{} `json:"parameters"`
	Status      TaskStatus             `json:"status"`
	Result      string                 `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	DependsOn   []string               `json:"depends_on"`
}

// ToDict returns the public dictionary form. Empty result and error are nil.
func (t *PlannedTask) ToDict() map[string]interface{} {
	params := t.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	deps := t.DependsOn
	if deps == nil {
		deps = []string{}
	}

	return map[string]interface{}{
		"task_id":     t.ID,
		"service":     t.Service,
		"action":      t.Action,
		"description": t.Description,
		"tool_name":   t.ToolName,
		"parameters":  params,
		"status":      string(t.Status),
		"result":      nilIfEmpty(t.Result),
		"error":       nilIfEmpty(t.Error),
		"depends_on":  deps,
	}
}

// TaskFromDict parses the dictionary form produced by ToDict. Both "task_id"
// and "id" are accepted for the identifier.
func TaskFromDict(d map[string]interface{}) *PlannedTask {
	t := &PlannedTask{
		ID:          stringField(d, "task_id"),
		Service:     stringField(d, "service"),
		Action:      stringField(d, "action"),
		Description: stringField(d, "description"),
		ToolName:    stringField(d, "tool_name"),
		Parameters:  map[string]interface{}{},
		Status:      TaskStatus(stringField(d, "status")),
		Result:      stringField(d, "result"),
		Error:       stringField(d, "error"),
		DependsOn:   stringList(d["depends_on"]),
	}
	if t.ID == "" {
		t.ID = stringField(d, "id")
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if params, ok := d["parameters"].(map[string]interface{}); ok {
		t.Parameters = params
	}
	return t
}

func (t *PlannedTask) clone() *PlannedTask {
	c := *t
	c.Parameters, _ = copyValue(t.Parameters).(map[string]interface{})
	if c.Parameters == nil {
		c.Parameters = map[string]interface{}{}
	}
	c.DependsOn = append([]string{}, t.DependsOn...)
	return &c
}

// TaskPlan is the ordered execution plan for one request. It is owned by a
// single goroutine for the duration of the request.
type TaskPlan struct {
	Tasks         []*PlannedTask    `json:"tasks"`
	Total         int               `json:"total"`
	Completed     int               `json:"completed"`
	Failed        int               `json:"failed"`
	CurrentTaskID string            `json:"current_task_id,omitempty"`
	TaskResults   map[string]string `json:"-"`
}

// NewTaskPlan creates a plan over tasks with Total set
func NewTaskPlan(tasks []*PlannedTask) *TaskPlan {
	if tasks == nil {
		tasks = []*PlannedTask{}
	}
	return &TaskPlan{
		Tasks:       tasks,
		Total:       len(tasks),
		TaskResults: make(map[string]string),
	}
}

// Task returns the task with id, or nil
func (p *TaskPlan) Task(id string) *PlannedTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// PendingTasks returns the tasks still pending, in declared order
func (p *TaskPlan) PendingTasks() []*PlannedTask {
	var pending []*PlannedTask
	for _, t := range p.Tasks {
		if t.Status == StatusPending {
			pending = append(pending, t)
		}
	}
	return pending
}

// NextTask returns the first pending task, in declared order, whose every
// dependency has completed. It returns nil when no task is eligible.
func (p *TaskPlan) NextTask() *PlannedTask {
	for _, t := range p.Tasks {
		if t.Status != StatusPending {
			continue
		}
		if p.depsCompleted(t) {
			return t
		}
	}
	return nil
}

func (p *TaskPlan) depsCompleted(t *PlannedTask) bool {
	for _, dep := range t.DependsOn {
		d := p.Task(dep)
		if d == nil || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// FailedDependency returns the id of the first dependency of t that failed
func (p *TaskPlan) FailedDependency(t *PlannedTask) (string, bool) {
	for _, dep := range t.DependsOn {
		if d := p.Task(dep); d != nil && d.Status == StatusFailed {
			return dep, true
		}
	}
	return "", false
}

// BlockedTasks returns pending tasks with at least one failed dependency
func (p *TaskPlan) BlockedTasks() []*PlannedTask {
	var blocked []*PlannedTask
	for _, t := range p.PendingTasks() {
		if _, ok := p.FailedDependency(t); ok {
			blocked = append(blocked, t)
		}
	}
	return blocked
}

// UpdateTaskStatus moves a task to status. Completed and failed transitions
// bump their counters; in_progress sets CurrentTaskID. A non-empty result is
// kept in TaskResults for chaining. It returns false for unknown ids and for
// tasks already in a terminal state.
func (p *TaskPlan) UpdateTaskStatus(id string, status TaskStatus, result, errMsg string) bool {
	t := p.Task(id)
	if t == nil || t.Status.IsTerminal() {
		return false
	}

	t.Status = status
	if result != "" {
		t.Result = result
		if p.TaskResults == nil {
			p.TaskResults = make(map[string]string)
		}
		p.TaskResults[id] = result
	}
	if errMsg != "" {
		t.Error = errMsg
	}

	switch status {
	case StatusCompleted:
		p.Completed++
	case StatusFailed:
		p.Failed++
	case StatusInProgress:
		p.CurrentTaskID = id
	}

	return true
}

// ToDict returns the public dictionary form used by the plan event
func (p *TaskPlan) ToDict() map[string]interface{} {
	tasks := make([]interface{}, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, t.ToDict())
	}

	return map[string]interface{}{
		"tasks":           tasks,
		"total":           p.Total,
		"completed":       p.Completed,
		"failed":          p.Failed,
		"current_task_id": nilIfEmpty(p.CurrentTaskID),
	}
}

// Snapshot returns a deep copy of the plan
func (p *TaskPlan) Snapshot() *TaskPlan {
	tasks := make([]*PlannedTask, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, t.clone())
	}
	results := make(map[string]string, len(p.TaskResults))
	for k, v := range p.TaskResults {
		results[k] = v
	}

	return &TaskPlan{
		Tasks:         tasks,
		Total:         p.Total,
		Completed:     p.Completed,
		Failed:        p.Failed,
		CurrentTaskID: p.CurrentTaskID,
		TaskResults:   results,
	}
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func stringField(d map[string]interface{}, key string) string {
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringList(v interface{}) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []interface{}:
		for _, item := range list {
			if s := stringField(map[string]interface{}{"v": item}, "v"); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if list != "" {
			out = append(out, list)
		}
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if val == nil {
			return map[string]interface{}(nil)
		}
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[k] = copyValue(item)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, item := range val {
			s[i] = copyValue(item)
		}
		return s
	default:
		return v
	}
}
