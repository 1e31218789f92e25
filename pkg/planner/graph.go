package planner

import "fmt"

// ValidatePlan checks ids are unique, dependencies exist and the graph is acyclic
func ValidatePlan(plan *TaskPlan) error {
	ids := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task id cannot be empty")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate task ID: %s", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range plan.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %s depends on non-existent task: %s", t.ID, dep)
			}
		}
	}

	if id, ok := findCycle(plan.Tasks); ok {
		return fmt.Errorf("circular dependency detected involving task: %s", id)
	}

	return nil
}

// findCycle runs a DFS over declared order and reports a task on a cycle
func findCycle(tasks []*PlannedTask) (string, bool) {
	graph := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		graph[t.ID] = t.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, dep := range graph[id] {
			if _, known := graph[dep]; !known {
				continue
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, t := range tasks {
		if !visited[t.ID] && hasCycle(t.ID) {
			return t.ID, true
		}
	}
	return "", false
}

// sanitizeDependencies drops unknown and self dependencies. If a cycle
// remains, every dependency on a task not declared earlier is dropped, which
// leaves an acyclic graph pointing only backwards.
func sanitizeDependencies(tasks []*PlannedTask) {
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}

	for _, t := range tasks {
		deps := make([]string, 0, len(t.DependsOn))
		seen := make(map[string]bool, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if dep == t.ID || !ids[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
		}
		t.DependsOn = deps
	}

	if _, ok := findCycle(tasks); !ok {
		return
	}

	earlier := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		deps := t.DependsOn[:0]
		for _, dep := range t.DependsOn {
			if earlier[dep] {
				deps = append(deps, dep)
			}
		}
		t.DependsOn = deps
		earlier[t.ID] = true
	}
}

// orderByLevels returns plan with its tasks flattened level by level, so
// every dependency is listed before its dependents
func orderByLevels(plan *TaskPlan) (*TaskPlan, error) {
	levels, err := ExecutionLevels(plan)
	if err != nil {
		return nil, err
	}

	ordered := make([]*PlannedTask, 0, len(plan.Tasks))
	for _, level := range levels {
		ordered = append(ordered, level...)
	}
	return NewTaskPlan(ordered), nil
}

// ExecutionLevels groups tasks into topological levels. Tasks within a level
// keep their declared order.
func ExecutionLevels(plan *TaskPlan) ([][]*PlannedTask, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(plan.Tasks))
	var levelOf func(t *PlannedTask) int
	levelOf = func(t *PlannedTask) int {
		if d, ok := depth[t.ID]; ok {
			return d
		}
		d := 0
		for _, dep := range t.DependsOn {
			if l := levelOf(plan.Task(dep)) + 1; l > d {
				d = l
			}
		}
		depth[t.ID] = d
		return d
	}

	var levels [][]*PlannedTask
	for _, t := range plan.Tasks {
		l := levelOf(t)
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], t)
	}

	return levels, nil
}
