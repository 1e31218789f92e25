// Package coordinator executes a task plan through the tool-calling agent
// and reports per-task progress.
//
// Invariants:
// - Task states only move pending -> in_progress -> completed|failed.
// - Each trace entry matches the first pending task with the same tool;
//   unmatched entries surface as extra_<n> tasks and leave counters alone.
// - Execute emits exactly one terminal event.
//
// Usage:
//
//	c, _ := coordinator.New(coordinator.Config{Agent: runner})
//	out := c.Execute(ctx, plan, tools, message, stream)
//	_ = out.Message
package coordinator
