// Package toolexecutor holds the tools built for one request and executes them.
//
// Invariants:
// - Tool names are unique within an executor.
// - Parameters are schema-validated before execution; declared defaults are
//   applied first.
// - An executor is built per request and never shared between users.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "slack_send_message",
//		Description: "Send a message to a Slack channel",
//		Parameters: []toolexecutor.ToolParameter{{Name: "channel", Type: "string", Description: "channel", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return "sent", nil },
//	})
package toolexecutor
