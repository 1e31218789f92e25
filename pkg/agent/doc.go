// Package agent runs tool-calling LLM loops with retry and provider failover.
//
// Invariants:
// - Tool calls route through the request's toolexecutor only.
// - A run makes at most MaxTurns model calls.
// - Tool results reach OnToolResult synchronously and in call order.
// - A profile that already ran tools is never replayed on another profile.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{AuthProfiles: profiles, Agent: agent.DefaultConfig()})
//	result, _ := runner.Run(ctx, agent.RunParams{
//		Prompt: "send 'hi' to #general",
//		Tools:  tools,
//	})
//	_ = result
package agent
