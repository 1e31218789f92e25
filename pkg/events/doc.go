// Package events defines the progress events of a chat turn and the sinks
// that carry them to clients.
//
// Invariants:
// - task_* events are only accepted after the plan event.
// - Exactly one terminal event (complete or error) ends a stream.
// - Sequence numbers increase by one per accepted event.
//
// Usage:
//
//	stream := events.NewStream(events.NewNDJSONWriter(w), logger)
//	_ = stream.Emit(ctx, events.Planning("Analyzing your request..."))
//	_ = stream.Emit(ctx, events.Plan(plan))
//	_ = stream.Close(ctx, events.Complete(msg, actions, 2, 2, 0))
package events
