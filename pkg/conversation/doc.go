// Package conversation persists chat history as one JSONL file per
// conversation.
//
// Invariants:
// - Conversation ids are validated and path-safe.
// - Writes for the same conversation are serialized.
// - Assistant actions are kept under the actions_taken metadata key.
//
// Usage:
//
//	store, _ := conversation.NewStore("/tmp/conflux/conversations", logger)
//	_ = store.RecordMessage(ctx, "conv-1", "user", "hello", nil)
//	msgs, _ := store.Load(ctx, "conv-1")
//	_ = msgs
package conversation
