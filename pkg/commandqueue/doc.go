// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute one at a time in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - Queue activity is observable through metrics.
//
// Usage:
//
//	queue := commandqueue.New(logger)
//	defer queue.Close()
//	err := queue.Enqueue(ctx, commandqueue.ConversationLane("abc"), func(ctx context.Context) error {
//		return nil
//	})
package commandqueue
