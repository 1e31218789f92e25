package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ErrClosed is returned for work enqueued after Close
var ErrClosed = errors.New("command queue closed")

// Task is one unit of lane work
type Task func(ctx context.Context) error

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan error
}

type laneState struct {
	queue   []*taskRecord
	running bool
}

// CommandQueue runs tasks one at a time per lane, in FIFO order. Lanes are
// created on first use and dropped once drained.
type CommandQueue struct {
	logger zerolog.Logger

	mu     sync.Mutex
	lanes  map[string]*laneState
	seq    int
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a command queue
func New(logger zerolog.Logger) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		logger: logger,
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ConversationLane is the lane that serializes one conversation's turns
func ConversationLane(conversationID string) string {
	return "conversation-" + conversationID
}

// Enqueue appends task to lane and blocks until it ran. A task whose
// context is cancelled while queued is skipped with the context error.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task) error {
	ctx, span := tracing.StartSpan(ctx, "conflux.commandqueue", "commandqueue.enqueue",
		attribute.String("lane", lane))
	defer span.End()

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return ErrClosed
	}
	cq.seq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.seq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan error, 1),
	}
	ls, ok := cq.lanes[lane]
	if !ok {
		ls = &laneState{}
		cq.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	cq.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, cq.logger)
	logger.Debug().
		Str("lane", lane).
		Str("taskId", record.id).
		Int("queueSize", queueSize).
		Msg("Task enqueued")
	observability.RecordQueueEnqueue(lane, queueSize)

	cq.processLane(lane)

	err := <-record.result
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}

// processLane starts the next queued task of lane unless one is running
func (cq *CommandQueue) processLane(lane string) {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, ok := cq.lanes[lane]
	if !ok || ls.running {
		return
	}

	for len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		if cq.closed {
			record.result <- ErrClosed
			continue
		}
		if err := record.ctx.Err(); err != nil {
			record.result <- err
			continue
		}

		ls.running = true
		cq.wg.Add(1)
		go cq.executeTask(lane, record)
		return
	}

	delete(cq.lanes, lane)
}

func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	ctx, span := tracing.StartSpan(record.ctx, "conflux.commandqueue", "commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, cq.logger)

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	wait := time.Since(record.enqueuedAt)
	start := time.Now()
	err := record.task(runCtx)
	duration := time.Since(start)

	cq.mu.Lock()
	queueSize := 0
	if ls, ok := cq.lanes[lane]; ok {
		ls.running = false
		queueSize = len(ls.queue)
	}
	cq.mu.Unlock()

	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("wait", wait).
			Dur("duration", duration).
			Msg("Task completed")
	}
	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	record.result <- err
	cq.processLane(lane)
}

// QueueSize returns the number of tasks waiting in lane
func (cq *CommandQueue) QueueSize(lane string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if ls, ok := cq.lanes[lane]; ok {
		return len(ls.queue)
	}
	return 0
}

// ActiveLanes returns the number of lanes with queued or running work
func (cq *CommandQueue) ActiveLanes() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// WaitForActive waits for running tasks to finish, up to timeout
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cq.logger.Info().Msg("All active tasks completed")
		return true
	case <-time.After(timeout):
		cq.logger.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
		return false
	}
}

// Close rejects new work, cancels running tasks and waits for them
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()
	return nil
}
