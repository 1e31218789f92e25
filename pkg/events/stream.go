package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrPlanNotEmitted is returned for task events sent before the plan
	ErrPlanNotEmitted = errors.New("plan event not emitted")

	// ErrStreamClosed is returned for events sent after a terminal event
	ErrStreamClosed = errors.New("event stream closed")
)

// Sink receives events in order
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Stream wraps a Sink and enforces event ordering for one turn
type Stream struct {
	sink   Sink
	logger zerolog.Logger

	mu      sync.Mutex
	seq     int64
	planned bool
	closed  bool
}

// NewStream creates a stream writing to sink
func NewStream(sink Sink, logger zerolog.Logger) *Stream {
	return &Stream{sink: sink, logger: logger}
}

// Emit stamps ev with the next sequence number and forwards it. Task events
// before the plan and anything after a terminal event are rejected.
func (s *Stream) Emit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn().Str("eventType", ev.Type).Msg("Dropping event after terminal event")
		return ErrStreamClosed
	}
	if ev.IsTask() && !s.planned {
		s.logger.Warn().Str("eventType", ev.Type).Msg("Rejecting task event before plan")
		return ErrPlanNotEmitted
	}

	s.seq++
	ev.Seq = s.seq
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	if ev.Type == TypePlan {
		s.planned = true
	}
	if ev.IsTerminal() {
		s.closed = true
	}

	if err := s.sink.Emit(ctx, ev); err != nil {
		return fmt.Errorf("failed to emit %s: %w", ev.Type, err)
	}
	return nil
}

// Close emits terminal unless the stream is already closed
func (s *Stream) Close(ctx context.Context, terminal Event) error {
	if !terminal.IsTerminal() {
		return fmt.Errorf("event %s is not terminal", terminal.Type)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	err := s.Emit(ctx, terminal)
	if errors.Is(err, ErrStreamClosed) {
		return nil
	}
	return err
}

// Closed reports whether a terminal event went out
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Seq returns the sequence number of the last emitted event
func (s *Stream) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
