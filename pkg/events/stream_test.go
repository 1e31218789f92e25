package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harun/conflux/pkg/planner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *planner.TaskPlan {
	return planner.NewTaskPlan([]*planner.PlannedTask{
		{ID: "task_1", Service: "slack", Action: "send_message", Status: planner.StatusPending},
	})
}

func TestStream(t *testing.T) {
	ctx := context.Background()

	t.Run("should accept planning before plan", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		require.NoError(t, s.Emit(ctx, Planning("Analyzing your request...")))
		require.NoError(t, s.Emit(ctx, Plan(testPlan())))
		assert.Equal(t, []string{TypePlanning, TypePlan}, rec.Types())
	})

	t.Run("should reject task events before plan", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		err := s.Emit(ctx, TaskStarted("task_1", "slack", "send_message", "Send"))
		assert.ErrorIs(t, err, ErrPlanNotEmitted)
		assert.Empty(t, rec.Events())
	})

	t.Run("should reject events after a terminal event", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		require.NoError(t, s.Emit(ctx, Plan(testPlan())))
		require.NoError(t, s.Emit(ctx, Complete("done", nil, 1, 1, 0)))

		err := s.Emit(ctx, TaskCompleted("task_1", "slack", "send_message", "late"))
		assert.ErrorIs(t, err, ErrStreamClosed)
		assert.True(t, s.Closed())
		assert.Len(t, rec.Events(), 2)
	})

	t.Run("should allow an error without a plan", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		require.NoError(t, s.Emit(ctx, Error("LLM not configured. Please set GOOGLE_API_KEY.")))
		assert.Equal(t, []string{TypeError}, rec.Types())
	})

	t.Run("should number events monotonically", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		require.NoError(t, s.Emit(ctx, Planning("x")))
		require.NoError(t, s.Emit(ctx, Plan(testPlan())))
		require.NoError(t, s.Emit(ctx, TaskStarted("task_1", "slack", "send_message", "Send")))

		var seqs []int64
		for _, ev := range rec.Events() {
			seqs = append(seqs, ev.Seq)
			assert.NotZero(t, ev.Timestamp)
		}
		assert.Equal(t, []int64{1, 2, 3}, seqs)
		assert.Equal(t, int64(3), s.Seq())
	})

	t.Run("should close idempotently", func(t *testing.T) {
		rec := &Recorder{}
		s := NewStream(rec, zerolog.Nop())

		require.NoError(t, s.Close(ctx, Error("boom")))
		require.NoError(t, s.Close(ctx, Complete("done", nil, 0, 0, 0)))
		assert.Equal(t, []string{TypeError}, rec.Types())
	})

	t.Run("should refuse to close with a non-terminal event", func(t *testing.T) {
		s := NewStream(&Recorder{}, zerolog.Nop())
		assert.Error(t, s.Close(ctx, Planning("x")))
		assert.False(t, s.Closed())
	})

	t.Run("should wrap sink failures", func(t *testing.T) {
		sinkErr := errors.New("broken pipe")
		s := NewStream(failingSink{err: sinkErr}, zerolog.Nop())

		err := s.Emit(ctx, Planning("x"))
		assert.ErrorIs(t, err, sinkErr)
	})
}

type failingSink struct{ err error }

func (f failingSink) Emit(ctx context.Context, ev Event) error { return f.err }

func TestNDJSONWriter(t *testing.T) {
	t.Run("should write one flushed JSON object per line", func(t *testing.T) {
		rw := httptest.NewRecorder()
		s := NewStream(NewNDJSONWriter(rw), zerolog.Nop())
		ctx := context.Background()

		require.NoError(t, s.Emit(ctx, Planning("Analyzing your request...")))
		require.NoError(t, s.Emit(ctx, Plan(testPlan())))
		require.NoError(t, s.Emit(ctx, TaskCompleted("task_1", "slack", "send_message", "✅ sent")))
		require.NoError(t, s.Emit(ctx, Complete("done", []ActionResult{
			{Service: "slack", Action: "slack_send_message", Success: true, Result: "✅ sent"},
		}, 1, 1, 0)))

		assert.True(t, rw.Flushed)

		var types []string
		scanner := bufio.NewScanner(strings.NewReader(rw.Body.String()))
		for scanner.Scan() {
			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			assert.NotContains(t, line, "Seq")
			types = append(types, line["event_type"].(string))
			assert.Contains(t, line, "data")
		}
		assert.Equal(t, []string{TypePlanning, TypePlan, TypeTaskCompleted, TypeComplete}, types)
	})

	t.Run("should omit empty result and error on actions", func(t *testing.T) {
		data, err := json.Marshal(ActionResult{Service: "slack", Action: "slack_list_channels", Success: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"service":"slack","action":"slack_list_channels","success":true}`, string(data))
	})
}

func TestChannelSink(t *testing.T) {
	t.Run("should deliver events in order", func(t *testing.T) {
		sink := NewChannelSink(4)
		ctx := context.Background()

		require.NoError(t, sink.Emit(ctx, Planning("x")))
		require.NoError(t, sink.Emit(ctx, Error("y")))
		sink.Close()
		sink.Close()

		var types []string
		for ev := range sink.Events() {
			types = append(types, ev.Type)
		}
		assert.Equal(t, []string{TypePlanning, TypeError}, types)
	})

	t.Run("should stop blocking when the context ends", func(t *testing.T) {
		sink := NewChannelSink(0)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := sink.Emit(ctx, Planning("x"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestEventPayloads(t *testing.T) {
	t.Run("should carry the plan dictionary", func(t *testing.T) {
		ev := Plan(testPlan())
		assert.Equal(t, 1, ev.Data["total"])
		assert.Nil(t, ev.Data["current_task_id"])
	})

	t.Run("should default actions to an empty list", func(t *testing.T) {
		ev := Complete("ok", nil, 0, 0, 0)
		assert.Equal(t, []ActionResult{}, ev.Data["actions_taken"])
		assert.True(t, ev.IsTerminal())
		assert.False(t, ev.IsTask())
	})
}
