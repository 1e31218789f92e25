package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	t.Run("should round trip every key", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-1")
		ctx = WithRunID(ctx, "run-1")
		ctx = WithUserID(ctx, "user-1")
		ctx = WithConversationID(ctx, "conv-1")
		ctx = WithTaskID(ctx, "task_1")

		tc := FromContext(ctx)
		assert.Equal(t, "trace-1", tc.TraceID)
		assert.Equal(t, "run-1", tc.RunID)
		assert.Equal(t, "user-1", tc.UserID)
		assert.Equal(t, "conv-1", tc.ConversationID)
		assert.Equal(t, "task_1", tc.TaskID)
	})

	t.Run("should return empty strings for missing keys", func(t *testing.T) {
		tc := FromContext(context.Background())
		assert.Empty(t, tc.TraceID)
		assert.Empty(t, tc.ConversationID)
	})

	t.Run("should tolerate a nil context", func(t *testing.T) {
		assert.Empty(t, GetTraceID(nil))
	})
}

func TestNewTurnContext(t *testing.T) {
	t.Run("should assign a trace ID when missing", func(t *testing.T) {
		ctx := NewTurnContext(context.Background(), "u1", "c1")
		assert.NotEmpty(t, GetTraceID(ctx))
		assert.Equal(t, "u1", GetUserID(ctx))
		assert.Equal(t, "c1", GetConversationID(ctx))
	})

	t.Run("should keep an existing trace ID", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "from-gateway")
		ctx = NewTurnContext(ctx, "u1", "c1")
		assert.Equal(t, "from-gateway", GetTraceID(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-xyz")
	ctx = WithTaskID(ctx, "task_2")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"trace_id":"trace-xyz"`)
	assert.Contains(t, out, `"task_id":"task_2"`)
	assert.NotContains(t, out, "conversation_id")
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "conflux.test", "test.span")
	defer span.End()
	assert.NotNil(t, ctx)
}
