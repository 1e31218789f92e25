package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/conflux/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	dir := t.TempDir()
	s, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)
	return s, dir
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"valid id", "V1StGXR8_Z5jdHi6B-myT", false},
		{"empty id", "", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "conv/1", true},
		{"backslash", "conv\\1", true},
		{"null byte", "conv\x001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_RecordMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a turn in order with actions", func(t *testing.T) {
		s, _ := setupTestStore(t)

		actions := []events.ActionResult{
			{Service: "slack", Action: "slack_send_message", Success: true, Result: "✅ Message sent to #general"},
		}
		require.NoError(t, s.RecordMessage(ctx, "conv-1", "user", "tell the team", nil))
		require.NoError(t, s.RecordMessage(ctx, "conv-1", "assistant", "Done.", actions))

		msgs, err := s.Load(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)

		assert.Equal(t, "user", msgs[0].Role)
		assert.Equal(t, "tell the team", msgs[0].Content)
		assert.Nil(t, msgs[0].Metadata)

		assert.Equal(t, "assistant", msgs[1].Role)
		assert.Equal(t, actions, msgs[1].Actions)
		assert.Contains(t, msgs[1].Metadata, "actions_taken")
		assert.False(t, msgs[1].Timestamp.IsZero())
	})

	t.Run("should keep an empty action list", func(t *testing.T) {
		s, _ := setupTestStore(t)

		require.NoError(t, s.RecordMessage(ctx, "conv-1", "assistant", "Nothing to do.", []events.ActionResult{}))
		msgs, err := s.Load(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Empty(t, msgs[0].Actions)
		assert.Contains(t, msgs[0].Metadata, "actions_taken")
	})

	t.Run("should reject unsafe ids", func(t *testing.T) {
		s, dir := setupTestStore(t)

		err := s.RecordMessage(ctx, "../escape", "user", "hi", nil)
		assert.Error(t, err)
		_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.jsonl"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("should reject an empty role", func(t *testing.T) {
		s, _ := setupTestStore(t)
		assert.Error(t, s.RecordMessage(ctx, "conv-1", "", "hi", nil))
	})
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.RecordMessage(ctx, "conv-1", "user", fmt.Sprintf("message %d", i), nil))
		}(i)
	}
	wg.Wait()

	msgs, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, msgs, writers)
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("should return empty for a missing conversation", func(t *testing.T) {
		s, _ := setupTestStore(t)
		msgs, err := s.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("should skip corrupt lines", func(t *testing.T) {
		s, dir := setupTestStore(t)
		require.NoError(t, s.RecordMessage(ctx, "conv-1", "user", "first", nil))

		f, err := os.OpenFile(filepath.Join(dir, "conv-1.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.WriteString("{not json\n{\"conversationId\":\"conv-1\",\"message\":{}}\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		require.NoError(t, s.RecordMessage(ctx, "conv-1", "assistant", "second", nil))

		msgs, err := s.Load(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, "second", msgs[1].Content)
	})
}

func TestStore_ListDeletePrune(t *testing.T) {
	ctx := context.Background()

	t.Run("should list conversations sorted", func(t *testing.T) {
		s, dir := setupTestStore(t)
		require.NoError(t, s.RecordMessage(ctx, "b", "user", "hi", nil))
		require.NoError(t, s.RecordMessage(ctx, "a", "user", "hi", nil))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

		ids, err := s.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
	})

	t.Run("should delete idempotently", func(t *testing.T) {
		s, _ := setupTestStore(t)
		require.NoError(t, s.RecordMessage(ctx, "a", "user", "hi", nil))

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))

		ids, err := s.List()
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("should prune only idle conversations", func(t *testing.T) {
		s, dir := setupTestStore(t)
		require.NoError(t, s.RecordMessage(ctx, "old", "user", "hi", nil))
		require.NoError(t, s.RecordMessage(ctx, "fresh", "user", "hi", nil))

		past := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(dir, "old.jsonl"), past, past))

		removed, err := s.Prune(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		ids, err := s.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, ids)
	})
}

func TestNewStore(t *testing.T) {
	t.Run("should require a directory", func(t *testing.T) {
		_, err := NewStore("", zerolog.Nop())
		assert.Error(t, err)
	})
}
