package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter(t *testing.T) {
	t.Run("rotates once max size is exceeded", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "conflux.log")

		w, err := NewRotatingWriter(logFile, 1, 0, false)
		require.NoError(t, err)

		chunk := []byte(strings.Repeat("x", 600*1024))
		_, err = w.Write(chunk)
		require.NoError(t, err)
		_, err = w.Write(chunk)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		matches, err := filepath.Glob(logFile + ".*")
		require.NoError(t, err)
		assert.Len(t, matches, 1)

		info, err := os.Stat(logFile)
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk)), info.Size())
	})

	t.Run("compresses rotated files", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "conflux.log")

		w, err := NewRotatingWriter(logFile, 1, 0, true)
		require.NoError(t, err)

		chunk := []byte(strings.Repeat("y", 700*1024))
		_, _ = w.Write(chunk)
		_, err = w.Write(chunk)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		matches, err := filepath.Glob(logFile + ".*.gz")
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("cleanup removes expired rotated files", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "conflux.log")
		old := logFile + ".20200101-000000.000"
		require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
		past := time.Now().AddDate(0, 0, -30)
		require.NoError(t, os.Chtimes(old, past, past))

		w, err := NewRotatingWriter(logFile, 1, 7, false)
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(old)
		assert.True(t, os.IsNotExist(err))
	})
}
