package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/conflux/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysGenerate(t *testing.T) {
	t.Run("should write a loadable keyset", func(t *testing.T) {
		home := setupEnv(t)
		path := filepath.Join(home, "keys", "keyset.json")

		output, err := execute(t, "keys", "generate", "--output", path)
		require.NoError(t, err)
		assert.Contains(t, output, path)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		_, err = credentials.LoadKeyset(path)
		assert.NoError(t, err)
	})

	t.Run("should not overwrite an existing keyset", func(t *testing.T) {
		home := setupEnv(t)
		path := filepath.Join(home, "keyset.json")

		_, err := execute(t, "keys", "generate", "-o", path)
		require.NoError(t, err)

		_, err = execute(t, "keys", "generate", "-o", path)
		assert.Error(t, err)
	})

	t.Run("should default to the configured path", func(t *testing.T) {
		home := setupEnv(t)

		_, err := execute(t, "keys", "generate")
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(home, "data", "keyset.json"))
		assert.NoError(t, err)
	})
}
