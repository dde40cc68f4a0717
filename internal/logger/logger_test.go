package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ls.log")

	err := Init(&Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, Init(&Config{Level: "info"}))
	})

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log := WithComponent("test")
	log.Info().Str("key", "k").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	err := Init(&Config{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_UnwritableOutput(t *testing.T) {
	err := Init(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "ls.log")})
	assert.Error(t, err)
}
