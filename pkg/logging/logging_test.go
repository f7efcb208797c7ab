package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("frame rejected", "channel", "Loop")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "frame rejected", entry["msg"])
	assert.Equal(t, "Loop", entry["channel"])
}

func TestFromEnv_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ed247.log")
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvFormat, "text")
	t.Setenv(EnvFilePath, path)

	var buf bytes.Buffer
	logger, closer, err := FromEnv(Config{Level: "error", Output: &buf})
	require.NoError(t, err)

	logger.Debug("socket opened", "socket", "127.0.0.1:2589")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "socket opened")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "socket=127.0.0.1:2589")
}
