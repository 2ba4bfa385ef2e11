package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abhisek/examdrill/internal/config"
)

func TestNew_ConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "examdrill.log")
	var console bytes.Buffer

	log, closeFn, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("session saved", zap.String("session_id", "s1"))
	closeFn()

	assert.Contains(t, console.String(), "session saved")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session saved", entry["msg"])
	assert.Equal(t, "s1", entry["session_id"])
}

func TestNew_NoSinks(t *testing.T) {
	log, closeFn, err := New(config.LogConfig{Level: "warn"}, nil)
	require.NoError(t, err)
	log.Warn("dropped")
	closeFn()
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"}, nil)
	assert.Error(t, err)
}
