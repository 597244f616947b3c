package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:      level,
		Format:     "json",
		TimeFormat: time.RFC3339,
		writer:     output,
	})
	require.NoError(t, err)
	return logger, output
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantLines int
	}{
		{level: "debug", wantLines: 4},
		{level: "info", wantLines: 3},
		{level: "warn", wantLines: 2},
		{level: "error", wantLines: 1},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, output := newJSONLogger(t, tt.level)

			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			lines := strings.Split(strings.TrimSpace(output.String()), "\n")
			assert.Len(t, lines, tt.wantLines)
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	logger, output := newJSONLogger(t, "info")

	logger.Info("claim batch done",
		slog.String("job_type", "send_email"),
		slog.Int("claimed", 3),
	)

	entry := decodeLine(t, strings.TrimSpace(output.String()))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "claim batch done", entry["msg"])
	assert.Equal(t, "send_email", entry["job_type"])
	assert.Equal(t, float64(3), entry["claimed"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleOutput(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		writer:     output,
	})
	require.NoError(t, err)

	logger.Info("poll tick")

	// tint abbreviates the level to "INF"
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "poll tick")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
		writer:       output,
	})
	require.NoError(t, err)

	logger.Info("with source")

	entry := decodeLine(t, strings.TrimSpace(output.String()))
	require.Contains(t, entry, "source")
	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))

	// Anything unrecognized falls back to info, including uppercase.
	assert.Equal(t, slog.LevelInfo, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("invalid"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestLogger_With(t *testing.T) {
	logger, output := newJSONLogger(t, "info")

	logger.With(slog.String("service", "worker")).Info("started")

	entry := decodeLine(t, strings.TrimSpace(output.String()))
	assert.Equal(t, "worker", entry["service"])
	assert.Equal(t, "started", entry["msg"])
}

func TestLogger_WithAttrs(t *testing.T) {
	logger, output := newJSONLogger(t, "info")

	logger.WithAttrs(
		slog.String("request_id", "req-1"),
		slog.String("company_id", "c1"),
	).Info("handled")

	entry := decodeLine(t, strings.TrimSpace(output.String()))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "c1", entry["company_id"])
}

func TestLogger_WithGroup(t *testing.T) {
	logger, output := newJSONLogger(t, "info")

	logger.WithGroup("job").Info("claimed", slog.String("id", "j1"))

	entry := decodeLine(t, strings.TrimSpace(output.String()))
	require.Contains(t, entry, "job")
	group := entry["job"].(map[string]interface{})
	assert.Equal(t, "j1", group["id"])
}
