package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracedLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTracedLogger(NewJSONHandler(&buf, slog.LevelDebug), "wf-1", "ex-1")

	logger.Info(context.Background(), "step started", "step", "fetch")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "step started", entry["msg"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
	assert.Equal(t, "ex-1", entry["execution_id"])
	assert.Equal(t, "fetch", entry["step"])
	// No active span: trace correlation fields stay absent.
	assert.NotContains(t, entry, "trace_id")
}

func TestTracedLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTracedLogger(NewJSONHandler(&buf, slog.LevelDebug), "wf", "ex")

	logger.Info(context.Background(), "calling api", "api_key", "sk-secret", "url", "https://x.test")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "https://x.test", entry["url"])

	// Debug keeps full fidelity.
	buf.Reset()
	logger.Debug(context.Background(), "calling api", "api_key", "sk-secret")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sk-secret", entry["api_key"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger := NewLogger("info", "json", &buf)
	jsonLogger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	textLogger := NewLogger("info", "text", &buf)
	textLogger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
