package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEnabled(t *testing.T) {
	assert.False(t, New(false).JSONEnabled())
	assert.True(t, New(true).JSONEnabled())
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, WithWriter(&buf)).With(map[string]any{"run_id": "r1"})
	l.Info("applying migration", map[string]any{"migration": "1_init"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "applying migration", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "1_init", entry["migration"])
	assert.Equal(t, "r1", entry["run_id"])
}

func TestConsoleOutputAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, WithWriter(&buf))
	l.Debug("hidden", nil)
	l.Warn("careful", map[string]any{"b": 2, "a": 1})

	out := buf.String()
	assert.NotContains(t, out, "hidden", "debug is off unless verbose")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, `{"a": 1, "b": 2}`)

	buf.Reset()
	New(false, WithWriter(&buf), WithVerbose(true)).Debug("shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("nothing", map[string]any{"x": 1}) })
}
