package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want charmlog.Level
	}{
		{"DEBUG", charmlog.DebugLevel},
		{"info", charmlog.InfoLevel},
		{" warn ", charmlog.WarnLevel},
		{"WARNING", charmlog.WarnLevel},
		{"error", charmlog.ErrorLevel},
		{"chatty", charmlog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestJSONLoggerBindsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "DEBUG", JSON: true, Output: &buf})

	logger.Bind("pipeline", "turn").Info("pipeline_started", "envelope_id", "env_1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "pipeline_started", entry["msg"])
	assert.Equal(t, "turn", entry["pipeline"])
	assert.Equal(t, "env_1", entry["envelope_id"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "WARN", Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
}
