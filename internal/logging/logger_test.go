package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, parseLevel(tc.input), "parseLevel(%q)", tc.input)
	}
}

func TestNewLoggerWithOutput_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("warn", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("section", "Financials").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "Financials", entry["section"])
}

func TestWithTicker(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", &buf).WithTicker("XNAS:AAPL")
	logger.Debug().Msg("fetching")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "XNAS:AAPL", entry["ticker"])
}

func TestNewSilentLogger(t *testing.T) {
	logger := NewSilentLogger()
	assert.NotPanics(t, func() {
		logger.Error().Msg("discarded")
	})
}
