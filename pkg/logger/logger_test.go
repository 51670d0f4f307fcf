package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "DEBUG", Format: "json", Output: &buf})

	l.WithComponent("attributor").WithRunID("run-1").WithActor("alice").Debug().Msg("tracing")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "attributor", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "alice", entry["actor"])
	assert.Equal(t, "tracing", entry["message"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.TraceLevel, parseLevel("Trace"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().WithActor("bob").Error().Msg("nothing")
	})
}
