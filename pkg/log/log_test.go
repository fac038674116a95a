package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(DebugLevel))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(WarnLevel))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(ErrorLevel))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestInitJSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithAgent(WithState(WithRunID(WithComponent("rollout"), "run-1"), "CANARY_NEW"), "bamboo-agent-x")
	logger.Info().Msg("Stopping agent")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rollout", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "CANARY_NEW", entry["state"])
	assert.Equal(t, "bamboo-agent-x", entry["agent"])
	assert.Equal(t, "Stopping agent", entry["message"])
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Info("dropped")
	assert.Zero(t, buf.Len())

	Error("kept")
	assert.Contains(t, buf.String(), "kept")
}
