package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInfoWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel)

	log.Info("step completed", "step_name", "build", "duration_ms", int64(42), "parallel", true)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "step completed", decoded["message"])
	require.Equal(t, "build", decoded["step_name"])
	require.Equal(t, float64(42), decoded["duration_ms"])
	require.Equal(t, true, decoded["parallel"])
}

func TestDebugBelowLevelIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel)

	log.Debug("should not appear")

	require.Empty(t, buf.String())
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel)

	log.Error("step failed", errors.New("boom"), "step_name", "deploy")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "boom", decoded["error"])
	require.Equal(t, "deploy", decoded["step_name"])
}

func TestOddLengthKVDropsTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel)

	log.Info("trailing", "orphan_key")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.NotContains(t, decoded, "orphan_key")
}
