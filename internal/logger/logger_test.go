package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel(" warn "))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestJSONFormatAddsService(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "api", "info", "json")
	log.Info("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "api", line["service"])
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "v", line["k"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "worker", "warn", "")
	log.Info("dropped")
	require.Zero(t, buf.Len())
	log.Warn("kept")
	require.Contains(t, buf.String(), "kept")
	require.Contains(t, buf.String(), "service=worker")
}

func TestDiscardIsUsable(t *testing.T) {
	log := Discard()
	require.NotNil(t, log)
	require.NotPanics(t, func() { log.Error("ignored", slog.Any("err", "boom")) })
}
