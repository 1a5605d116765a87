package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestTypedFieldsAndChildFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "INFO", Writer: &buf})
	require.NoError(t, err)

	l.With(String("service", "coinodds")).Info("run committed",
		String("run_id", "r1"),
		Int("assets", 7),
		Float64("p_rise", 0.61),
		Bool("fallback", false),
		Duration("took", 1500*time.Millisecond),
		Strings("skipped", []string{"DOGE", "PEPE"}),
		Error(errors.New("partial")),
	)

	m := decode(t, &buf)
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "run committed", m["message"])
	assert.Equal(t, "coinodds", m["service"])
	assert.Equal(t, "r1", m["run_id"])
	assert.Equal(t, float64(7), m["assets"])
	assert.Equal(t, 0.61, m["p_rise"])
	assert.Equal(t, false, m["fallback"])
	assert.Equal(t, float64(1500), m["took"])
	assert.Equal(t, "DOGE, PEPE", m["skipped"])
	assert.Equal(t, "partial", m["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Equal(t, "warn", decode(t, &buf)["level"])
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.ErrorContains(t, err, `log level "loud"`)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() { NewNop().With(Int("n", 1)).Error("x", Error(nil)) })
}
