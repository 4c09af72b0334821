package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("reading appended", "value_dba", 42.7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reading appended", entry["msg"])
	assert.InDelta(t, 42.7, entry["value_dba"], 1e-9)
}

func TestNewLoggerTo_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "debug", "text")

	logger.Debug("sync skipped", "reason", "no partition")

	assert.Contains(t, buf.String(), "msg=\"sync skipped\"")
	assert.Contains(t, buf.String(), "reason=\"no partition\"")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.ReadingsAppended.Inc()
	a.DecodeErrors.WithLabelValues("malformed_frame").Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.ReadingsAppended), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.ReadingsAppended), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.DecodeErrors.WithLabelValues("malformed_frame")), 0)
}
