package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestSlogHandler_MapsLevelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(SlogHandler(zerolog.New(&buf), slog.LevelWarn))

	logger.Info("dropped")
	logger.Warn("upload stalled", "id", "abc", "offset", 42, "wait", time.Second)
	logger.Error("store failed", "err", errors.New("disk full"), "retry", false)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "upload stalled", lines[0]["message"])
	assert.Equal(t, "abc", lines[0]["id"])
	assert.Equal(t, float64(42), lines[0]["offset"])
	assert.Contains(t, lines[0], "wait")

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "disk full", lines[1]["err"])
	assert.Equal(t, false, lines[1]["retry"])
}

func TestSlogHandler_GroupsAndWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(SlogHandler(zerolog.New(&buf), slog.LevelDebug)).
		With("component", "tus").
		WithGroup("upload")

	logger.Debug("chunk", "id", "u1", slog.Group("range", "from", 0, "to", 10))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "tus", lines[0]["component"])
	assert.Equal(t, "u1", lines[0]["upload.id"])
	assert.Equal(t, float64(10), lines[0]["upload.range.to"])
}
