package trace

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceAccumulatesInOrder(t *testing.T) {
	tr := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tr.Info("extract.start", "document_id", "abc")
	tr.Warn("extract.slow")
	tr.Success("extract.ok", "confidence", 0.91)

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "extract.start", entries[0].Message)
	assert.Equal(t, "abc", entries[0].Data["document_id"])
	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Nil(t, entries[1].Data)
	assert.Equal(t, LevelSuccess, entries[2].Level)
	assert.Equal(t, 0.91, entries[2].Data["confidence"])

	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i].ElapsedMS, entries[i-1].ElapsedMS)
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	tr := New(nil)
	tr.Info("one")

	got := tr.Entries()
	got[0].Message = "mutated"

	assert.Equal(t, "one", tr.Entries()[0].Message)
}

func TestTraceMirrorsToSink(t *testing.T) {
	var buf bytes.Buffer
	tr := New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	tr.Debug("parse.attempt", "method", "json_success")
	tr.Error("auth.failed")

	out := buf.String()
	assert.Contains(t, out, "parse.attempt")
	assert.Contains(t, out, "method=json_success")
	assert.Contains(t, out, "auth.failed")
}

func TestOddKeyValuePairsNeverPanic(t *testing.T) {
	tr := New(nil)
	tr.Info("odd", "key_without_value")

	entries := tr.Entries()
	require.Len(t, entries, 1)
	_, present := entries[0].Data["key_without_value"]
	assert.True(t, present)
}
