package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{buf: &bytes.Buffer{}}
}

func (h *testHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

// lastRecord decodes the final log line the handler captured.
func (h *testHandler) lastRecord(t *testing.T) map[string]any {
	lines := bytes.Split(bytes.TrimSpace(h.buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var data map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &data))
	return data
}

func TestEnrichLogger(t *testing.T) {
	h := newTestHandler()
	logger := EnrichLogger(slog.New(h), "thr-1", "mon-1")

	logger.Info("something happened")

	data := h.lastRecord(t)
	assert.Equal(t, "thr-1", data["thread_id"])
	assert.Equal(t, "mon-1", data["monitor_id"])

	assert.Nil(t, EnrichLogger(nil, "thr-1", "mon-1"))
}

func TestLogAcquired(t *testing.T) {
	h := newTestHandler()
	LogAcquired(slog.New(h), "thr-1", "mon-1", 2, 3.5)

	data := h.lastRecord(t)
	assert.Equal(t, "monitor acquired", data["msg"])
	assert.Equal(t, "thr-1", data["thread_id"])
	assert.Equal(t, "mon-1", data["monitor_id"])
	assert.Equal(t, float64(2), data["hold_count"])
	assert.Equal(t, 3.5, data["waited_ms"])

	LogAcquired(nil, "thr-1", "mon-1", 1, 0) // nil logger is safe
}

func TestLogWaitOutcome(t *testing.T) {
	h := newTestHandler()
	LogWaitOutcome(slog.New(h), "thr-1", "mon-1", "timed_out", 100)

	data := h.lastRecord(t)
	assert.Equal(t, "wait completed", data["msg"])
	assert.Equal(t, "timed_out", data["outcome"])

	LogWaitOutcome(nil, "thr-1", "mon-1", "notified", 0)
}

func TestLogOwnershipViolation(t *testing.T) {
	h := newTestHandler()
	LogOwnershipViolation(slog.New(h), "thr-1", "mon-1", "release")

	data := h.lastRecord(t)
	assert.Equal(t, "WARN", data["level"])
	assert.Equal(t, "release", data["operation"])

	LogOwnershipViolation(nil, "thr-1", "mon-1", "wait")
}

func TestLogDeadlock(t *testing.T) {
	h := newTestHandler()
	LogDeadlock(slog.New(h), []string{"thr-1->mon-b", "thr-2->mon-a"})

	data := h.lastRecord(t)
	assert.Equal(t, "ERROR", data["level"])
	assert.Equal(t, "deadlock detected", data["msg"])
	cycle, ok := data["cycle"].([]any)
	require.True(t, ok)
	assert.Len(t, cycle, 2)

	LogDeadlock(nil, nil)
}

func TestLogReleased(t *testing.T) {
	h := newTestHandler()
	LogReleased(slog.New(h), "thr-1", "mon-1")

	data := h.lastRecord(t)
	assert.Equal(t, "monitor released", data["msg"])

	LogReleased(nil, "thr-1", "mon-1")
}

func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	assert.GreaterOrEqual(t, elapsed(), float64(0))
}
