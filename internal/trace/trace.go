// Package trace accumulates the ordered diagnostic log for one extraction
// invocation. A Trace is built per request, threaded through every pipeline
// component, attached to both success and failure responses, and discarded.
// It mirrors every entry to an injected slog sink and never fails.
package trace

import (
	"fmt"
	"log/slog"
	"time"
)

type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelSuccess Level = "SUCCESS"
	LevelDebug   Level = "DEBUG"
)

// Entry is one recorded pipeline event.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Trace owns the entries for a single invocation. Not safe for concurrent
// use; each invocation constructs its own.
type Trace struct {
	start   time.Time
	entries []Entry
	sink    *slog.Logger
}

// New returns a Trace mirroring to sink. A nil sink falls back to
// slog.Default so tracing never becomes a nil check at call sites.
func New(sink *slog.Logger) *Trace {
	if sink == nil {
		sink = slog.Default()
	}
	return &Trace{start: time.Now(), sink: sink}
}

func (t *Trace) Info(msg string, kv ...any)    { t.add(LevelInfo, msg, kv) }
func (t *Trace) Warn(msg string, kv ...any)    { t.add(LevelWarn, msg, kv) }
func (t *Trace) Error(msg string, kv ...any)   { t.add(LevelError, msg, kv) }
func (t *Trace) Success(msg string, kv ...any) { t.add(LevelSuccess, msg, kv) }
func (t *Trace) Debug(msg string, kv ...any)   { t.add(LevelDebug, msg, kv) }

// Elapsed returns the time since the invocation started.
func (t *Trace) Elapsed() time.Duration { return time.Since(t.start) }

// Entries returns a copy of the accumulated entries in order.
func (t *Trace) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Trace) add(level Level, msg string, kv []any) {
	now := time.Now()
	e := Entry{
		Timestamp: now,
		Level:     level,
		ElapsedMS: now.Sub(t.start).Milliseconds(),
		Message:   msg,
		Data:      kvToMap(kv),
	}
	t.entries = append(t.entries, e)

	args := append([]any{"elapsed_ms", e.ElapsedMS}, kv...)
	switch level {
	case LevelWarn:
		t.sink.Warn(msg, args...)
	case LevelError:
		t.sink.Error(msg, args...)
	case LevelDebug:
		t.sink.Debug(msg, args...)
	default:
		t.sink.Info(msg, args...)
	}
}

// kvToMap folds slog-style key/value pairs into a map. A trailing key
// without a value is kept with a nil value rather than dropped.
func kvToMap(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 < len(kv) {
			m[key] = kv[i+1]
		} else {
			m[key] = nil
		}
	}
	return m
}
