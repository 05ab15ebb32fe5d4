// Package testutils provides shared helpers for the framework's tests.
package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is one captured log record, flattened to key/value pairs with
// "level" and "message" keys added.
type LogEntry map[string]any

// logSink is the shared store behind a CaptureHandler and every handler
// derived from it via WithAttrs, so logger.With chains land in one place.
type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// CaptureHandler is a memory-backed slog.Handler for asserting on the
// framework's log output in tests.
type CaptureHandler struct {
	sink  *logSink
	attrs []slog.Attr
}

// NewCaptureHandler creates a capture handler recording every level.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{sink: &logSink{}}
}

// Enabled satisfies slog.Handler; every level is captured.
func (h *CaptureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

// Handle satisfies slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		"level":   r.Level.String(),
		"message": r.Message,
	}
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.entries = append(h.sink.entries, entry)
	return nil
}

// WithAttrs satisfies slog.Handler; the derived handler shares this
// handler's entry sink.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CaptureHandler{sink: h.sink, attrs: merged}
}

// WithGroup satisfies slog.Handler; groups are ignored for test purposes.
func (h *CaptureHandler) WithGroup(_ string) slog.Handler { return h }

// Entries returns a copy of all captured entries.
func (h *CaptureHandler) Entries() []LogEntry {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()

	result := make([]LogEntry, len(h.sink.entries))
	copy(result, h.sink.entries)
	return result
}

// ByLevel returns the captured entries matching a level name ("DEBUG",
// "WARN", ...).
func (h *CaptureHandler) ByLevel(level string) []LogEntry {
	var result []LogEntry
	for _, entry := range h.Entries() {
		if entry["level"] == level {
			result = append(result, entry)
		}
	}
	return result
}

// ByMessage returns the captured entries whose message equals msg.
func (h *CaptureHandler) ByMessage(msg string) []LogEntry {
	var result []LogEntry
	for _, entry := range h.Entries() {
		if entry["message"] == msg {
			result = append(result, entry)
		}
	}
	return result
}

// Clear resets the captured entries.
func (h *CaptureHandler) Clear() {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.entries = h.sink.entries[:0]
}
