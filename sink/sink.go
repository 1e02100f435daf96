// Package sink provides destinations for the diagnostic records produced by
// log actions.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/amp-labs/statechart/logger"
	"github.com/amp-labs/statechart/model"
)

// Sink receives log records. Record never fails from the caller's point of
// view; a sink that cannot deliver drops the record.
type Sink interface {
	Record(ctx context.Context, entry model.LogEntry)
}

// Slog writes each record to the context logger.
type Slog struct {
	level slog.Level
}

// NewSlog creates a sink logging at level.
func NewSlog(level slog.Level) *Slog {
	return &Slog{level: level}
}

func (s *Slog) Record(ctx context.Context, entry model.LogEntry) {
	args := []any{"label", entry.Label}
	if entry.HasValue {
		args = append(args, "value", entry.Value)
	}

	logger.Get(ctx).Log(ctx, s.level, "log", args...)
}

// Writer prints each record as a line of text.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a sink printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Record(ctx context.Context, entry model.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.w, entry.String()); err != nil {
		logger.Get(ctx).Debug("Dropped log record", "error", err)
	}
}

// Memory keeps records in order for later inspection.
type Memory struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

// NewMemory creates an empty memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Record(_ context.Context, entry model.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
}

// Entries returns a copy of the records so far.
func (s *Memory) Entries() []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.LogEntry(nil), s.entries...)
}

// Reset discards every record.
func (s *Memory) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
}

// Multi delivers each record to every sink in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry model.LogEntry) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, entry)
		}
	}
}

// Discard drops every record.
type Discard struct{}

func (Discard) Record(context.Context, model.LogEntry) {}
