// Package logging defines the structured lifecycle events emitted while an
// index is generated, and the sinks that receive them.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Levels carried on events. Events without a level are informational.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is one structured lifecycle record.
type Event struct {
	Time        time.Time `json:"time"`
	RunID       string    `json:"run_id,omitempty"`
	ProjectRoot string    `json:"project_root,omitempty"`
	Source      string    `json:"source"`
	Action      string    `json:"action"`
	Level       string    `json:"level,omitempty"`
	Message     string    `json:"message,omitempty"`
	Adapter     string    `json:"adapter,omitempty"`
	Incremental *bool     `json:"incremental,omitempty"`
	Path        string    `json:"path,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
}

// Logger receives lifecycle events. Implementations must not block for long;
// they are called inline by the orchestrator.
type Logger interface {
	Log(e Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(e Event)

// Log calls f(e).
func (f LoggerFunc) Log(e Event) { f(e) }

// Nop discards every event.
var Nop Logger = LoggerFunc(func(Event) {})

type multi []Logger

func (m multi) Log(e Event) {
	for _, l := range m {
		l.Log(e)
	}
}

// Multi fans each event out to every non-nil logger, in order.
func Multi(loggers ...Logger) Logger {
	var out multi
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Options controls how events are rendered by the slog sink.
type Options struct {
	Level  string // "debug", "info", "warning", "error"
	Format string // "json" or "text"
}

// SlogLogger renders events through log/slog.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlog creates a sink writing to w.
func NewSlog(w io.Writer, opts Options) (*SlogLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		h = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return &SlogLogger{logger: slog.New(h)}, nil
}

// Log implements Logger.
func (l *SlogLogger) Log(e Event) {
	attrs := []slog.Attr{
		slog.String("source", e.Source),
		slog.String("action", e.Action),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.ProjectRoot != "" {
		attrs = append(attrs, slog.String("project_root", e.ProjectRoot))
	}
	if e.Adapter != "" {
		attrs = append(attrs, slog.String("adapter", e.Adapter))
	}
	if e.Incremental != nil {
		attrs = append(attrs, slog.Bool("incremental", *e.Incremental))
	}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	if e.Checksum != "" {
		attrs = append(attrs, slog.String("checksum", e.Checksum))
	}

	msg := e.Message
	if msg == "" {
		msg = e.Action
	}
	l.logger.LogAttrs(context.Background(), slogLevel(e.Level), msg, attrs...)
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarning, "warn":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

func slogLevel(level string) slog.Level {
	switch level {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Log implements Logger.
func (r *Recorder) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Actions returns the action tags in emission order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, len(r.events))
	for i, e := range r.events {
		actions[i] = e.Action
	}
	return actions
}

// Bool returns a pointer to b, for Event.Incremental.
func Bool(b bool) *bool { return &b }
