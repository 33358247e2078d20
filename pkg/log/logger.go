package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO", "":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the output encoding.
type Format int

// Output formats
const (
	TextFormat Format = iota
	JSONFormat
)

// ParseFormat converts a format name (case-insensitive) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return TextFormat, nil
	case "json":
		return JSONFormat, nil
	default:
		return TextFormat, fmt.Errorf("unknown log format %q", s)
	}
}

// Logger is the logging interface used across lode components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that includes the fields on every message.
	With(fields ...Field) Logger

	// SetLevel sets the minimum level for the whole logger tree.
	SetLevel(level Level)

	// GetLevel returns the current minimum level.
	GetLevel() Level
}

// Option configures a logger at construction.
type Option func(*settings)

type settings struct {
	level  Level
	format Format
	out    io.Writer
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(s *settings) { s.level = level }
}

// WithFormat sets the output encoding.
func WithFormat(format Format) Option {
	return func(s *settings) { s.format = format }
}

// WithWriter sets the output destination. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// baseLogger implements Logger over a shared slog.Logger. The level var is
// shared by every derived logger so SetLevel applies tree-wide.
type baseLogger struct {
	sl    *slog.Logger
	level *slog.LevelVar
}

// NewLogger creates a logger with the given options.
func NewLogger(options ...Option) Logger {
	s := settings{level: InfoLevel, format: TextFormat, out: os.Stderr}
	for _, opt := range options {
		opt(&s)
	}

	lv := new(slog.LevelVar)
	lv.Set(toSlogLevel(s.level))
	hopts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	switch s.format {
	case JSONFormat:
		h = slog.NewJSONHandler(s.out, hopts)
	default:
		h = slog.NewTextHandler(s.out, hopts)
	}
	return &baseLogger{sl: slog.New(h), level: lv}
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() Logger {
	l := NewLogger(WithWriter(io.Discard))
	l.SetLevel(ErrorLevel + 1)
	return l
}

// RedirectStdLog routes the standard library's global logger through l at
// info level. Pebble logs via the stdlib by default.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{l: l})
}

type stdLogWriter struct{ l Logger }

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func (l *baseLogger) Debug(msg string, fields ...Field) {
	l.sl.Debug(msg, attrsToAny(fields)...)
}

func (l *baseLogger) Info(msg string, fields ...Field) {
	l.sl.Info(msg, attrsToAny(fields)...)
}

func (l *baseLogger) Warn(msg string, fields ...Field) {
	l.sl.Warn(msg, attrsToAny(fields)...)
}

func (l *baseLogger) Error(msg string, fields ...Field) {
	l.sl.Error(msg, attrsToAny(fields)...)
}

func (l *baseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &baseLogger{sl: l.sl.With(attrsToAny(fields)...), level: l.level}
}

func (l *baseLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

func (l *baseLogger) GetLevel() Level {
	return fromSlogLevel(l.level.Level())
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		// Above ErrorLevel nothing is emitted.
		return slog.LevelError + 4
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return DebugLevel
	case level == slog.LevelInfo:
		return InfoLevel
	case level == slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func attrsToAny(fields []Field) []any {
	if len(fields) == 0 {
		return nil
	}
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}
