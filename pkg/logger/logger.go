package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin zerolog wrapper with typed fields.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string

	// Writer overrides Output when set.
	Writer io.Writer
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(cfg *Config) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that stamps fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { write(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { write(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { write(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) { write(l.zl.Error(), msg, fields) }

// write is a no-op for events below the configured level, which zerolog
// signals with a nil event.
func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.add(e)
	}
	e.Msg(msg)
}

// Field is one structured key/value. Key and Value are what With stamps on
// child loggers; add writes the typed form onto an event.
type Field struct {
	Key   string
	Value any
	add   func(*zerolog.Event)
}

func String(key, v string) Field {
	return Field{Key: key, Value: v, add: func(e *zerolog.Event) { e.Str(key, v) }}
}

func Strings(key string, v []string) Field {
	return String(key, strings.Join(v, ", "))
}

func Int(key string, v int) Field {
	return Field{Key: key, Value: v, add: func(e *zerolog.Event) { e.Int(key, v) }}
}

func Float64(key string, v float64) Field {
	return Field{Key: key, Value: v, add: func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return Field{Key: key, Value: v, add: func(e *zerolog.Event) { e.Bool(key, v) }}
}

// Duration logs whole milliseconds.
func Duration(key string, v time.Duration) Field {
	return Int(key, int(v/time.Millisecond))
}

func Error(err error) Field {
	var v any
	if err != nil {
		v = err.Error()
	}
	return Field{Key: zerolog.ErrorFieldName, Value: v, add: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, v any) Field {
	return Field{Key: key, Value: v, add: func(e *zerolog.Event) { e.Interface(key, v) }}
}
