// Package logging provides leveled console logging with an optional JSON
// file sink. Console lines keep the "timestamp [LEVEL] message" layout;
// the file receives one JSON object per event so runs can be post-processed.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/term"
)

const (
	levelField    = "level"
	successLevel  = "success"
	requestIDKey  = "request_id"
	inputKey      = "input"
	consoleLayout = "2006-01-02 15:04:05"
)

// Logger wraps a zerolog.Logger with the printf-style API used across the
// CLI. Child loggers created by With share the parent's sinks.
type Logger struct {
	z    zerolog.Logger
	file *lockedFile // nil when no log file is configured; shared by children
}

// NewLogger configures colors from cfg, builds the console writer and opens
// cfg.LogFile when set. Call Close when done if LogFile was set.
func NewLogger(cfg *config.Config) (*Logger, error) {
	color := term.Configure(cfg.ColorMode)
	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	if color {
		stdout, stderr = colorable.NewColorableStdout(), colorable.NewColorableStderr()
	}
	return newLogger(cfg, stdout, stderr, color)
}

func newLogger(cfg *config.Config, stdout, stderr io.Writer, color bool) (*Logger, error) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
		}
		level = parsed
	}

	var writers []io.Writer
	writers = append(writers, &splitWriter{
		out: consoleWriter(stdout, color),
		err: consoleWriter(stderr, color),
	})

	l := &Logger{}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = &lockedFile{f: f}
		writers = append(writers, l.file)
	}

	l.z = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return l, nil
}

// Nop returns a logger that discards everything. Used by tests and library
// callers that do not want output.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func consoleWriter(out io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !color,
		TimeFormat: consoleLayout,
		// Request-scoped fields are for the JSON file; console lines stay short.
		FieldsExclude: []string{requestIDKey, inputKey},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return levelTag(s)
		},
	}
}

// levelTag renders "[LEVEL]" with the color used by the CLI for that level.
func levelTag(level string) string {
	c := ""
	switch level {
	case "info":
		c = term.Blue
	case successLevel:
		c = term.Green
	case "warn":
		c = term.Yellow
	case "error", "fatal", "panic":
		c = term.Red
	case "debug", "trace":
		c = term.Cyan
	}
	tag := "[" + strings.ToUpper(level) + "]"
	if c == "" {
		return tag
	}
	return c + tag + term.NC
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// With returns a child logger that carries key=value on every event.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger(), file: l.file}
}

// WithRequestID tags every event with the request identifier.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(requestIDKey, id)
}

// WithInput tags every event with the input path.
func (l *Logger) WithInput(path string) *Logger {
	return l.With(inputKey, path)
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.z.Info().Msgf(format, args...)
}

// Success logs at INFO priority with a SUCCESS tag.
func (l *Logger) Success(format string, args ...interface{}) {
	if l.z.GetLevel() > zerolog.InfoLevel {
		return
	}
	l.z.Log().Str(levelField, successLevel).Msgf(format, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.z.Warn().Msgf(format, args...)
}

// Error logs at ERROR level, to stderr on the console.
func (l *Logger) Error(format string, args ...interface{}) {
	l.z.Error().Msgf(format, args...)
}

// Debug logs at DEBUG level; dropped unless the level is debug or lower.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.z.Debug().Msgf(format, args...)
}

// splitWriter sends error-and-above events to err and the rest to out.
type splitWriter struct {
	out, err io.Writer
}

func (w *splitWriter) Write(p []byte) (int, error) { return w.out.Write(p) }

func (w *splitWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= zerolog.ErrorLevel && level < zerolog.NoLevel {
		return w.err.Write(p)
	}
	return w.out.Write(p)
}

// lockedFile serializes writes from concurrent requests and tolerates
// writes after Close.
type lockedFile struct {
	mu sync.Mutex
	f  *os.File
}

func (w *lockedFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return len(p), nil
	}
	return w.f.Write(p)
}

func (w *lockedFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

type ctxKey struct{}

// ContextWithRequestID stores the request identifier in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestIDFromContext returns the request identifier stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
