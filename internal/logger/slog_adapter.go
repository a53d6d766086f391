package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger is the slog backend. It owns the writers it opened; loggers
// derived through With share them but never close them.
type SlogLogger struct {
	sanitized
	writers []io.WriteCloser
}

// NewSlogLogger builds the handlers for every configured output.
// Console output is tinted when it is a terminal; files always get plain records.
func NewSlogLogger(config Config) (*SlogLogger, error) {
	sanitizer := NewSanitizer()
	opts := &slog.HandlerOptions{Level: convertLevel(config.Level)}

	var handlers []slog.Handler
	var closeableWriters []io.WriteCloser

	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStderr:
			w := output.Writer
			if w == nil {
				w = os.Stderr
			} else if wc, ok := w.(io.WriteCloser); ok && !isStdStream(wc) {
				closeableWriters = append(closeableWriters, wc)
			}
			handlers = append(handlers, consoleHandler(w, config, opts))
		case OutputFile:
			if !config.File.Enabled {
				continue
			}
			fileWriter, err := createFileWriter(config.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			closeableWriters = append(closeableWriters, fileWriter)
			handlers = append(handlers, plainHandler(fileWriter, config.Format, opts))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, consoleHandler(os.Stderr, config, opts))
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = fanoutHandler(handlers)
	}

	return &SlogLogger{
		sanitized: sanitized{logger: slog.New(handler), sanitizer: sanitizer},
		writers:   closeableWriters,
	}, nil
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr || w == os.Stdin
}

// consoleHandler uses tint for text output on a terminal
func consoleHandler(w io.Writer, config Config, opts *slog.HandlerOptions) slog.Handler {
	if config.Format == FormatText && !config.NoColor {
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			return tint.NewHandler(w, &tint.Options{
				Level:      opts.Level,
				TimeFormat: time.Kitchen,
			})
		}
	}
	return plainHandler(w, config.Format, opts)
}

func plainHandler(w io.Writer, format Format, opts *slog.HandlerOptions) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// fanoutHandler sends each record to every handler that accepts its level
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// createFileWriter opens a rotating log file under the data dir
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

var slogLevels = map[Level]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

func convertLevel(level Level) slog.Level {
	if l, ok := slogLevels[level]; ok {
		return l
	}
	return slog.LevelInfo
}

// sanitized masks every message and argument before it reaches slog
type sanitized struct {
	logger    *slog.Logger
	sanitizer *Sanitizer
}

func (s sanitized) log(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}
	s.logger.Log(ctx, level, s.sanitizer.Sanitize(msg), s.sanitizer.SanitizeArgs(args)...)
}

func (s sanitized) Debug(msg string, args ...any) { s.log(slog.LevelDebug, msg, args) }
func (s sanitized) Info(msg string, args ...any)  { s.log(slog.LevelInfo, msg, args) }
func (s sanitized) Warn(msg string, args ...any)  { s.log(slog.LevelWarn, msg, args) }
func (s sanitized) Error(msg string, args ...any) { s.log(slog.LevelError, msg, args) }

// With returns a derived logger that does not own any writer
func (s sanitized) With(args ...any) Logger {
	return sanitized{
		logger:    s.logger.With(s.sanitizer.SanitizeArgs(args)...),
		sanitizer: s.sanitizer,
	}
}

// Sync is a no-op; slog handlers write through and lumberjack flushes per write
func (s sanitized) Sync() error { return nil }

func (s sanitized) Shutdown() error { return nil }

// Shutdown closes the writers opened by NewSlogLogger
func (l *SlogLogger) Shutdown() error {
	var errs []error
	for _, w := range l.writers {
		errs = append(errs, w.Close())
	}
	l.writers = nil
	return errors.Join(errs...)
}
