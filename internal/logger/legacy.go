package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LegacyLogger writes one "[LEVEL] msg key=value ..." line per record.
// It is the fallback when slog output misbehaves on a user's terminal.
type LegacyLogger struct {
	level     Level
	out       io.Writer
	mu        *sync.Mutex
	fields    []any
	sanitizer *Sanitizer
}

// NewLegacyLogger logs at the configured level to the first stderr output
func NewLegacyLogger(config Config) *LegacyLogger {
	var out io.Writer = os.Stderr
	for _, o := range config.Outputs {
		if o.Type == OutputStderr && o.Writer != nil {
			out = o.Writer
			break
		}
	}
	return &LegacyLogger{
		level:     config.Level,
		out:       out,
		mu:        &sync.Mutex{},
		sanitizer: NewSanitizer(),
	}
}

func (l *LegacyLogger) write(level Level, msg string, args []any) {
	if level < l.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(level.String()), l.sanitizer.Sanitize(msg))
	kv := l.sanitizer.SanitizeArgs(append(append([]any(nil), l.fields...), args...))
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fmt.Fprintf(&b, " %v", kv[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

// Debug 記錄 debug 級別日誌
func (l *LegacyLogger) Debug(msg string, args ...any) { l.write(LevelDebug, msg, args) }

// Info 記錄 info 級別日誌
func (l *LegacyLogger) Info(msg string, args ...any) { l.write(LevelInfo, msg, args) }

// Warn 記錄 warn 級別日誌
func (l *LegacyLogger) Warn(msg string, args ...any) { l.write(LevelWarn, msg, args) }

// Error 記錄 error 級別日誌
func (l *LegacyLogger) Error(msg string, args ...any) { l.write(LevelError, msg, args) }

// With returns a logger that prefixes args to every record
func (l *LegacyLogger) With(args ...any) Logger {
	child := *l
	child.fields = append(append([]any(nil), l.fields...), args...)
	return &child
}

func (l *LegacyLogger) Sync() error     { return nil }
func (l *LegacyLogger) Shutdown() error { return nil }
