package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level, format Format) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := NewSlogLogger(Config{
		Level:   level,
		Format:  format,
		Outputs: []OutputConfig{{Type: OutputStderr, Writer: buf}},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	t.Cleanup(func() { l.Shutdown() })
	return l, buf
}

func TestSlogLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		log     func(Logger)
		written bool
	}{
		{"debug at debug", LevelDebug, func(l Logger) { l.Debug("poll") }, true},
		{"debug at info", LevelInfo, func(l Logger) { l.Debug("poll") }, false},
		{"warn at error", LevelError, func(l Logger) { l.Warn("retrying") }, false},
		{"error at warn", LevelWarn, func(l Logger) { l.Error("upload failed") }, true},
		{"child follows parent level", LevelInfo, func(l Logger) { l.With("run_id", "r1").Debug("poll") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(t, tt.level, FormatText)
			tt.log(l)

			if got := buf.Len() > 0; got != tt.written {
				t.Errorf("written = %v, want %v (output %q)", got, tt.written, buf.String())
			}
		})
	}
}

func TestSlogLogger_TextAndJSON(t *testing.T) {
	text, tbuf := newBufferLogger(t, LevelInfo, FormatText)
	text.With("run_id", "r1").Info("sync finished", "uploaded", 3)
	for _, want := range []string{"sync finished", "run_id=r1", "uploaded=3"} {
		if !strings.Contains(tbuf.String(), want) {
			t.Errorf("text output missing %q: %s", want, tbuf.String())
		}
	}

	js, jbuf := newBufferLogger(t, LevelInfo, FormatJSON)
	js.Info("sync finished", "status", "partial")
	for _, want := range []string{`"msg":"sync finished"`, `"status":"partial"`} {
		if !strings.Contains(jbuf.String(), want) {
			t.Errorf("json output missing %q: %s", want, jbuf.String())
		}
	}
}

func TestSlogLogger_Sanitization(t *testing.T) {
	l, buf := newBufferLogger(t, LevelInfo, FormatText)

	l.Info("auth check at /home/alice/.config/nbsync/profiles/default", "cookie", "SAPISID=verysecretvalue")
	l.With("session_id", "abcdefghijkl").Warn("landing page redirected to login")

	out := buf.String()
	for _, leaked := range []string{"alice", "verysecretvalue", "abcdefghijkl"} {
		if strings.Contains(out, leaked) {
			t.Errorf("output leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "/home/***/.config/nbsync/profiles/default") {
		t.Errorf("path should be kept with the user masked: %s", out)
	}
}

func TestSlogLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "nbsync.log")

	l, err := NewSlogLogger(Config{
		Level:   LevelInfo,
		Format:  FormatText,
		File:    FileConfig{Enabled: true, Path: logPath, MaxSizeMB: 1, MaxAgeDays: 7, MaxBackups: 3},
		Outputs: []OutputConfig{{Type: OutputFile}},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}

	l.Info("ledger saved", "entries", 4)
	if err := l.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "ledger saved") {
		t.Errorf("log file missing message: %s", content)
	}
}

func TestSlogLogger_FileOutputRequiresPath(t *testing.T) {
	_, err := NewSlogLogger(Config{
		File:    FileConfig{Enabled: true},
		Outputs: []OutputConfig{{Type: OutputFile}},
	})
	if err == nil {
		t.Fatal("expected an error for an empty log path")
	}
}

func TestSlogLogger_DisabledFileFallsBackToStderr(t *testing.T) {
	l, err := NewSlogLogger(Config{Outputs: []OutputConfig{{Type: OutputFile}}})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	defer l.Shutdown()

	if len(l.writers) != 0 {
		t.Errorf("no writer should be owned, got %d", len(l.writers))
	}
}

func TestSlogLogger_MultipleOutputs(t *testing.T) {
	buf1, buf2 := &bytes.Buffer{}, &bytes.Buffer{}

	l, err := NewSlogLogger(Config{
		Level:  LevelInfo,
		Format: FormatText,
		Outputs: []OutputConfig{
			{Type: OutputStderr, Writer: buf1},
			{Type: OutputStderr, Writer: buf2},
		},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	defer l.Shutdown()

	l.Info("upload batch sent")

	for i, buf := range []*bytes.Buffer{buf1, buf2} {
		if !strings.Contains(buf.String(), "upload batch sent") {
			t.Errorf("buffer %d missing message", i+1)
		}
	}
}

func TestSlogLogger_ConsoleAndFile(t *testing.T) {
	buf := &bytes.Buffer{}
	logPath := filepath.Join(t.TempDir(), "logs", "nbsync.log")

	l, err := NewSlogLogger(Config{
		Level:  LevelDebug,
		Format: FormatJSON,
		File:   FileConfig{Enabled: true, Path: logPath, MaxSizeMB: 1},
		Outputs: []OutputConfig{
			{Type: OutputStderr, Writer: buf},
			{Type: OutputFile},
		},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}

	l.With("run_id", "r1").Debug("planned", "add", 2)
	l.Shutdown()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	for name, out := range map[string]string{"console": buf.String(), "file": string(content)} {
		if !strings.Contains(out, `"run_id":"r1"`) || !strings.Contains(out, `"msg":"planned"`) {
			t.Errorf("%s output missing record: %s", name, out)
		}
	}
}
