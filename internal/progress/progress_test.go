package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T) (*CallbackReporter, func() []Update) {
	t.Helper()
	var mu sync.Mutex
	var updates []Update
	r := NewCallbackReporter(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	return r, func() []Update {
		mu.Lock()
		defer mu.Unlock()
		return append([]Update(nil), updates...)
	}
}

// TestCallbackReporter_Phase tests phase totals and counter reset
func TestCallbackReporter_Phase(t *testing.T) {
	r, updates := collect(t)

	r.SetTotal(PhaseDelete, 2, 0)
	r.Start(PhaseDelete, "a.md", 0)
	r.Complete("a.md")
	r.SetTotal(PhaseUpload, 3, 3000)

	got := updates()
	last := got[len(got)-1]
	if last.Type != UpdatePhase || last.Phase != PhaseUpload {
		t.Fatalf("unexpected last update %+v", last)
	}
	if last.ItemsTotal != 3 || last.BytesTotal != 3000 {
		t.Errorf("totals not set: %+v", last)
	}
	if last.ItemsCompleted != 0 {
		t.Errorf("counters should reset per phase, got %d", last.ItemsCompleted)
	}
}

// TestCallbackReporter_Complete tests byte and item accounting
func TestCallbackReporter_Complete(t *testing.T) {
	r, updates := collect(t)

	r.SetTotal(PhaseUpload, 2, 300)
	r.Start(PhaseUpload, "a.md", 100)
	r.Complete("a.md")
	r.Start(PhaseUpload, "b.md", 200)
	r.Complete("b.md")

	got := updates()
	last := got[len(got)-1]
	if last.Type != UpdateComplete || last.Title != "b.md" {
		t.Fatalf("unexpected last update %+v", last)
	}
	if last.ItemsCompleted != 2 || last.BytesCompleted != 300 {
		t.Errorf("expected 2 items / 300 bytes, got %d / %d", last.ItemsCompleted, last.BytesCompleted)
	}
}

// TestCallbackReporter_Error tests error propagation
func TestCallbackReporter_Error(t *testing.T) {
	r, updates := collect(t)
	boom := errors.New("boom")

	r.SetTotal(PhaseDelete, 1, 0)
	r.Error("gone.md", boom)

	got := updates()
	last := got[len(got)-1]
	if last.Type != UpdateError || last.Title != "gone.md" || !errors.Is(last.Error, boom) {
		t.Errorf("unexpected update %+v", last)
	}
}

// TestCallbackReporter_Concurrent tests thread safety
func TestCallbackReporter_Concurrent(t *testing.T) {
	r, updates := collect(t)
	r.SetTotal(PhaseUpload, 50, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Start(PhaseUpload, "x.md", 1)
			r.Complete("x.md")
		}()
	}
	wg.Wait()

	got := updates()
	max := 0
	for _, u := range got {
		if u.ItemsCompleted > max {
			max = u.ItemsCompleted
		}
	}
	if max != 50 {
		t.Errorf("expected 50 completions, got %d", max)
	}
}

// Callbacks run outside the lock, so re-entering the reporter must not block
func TestCallbackReporter_ReentrantCallback(t *testing.T) {
	done := make(chan struct{})

	var r *CallbackReporter
	r = NewCallbackReporter(func(u Update) {
		if u.Type == UpdateStart {
			r.Complete(u.Title)
		}
	})

	go func() {
		r.SetTotal(PhaseWait, 1, 0)
		r.Start(PhaseWait, "a.md", 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock: callback invoked while holding lock")
	}
}

func TestWriterReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterReporter(&buf)

	r.SetTotal(PhaseUpload, 1, 2048)
	r.Start(PhaseUpload, "notes.md", 2048)
	r.Complete("notes.md")
	r.SetTotal(PhaseDelete, 0, 0)

	out := buf.String()
	for _, want := range []string{
		"[upload 0/1] 1 item(s), 2.0 KiB",
		"[upload 0/1] notes.md ...",
		"[upload 1/1] notes.md done",
		"100.0%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[delete") {
		t.Error("empty phases should print nothing")
	}
}

func TestForTerminal_NotATerminal(t *testing.T) {
	if _, ok := ForTerminal(nil).(NullReporter); !ok {
		t.Error("nil file should give NullReporter")
	}
}

// TestFormatBytes tests byte formatting
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{-1, "0 B"},
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
	}

	for _, tt := range tests {
		got := FormatBytes(tt.bytes)
		if got != tt.expected {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.bytes, got, tt.expected)
		}
	}
}

// TestFormatProgress tests progress bar generation
func TestFormatProgress(t *testing.T) {
	tests := []struct {
		current  int64
		total    int64
		width    int
		contains string
	}{
		{0, 100, 20, "[>"},
		{50, 100, 20, "50.0%"},
		{100, 100, 20, "100.0%"},
		{0, 0, 20, ""},
	}

	for _, tt := range tests {
		got := FormatProgress(tt.current, tt.total, tt.width)
		if tt.contains == "" && got != "" {
			t.Errorf("FormatProgress with zero total = %q, want empty", got)
		}
		if !strings.Contains(got, tt.contains) {
			t.Errorf("FormatProgress(%d, %d, %d) = %s, should contain '%s'",
				tt.current, tt.total, tt.width, got, tt.contains)
		}
	}
}

// TestNullReporter tests that NullReporter doesn't panic
func TestNullReporter(t *testing.T) {
	var nr NullReporter
	nr.SetTotal(PhaseUpload, 10, 1000)
	nr.Start(PhaseUpload, "test.txt", 100)
	nr.Complete("test.txt")
	nr.Error("test.txt", errors.New("x"))
}
