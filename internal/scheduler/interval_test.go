package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/nbsync/internal/testutil"
)

// countingRunner records calls and fails when told to
type countingRunner struct {
	mu    sync.Mutex
	calls int
	fail  map[int]error
}

func (r *countingRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.fail[r.calls]
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestNewIntervalScheduler(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		runner  Runner
		wantErr bool
	}{
		{"valid", Config{Interval: time.Second}, &countingRunner{}, false},
		{"zero interval", Config{Interval: 0}, &countingRunner{}, true},
		{"negative max runs", Config{Interval: time.Second, MaxRuns: -1}, &countingRunner{}, true},
		{"nil runner", Config{Interval: time.Second}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIntervalScheduler(tt.config, tt.runner)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIntervalScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIntervalScheduler_MaxRuns(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: 5 * time.Millisecond, MaxRuns: 3}, runner)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if runner.count() != 3 {
		t.Errorf("runs = %d, want 3", runner.count())
	}

	st := s.Status()
	if st.Running {
		t.Error("scheduler still running after Run returned")
	}
	if st.TotalRuns != 3 || st.SuccessfulRuns != 3 || st.FailedRuns != 0 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestIntervalScheduler_RunsImmediately(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: time.Hour, MaxRuns: 1}, runner)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first run did not start immediately")
	}
}

func TestIntervalScheduler_CountsFailures(t *testing.T) {
	boom := errors.New("boom")
	runner := &countingRunner{fail: map[int]error{2: boom}}
	s, err := NewIntervalScheduler(Config{Interval: time.Millisecond, MaxRuns: 2}, runner)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want last run's error", err)
	}

	st := s.Status()
	if st.SuccessfulRuns != 1 || st.FailedRuns != 1 {
		t.Errorf("unexpected counters: %+v", st)
	}
	if st.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", st.LastError)
	}
}

func TestIntervalScheduler_StopsOnCancel(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: 5 * time.Millisecond}, runner)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	testutil.WaitForCondition(time.Second, func() bool { return runner.count() >= 2 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if runner.count() < 2 {
		t.Errorf("runs = %d, want at least 2", runner.count())
	}
}

func TestIntervalScheduler_RejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})

	s, err := NewIntervalScheduler(Config{Interval: time.Hour, MaxRuns: 1}, runner)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	<-started

	if !s.Status().Running {
		t.Error("Status().Running = false during a run")
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("second Run() should fail while the first is active")
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
