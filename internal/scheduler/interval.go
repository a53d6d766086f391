package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/nbsync/internal/logger"
)

// IntervalScheduler runs a Runner immediately and then on every tick.
// Runs never overlap; ticks that fire during a run are dropped.
type IntervalScheduler struct {
	config Config
	runner Runner
	now    func() time.Time

	mu      sync.RWMutex
	running bool
	stats   Status
}

// NewIntervalScheduler validates config and returns a scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if config.MaxRuns < 0 {
		return nil, fmt.Errorf("max runs must not be negative, got %d", config.MaxRuns)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	return &IntervalScheduler{config: config, runner: runner, now: time.Now}, nil
}

// Run blocks until ctx is cancelled or MaxRuns runs have finished.
// It returns the error of the last run, or nil when the loop was cancelled
// after a successful run.
func (s *IntervalScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var lastErr error
	for {
		lastErr = s.execute(ctx)

		if s.config.MaxRuns > 0 && s.Status().TotalRuns >= s.config.MaxRuns {
			return lastErr
		}

		select {
		case <-ctx.Done():
			logger.Get().Info("scheduler stopped", "runs", s.Status().TotalRuns)
			return lastErr
		case <-ticker.C:
		}
	}
}

func (s *IntervalScheduler) execute(ctx context.Context) error {
	start := s.now()
	s.mu.Lock()
	s.stats.LastRunTime = start
	s.stats.TotalRuns++
	s.stats.NextRunTime = start.Add(s.config.Interval)
	run := s.stats.TotalRuns
	s.mu.Unlock()

	err := s.runner.Run(ctx)

	s.mu.Lock()
	if err != nil {
		s.stats.FailedRuns++
		s.stats.LastError = err.Error()
	} else {
		s.stats.SuccessfulRuns++
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	log := logger.Get().With("run", run)
	if err != nil {
		log.Warn("scheduled run failed", "error", err, "next_run", start.Add(s.config.Interval))
	} else {
		log.Debug("scheduled run finished", "next_run", start.Add(s.config.Interval))
	}
	return err
}

// Status returns a snapshot of the counters
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.stats
	st.Running = s.running
	return &st
}
