// Package scheduler repeats a run at a fixed interval.
package scheduler

import (
	"context"
	"time"
)

// Runner executes one scheduled run
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Status is a snapshot of the scheduler counters
type Status struct {
	Running        bool      `json:"running"`
	LastRunTime    time.Time `json:"lastRunTime"`
	NextRunTime    time.Time `json:"nextRunTime"`
	TotalRuns      int       `json:"totalRuns"`
	SuccessfulRuns int       `json:"successfulRuns"`
	FailedRuns     int       `json:"failedRuns"`
	LastError      string    `json:"lastError,omitempty"`
}

// Config controls the interval loop
type Config struct {
	// Interval is the time between the starts of two runs
	Interval time.Duration

	// MaxRuns stops the loop after that many runs; zero means until cancelled
	MaxRuns int
}
