package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/core/checksum"
	"github.com/Ning0612/nbsync/internal/core/collector"
	"github.com/Ning0612/nbsync/internal/core/planner"
	"github.com/Ning0612/nbsync/internal/core/retry"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/progress"
	"github.com/Ning0612/nbsync/internal/state"
)

// Locker serializes commands that drive the same browser profile
type Locker interface {
	Acquire(op, notebook string) error
	Release() error
}

// Deps are the collaborators of a SyncService. Opener and Ledger are
// required; the rest are optional.
type Deps struct {
	Opener  adapter.Opener
	Ledger  *state.Ledger
	History *state.Manager
	Library *library.Library
	Lock    Locker

	// ArtifactsDir receives screenshots and HTML of failed attempts
	ArtifactsDir string
}

// RemoteOptions bound the work done against the remote notebook
type RemoteOptions struct {
	// Retries is the number of extra attempts after the first
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration

	// UploadTimeout bounds the wait for uploaded titles to appear
	UploadTimeout time.Duration
	PollInterval  time.Duration

	DeleteTimeout      time.Duration
	DeletePollInterval time.Duration
}

// DefaultRemoteOptions returns the budgets used when flags are not given
func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		Retries:            2,
		Backoff:            1500 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		UploadTimeout:      adapter.UploadWaitTimeout,
		PollInterval:       adapter.UploadPollInterval,
		DeleteTimeout:      adapter.DeleteWaitTimeout,
		DeletePollInterval: adapter.DeletePollInterval,
	}
}

func (o RemoteOptions) policy() retry.Policy {
	p := retry.DefaultPolicy(o.Retries + 1)
	if o.Backoff > 0 {
		p.InitialInterval = o.Backoff
	}
	if o.MaxBackoff > 0 {
		p.MaxInterval = o.MaxBackoff
	}
	return p
}

func (o RemoteOptions) uploadWaiter() adapter.Waiter {
	w := adapter.Waiter{Interval: o.PollInterval, Timeout: o.UploadTimeout}
	if w.Timeout <= 0 {
		w.Timeout = adapter.UploadWaitTimeout
	}
	return w
}

func (o RemoteOptions) deleteWaiter() adapter.Waiter {
	w := adapter.Waiter{Interval: o.DeletePollInterval, Timeout: o.DeleteTimeout}
	if w.Timeout <= 0 {
		w.Timeout = adapter.DeleteWaitTimeout
	}
	return w
}

// SyncService orchestrates collect, plan, apply and record for one notebook
type SyncService struct {
	opener       adapter.Opener
	ledger       *state.Ledger
	history      *state.Manager
	library      *library.Library
	lock         Locker
	artifactsDir string

	collector     *collector.Collector
	fingerprinter *checksum.Fingerprinter
	planner       planner.Planner
	reporter      progress.Reporter

	now      func() time.Time
	newRunID func() string
}

// NewSyncService creates a new sync service
func NewSyncService(deps Deps) (*SyncService, error) {
	if deps.Opener == nil {
		return nil, fmt.Errorf("remote opener cannot be nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}

	return &SyncService{
		opener:        deps.Opener,
		ledger:        deps.Ledger,
		history:       deps.History,
		library:       deps.Library,
		lock:          deps.Lock,
		artifactsDir:  deps.ArtifactsDir,
		collector:     collector.New(),
		fingerprinter: checksum.NewFingerprinter(nil),
		planner:       planner.NewDefaultPlanner(),
		now:           time.Now,
		newRunID:      uuid.NewString,
	}, nil
}

// SetProgressReporter sets the progress reporter for apply steps
func (s *SyncService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// getReporter returns the current progress reporter or a null reporter
func (s *SyncService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// Close releases the history database
func (s *SyncService) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// begin fills the identifying fields of a fresh result
func (s *SyncService) begin(op string, target library.Target) *domain.Result {
	res := domain.NewResult(op)
	res.RunID = s.newRunID()
	res.NotebookURL = target.URL
	res.NotebookID = target.ID
	return res
}

// withRemote runs fn against a freshly opened remote under the retry policy.
// Every attempt opens its own session so a crashed page does not leak into
// the next try. Failed attempts leave debug artifacts behind when the remote
// supports it.
func (s *SyncService) withRemote(ctx context.Context, res *domain.Result, target library.Target, opts RemoteOptions, fn func(ctx context.Context, r adapter.Remote) error) error {
	if s.lock != nil {
		if err := s.lock.Acquire(res.Operation, target.URL); err != nil {
			return err
		}
		defer func() {
			if err := s.lock.Release(); err != nil {
				logger.Get().Warn("failed to release profile lock", "error", err)
			}
		}()
	}

	var current adapter.Remote
	closeCurrent := func() {
		if current == nil {
			return
		}
		if err := current.Close(); err != nil {
			logger.Get().Debug("failed to close remote", "error", err)
		}
		current = nil
	}
	defer closeCurrent()

	policy := opts.policy()
	policy.OnFailure = func(ctx context.Context, attempt int, err error) {
		if current != nil {
			s.captureArtifacts(ctx, res, current, attempt, err)
		}
		closeCurrent()
	}

	attempts, errs, err := policy.Do(ctx, res.Operation, func(ctx context.Context) error {
		remote, err := s.opener.Open(ctx, target.URL)
		if err != nil {
			return err
		}
		current = remote

		if err := fn(ctx, remote); err != nil {
			return err
		}
		closeCurrent()
		return nil
	})

	res.Attempts = attempts
	previous := errs
	if err != nil && len(previous) > 0 {
		previous = previous[:len(previous)-1]
	}
	for _, e := range previous {
		res.PreviousErrors = append(res.PreviousErrors, e.Error())
	}
	return err
}

// retryItem runs one collaborator call (a removal, an upload, a listing
// after planning) under the retry policy. Timed-out waits are not repeated:
// the wait already spent its budget.
func (s *SyncService) retryItem(ctx context.Context, opts RemoteOptions, op string, fn func(ctx context.Context) error) error {
	p := opts.policy()
	p.Retryable = func(err error) bool {
		return !errors.Is(err, domain.ErrTimeout) && domain.IsRetryable(err)
	}
	_, _, err := p.Do(ctx, op, fn)
	return err
}

// itemFailure reports whether err belongs to a single plan item. Auth
// loss, cancellation and fail-fast aborts end the whole attempt instead.
func itemFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrRemoteAuth) &&
		!errors.Is(err, domain.ErrValidation) &&
		!errors.Is(err, domain.ErrAborted)
}

func (s *SyncService) captureArtifacts(ctx context.Context, res *domain.Result, r adapter.Remote, attempt int, cause error) {
	capturer, ok := r.(adapter.ArtifactCapturer)
	if !ok || s.artifactsDir == "" {
		return
	}
	// The attempt context may already be cancelled; give the dump its own budget
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	art, err := capturer.CaptureArtifacts(captureCtx, s.artifactsDir, adapter.ArtifactName(s.now(), res.Operation, attempt))
	art.Attempt = attempt
	art.Error = cause.Error()
	if err != nil {
		logger.Get().Warn("failed to capture artifacts", "attempt", attempt, "error", err)
	}
	res.Artifacts = append(res.Artifacts, art)
}

// finish sets the final status, records history and returns err unchanged
func (s *SyncService) finish(res *domain.Result, target library.Target, started time.Time, dryRun bool, err error) (*domain.Result, error) {
	switch {
	case err != nil:
		res.Status = domain.StatusFailed
		res.Error = err.Error()
	case dryRun:
		res.Status = domain.StatusDryRun
	case len(res.Failures) > 0:
		res.Status = domain.StatusPartial
	default:
		res.Status = domain.StatusSuccess
	}

	if !dryRun && !errors.Is(err, domain.ErrValidation) {
		s.recordHistory(res, target, started)
		s.touchLibrary(target)
	}

	log := logger.Get().With("run_id", res.RunID, "op", res.Operation, "status", res.Status)
	if err != nil {
		log.Error("command failed", "notebook", target.URL, "attempts", res.Attempts, "error", err)
	} else {
		log.Info("command finished",
			"notebook", target.URL,
			"uploaded", len(res.UploadedTitles),
			"removed", len(res.RemovedTitles),
			"failures", len(res.Failures),
		)
	}
	return res, err
}

func (s *SyncService) recordHistory(res *domain.Result, target library.Target, started time.Time) {
	if s.history == nil {
		return
	}
	rec := state.ExecutionRecord{
		RunID:     res.RunID,
		Target:    target.URL,
		Operation: res.Operation,
		StartTime: started,
		EndTime:   s.now(),
		Status:    res.Status,
		Uploaded:  len(res.UploadedTitles),
		Removed:   len(res.RemovedTitles),
		Failures:  len(res.Failures),
		Error:     res.Error,
	}
	if err := s.history.SaveExecution(rec); err != nil {
		logger.Get().Warn("failed to save execution history", "run_id", res.RunID, "error", err)
	}
}

func (s *SyncService) touchLibrary(target library.Target) {
	if s.library == nil || target.ID == "" {
		return
	}
	s.library.RecordUse(target.ID)
	if err := s.library.Save(); err != nil {
		logger.Get().Warn("failed to save library", "error", err)
	}
}

func (s *SyncService) saveLedger(res *domain.Result) {
	if err := s.ledger.Save(); err != nil {
		logger.Get().Error("failed to save ledger", "path", s.ledger.Path(), "error", err)
		res.AddFailure("", "ledger", err)
	}
}
