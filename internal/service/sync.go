package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/adapter/local"
	"github.com/Ning0612/nbsync/internal/core/checksum"
	"github.com/Ning0612/nbsync/internal/core/collector"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/progress"
)

// maxTitleDeletes caps how many same-titled sources one removal clears
const maxTitleDeletes = 40

// SyncRequest describes one reconciliation run
type SyncRequest struct {
	Target library.Target

	// Inputs are the explicit files, directories and filters
	Inputs collector.Request

	// Manifest is an optional file listing more paths
	Manifest string

	Plan       domain.PlanOptions
	DryRun     bool
	CopyToTemp bool

	// FailFast stops the run at the first removal or upload that does not
	// complete; the run is then reported failed and not retried
	FailFast bool

	Remote RemoteOptions
}

// localSet is the fingerprinted desired state
type localSet struct {
	files []domain.FileDescriptor

	// unreadable holds titles whose file could not be hashed; they are never
	// deleted remotely in this run
	unreadable mapset.Set[string]
}

func (l localSet) byTitle() map[string]domain.FileDescriptor {
	out := make(map[string]domain.FileDescriptor, len(l.files))
	for _, f := range l.files {
		out[f.Title] = f
	}
	return out
}

// Sync makes the notebook's sources match the local set. Removals run
// first, then a single batch upload, then the remote is re-read to confirm
// what actually appeared.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*domain.Result, error) {
	started := s.now()
	res := s.begin(domain.OpSync, req.Target)

	set, err := s.resolveLocal(ctx, res, req.Inputs, req.Manifest)
	if err != nil {
		return s.finish(res, req.Target, started, req.DryRun, err)
	}
	if len(set.files) == 0 && set.unreadable.Cardinality() == 0 && !req.Plan.DeleteMissing {
		err := domain.Validationf("no local files resolved for sync: provide --file, --dir or --manifest, or use --delete-missing")
		return s.finish(res, req.Target, started, req.DryRun, err)
	}

	logger.Get().Info("sync started",
		"run_id", res.RunID,
		"notebook", req.Target.URL,
		"local", len(set.files),
		"filtered_out", len(res.FilteredOut),
		"dry_run", req.DryRun,
	)

	if req.CopyToTemp && !req.DryRun && len(set.files) > 0 {
		staging, err := local.NewStaging()
		if err != nil {
			return s.finish(res, req.Target, started, req.DryRun, err)
		}
		defer staging.Close()

		res.TempUploadDir = staging.Root()
		if set.files, err = staging.Stage(ctx, set.files); err != nil {
			return s.finish(res, req.Target, started, req.DryRun, err)
		}
	}

	localFailures := len(res.Failures)
	first := true

	err = s.withRemote(ctx, res, req.Target, req.Remote, func(ctx context.Context, r adapter.Remote) error {
		res.Failures = res.Failures[:localFailures]

		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		res.RemoteCount = len(items)
		if first {
			res.BeforeCount = len(items)
			first = false
		}

		plan, err := s.planner.Plan(set.files, items, s.ledger.Hashes(req.Target.URL), req.Plan)
		if err != nil {
			return err
		}
		plan.ToDelete = withoutTitles(plan.ToDelete, set.unreadable)
		res.Plan = &plan

		logger.Get().Info("sync plan created",
			"run_id", res.RunID,
			"add", len(plan.ToAdd),
			"update", len(plan.ToUpdate),
			"delete", len(plan.ToDelete),
			"unchanged", len(plan.Unchanged),
		)

		if req.DryRun {
			res.AfterCount = len(items)
			res.FinalSources = domain.ItemTitles(items)
			return nil
		}
		return s.apply(ctx, r, res, req, plan, set)
	})
	if err != nil {
		s.saveLedger(res)
		return s.finish(res, req.Target, started, req.DryRun, err)
	}

	if !req.DryRun {
		s.recordSyncLedger(res, req, set)
	}
	return s.finish(res, req.Target, started, req.DryRun, nil)
}

// apply executes a plan against an open remote. Each removal and the upload
// batch are retried in place; what still fails becomes a per-item failure.
// Auth loss and cancellation abort the attempt.
func (s *SyncService) apply(ctx context.Context, r adapter.Remote, res *domain.Result, req SyncRequest, plan domain.Plan, set localSet) error {
	rep := s.getReporter()
	target := req.Target.URL
	deletions := mapset.NewThreadUnsafeSet(plan.ToDelete...)
	blocked := mapset.NewThreadUnsafeSet[string]()

	removals := plan.Removals()
	rep.SetTotal(progress.PhaseDelete, len(removals), 0)
	for _, title := range removals {
		rep.Start(progress.PhaseDelete, title, 0)
		n := 0
		err := s.retryItem(ctx, req.Remote, domain.OpRemove, func(ctx context.Context) error {
			removed, err := removeAllExact(ctx, r, title, req.Remote.deleteWaiter())
			n += removed
			return err
		})
		if err != nil {
			rep.Error(title, err)
			if !itemFailure(ctx, err) {
				return err
			}
			res.AddFailure(title, domain.OpRemove, err)
			if req.FailFast {
				return fmt.Errorf("%w: remove %q: %v", domain.ErrAborted, title, err)
			}
			blocked.Add(title)
			continue
		}
		rep.Complete(title)

		if n > 0 {
			res.RemovedTitles = appendUnique(res.RemovedTitles, title)
		}
		if deletions.Contains(title) {
			s.ledger.Remove(target, title)
		}
	}

	byTitle := set.byTitle()
	batch := make([]domain.FileDescriptor, 0, len(plan.ToAdd)+len(plan.ToUpdate))
	for _, title := range plan.Uploads() {
		if blocked.Contains(title) {
			// Re-uploading next to a copy that would not delete makes a duplicate
			continue
		}
		batch = append(batch, byTitle[title])
	}

	appeared, err := s.uploadBatch(ctx, r, res, req.Remote, batch)
	if err != nil {
		return err
	}
	for _, f := range batch {
		if appeared.Contains(f.Title) {
			res.UploadedTitles = appendUnique(res.UploadedTitles, f.Title)
			s.ledger.Put(target, f)
		}
	}
	if req.FailFast && appeared.Cardinality() < len(batch) {
		return fmt.Errorf("%w: %d upload(s) did not appear", domain.ErrAborted, len(batch)-appeared.Cardinality())
	}
	return s.recordFinal(ctx, r, res, req.Remote)
}

// recordFinal lists the notebook once more for the result's after-state
func (s *SyncService) recordFinal(ctx context.Context, r adapter.Remote, res *domain.Result, opts RemoteOptions) error {
	return s.retryItem(ctx, opts, "list", func(ctx context.Context) error {
		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		res.AfterCount = len(items)
		res.FinalSources = domain.ItemTitles(items)
		return nil
	})
}

// uploadBatch hands files to the remote in one go and waits for them to
// appear. It returns the titles observed; missing ones are recorded as
// failures on res, with the upload error when the batch could not be sent.
func (s *SyncService) uploadBatch(ctx context.Context, r adapter.Remote, res *domain.Result, opts RemoteOptions, batch []domain.FileDescriptor) (mapset.Set[string], error) {
	appeared := mapset.NewThreadUnsafeSet[string]()
	if len(batch) == 0 {
		return appeared, nil
	}
	rep := s.getReporter()

	var before []string
	err := s.retryItem(ctx, opts, "list", func(ctx context.Context) error {
		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		before = domain.ItemTitles(items)
		return nil
	})
	if err != nil {
		return appeared, err
	}

	var total int64
	expected := make([]string, 0, len(batch))
	for _, f := range batch {
		total += f.SizeBytes
		expected = append(expected, f.Title)
	}

	rep.SetTotal(progress.PhaseUpload, len(batch), total)
	for _, f := range batch {
		rep.Start(progress.PhaseUpload, f.Title, f.SizeBytes)
	}

	sent := false
	cause := s.retryItem(ctx, opts, domain.OpUpload, func(ctx context.Context) error {
		pending := batch
		if sent {
			// An interrupted batch may have landed in part; send only the rest
			items, err := r.ListItems(ctx)
			if err != nil {
				return err
			}
			pending = notAdded(batch, adapter.NewTitles(before, domain.ItemTitles(items)))
		}
		sent = true
		if len(pending) == 0 {
			return nil
		}
		return r.Upload(ctx, uploadPaths(pending))
	})

	var added []string
	switch {
	case cause == nil:
		rep.SetTotal(progress.PhaseWait, len(batch), 0)
		added, err = adapter.WaitForNewTitles(ctx, r, before, expected, opts.uploadWaiter())
		if err != nil {
			if !itemFailure(ctx, err) {
				return appeared, err
			}
			cause = err
		}
	case !itemFailure(ctx, cause):
		return appeared, cause
	default:
		if items, err := r.ListItems(ctx); err == nil {
			added = adapter.NewTitles(before, domain.ItemTitles(items))
		}
	}
	res.AddedSources = append(res.AddedSources, added...)

	if cause == nil {
		cause = fmt.Errorf("%w: source did not appear after upload", domain.ErrTimeout)
	}
	got := mapset.NewThreadUnsafeSet(added...)
	for _, title := range expected {
		if got.Contains(title) {
			appeared.Add(title)
			rep.Complete(title)
			continue
		}
		rep.Error(title, cause)
		res.AddFailure(title, domain.OpUpload, cause)
	}
	return appeared, nil
}

func uploadPaths(files []domain.FileDescriptor) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.UploadPath)
	}
	return paths
}

// notAdded drops one file per title in added (multiset difference)
func notAdded(files []domain.FileDescriptor, added []string) []domain.FileDescriptor {
	budget := make(map[string]int, len(added))
	for _, title := range added {
		budget[title]++
	}
	out := make([]domain.FileDescriptor, 0, len(files))
	for _, f := range files {
		if budget[f.Title] > 0 {
			budget[f.Title]--
			continue
		}
		out = append(out, f)
	}
	return out
}

// recordSyncLedger stores the hashes of the desired set after a run.
// With DeleteMissing the ledger forgets titles outside the desired set.
func (s *SyncService) recordSyncLedger(res *domain.Result, req SyncRequest, set localSet) {
	target := req.Target.URL
	failed := mapset.NewThreadUnsafeSet[string]()
	for _, f := range res.Failures {
		failed.Add(f.Title)
	}
	present := mapset.NewThreadUnsafeSet(res.FinalSources...)

	desired := mapset.NewThreadUnsafeSet[string]()
	for _, f := range set.files {
		desired.Add(f.Title)
		if failed.Contains(f.Title) || !present.Contains(f.Title) {
			continue
		}
		s.ledger.Put(target, f)
	}

	if req.Plan.DeleteMissing {
		for _, title := range s.ledger.List(target) {
			if !desired.Contains(title) && !set.unreadable.Contains(title) {
				s.ledger.Remove(target, title)
			}
		}
	}
	s.saveLedger(res)
}

// resolveLocal collects and fingerprints the desired set. Files that vanish
// between collection and hashing are per-file failures.
func (s *SyncService) resolveLocal(ctx context.Context, res *domain.Result, in collector.Request, manifest string) (localSet, error) {
	set := localSet{unreadable: mapset.NewThreadUnsafeSet[string]()}

	if manifest != "" {
		paths, err := collector.ReadManifest(manifest)
		if err != nil {
			return set, err
		}
		in.Files = append(append([]string{}, in.Files...), paths...)
	}

	col, err := s.collector.Collect(in)
	if err != nil {
		return set, err
	}
	res.FilteredOut = append(res.FilteredOut, col.FilteredOut...)

	for _, path := range col.Files {
		desc, err := s.fingerprinter.Describe(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return set, ctx.Err()
			}
			if !errors.Is(err, domain.ErrIO) {
				return set, err
			}
			title := filepath.Base(path)
			logger.Get().Warn("file unreadable, skipping", "path", path, "error", err)
			res.AddFailure(title, "fingerprint", err)
			set.unreadable.Add(title)
			continue
		}
		set.files = append(set.files, desc)
	}

	if err := checksum.EnsureUniqueTitles(set.files); err != nil {
		return set, err
	}
	res.LocalCount = len(set.files)
	return set, nil
}

// removeAllExact deletes every source titled exactly title, waiting for the
// count to drop after each click. It returns how many were removed.
func removeAllExact(ctx context.Context, r adapter.Remote, title string, w adapter.Waiter) (int, error) {
	removed := 0
	for removed < maxTitleDeletes {
		items, err := r.ListItems(ctx)
		if err != nil {
			return removed, err
		}
		count := adapter.CountTitle(items, title)
		if count == 0 {
			return removed, nil
		}

		ok, err := r.Delete(ctx, title)
		if err != nil {
			return removed, err
		}
		if !ok {
			return removed, nil
		}
		if err := adapter.WaitForTitleCountBelow(ctx, r, title, count, w); err != nil {
			return removed, &domain.RemoteError{Op: domain.OpRemove, Title: title, Err: err}
		}
		removed++
	}
	return removed, nil
}

func withoutTitles(titles []string, drop mapset.Set[string]) []string {
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if !drop.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

func appendUnique(list []string, title string) []string {
	for _, t := range list {
		if t == title {
			return list
		}
	}
	return append(list, title)
}
