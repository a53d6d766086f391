package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/adapter/local"
	"github.com/Ning0612/nbsync/internal/core/collector"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/progress"
)

// AddRequest uploads local files without removing anything
type AddRequest struct {
	Target   library.Target
	Inputs   collector.Request
	Manifest string

	// NoDedupe uploads files even when the ledger shows them unchanged remotely
	NoDedupe   bool
	CopyToTemp bool
	Remote     RemoteOptions

	// Text or URL add one pasted source instead of files
	Text string
	URL  string
}

func (r AddRequest) sourceKinds() int {
	n := 0
	if len(r.Inputs.Files) > 0 || len(r.Inputs.Dirs) > 0 || r.Manifest != "" {
		n++
	}
	if strings.TrimSpace(r.Text) != "" {
		n++
	}
	if strings.TrimSpace(r.URL) != "" {
		n++
	}
	return n
}

// AddSources uploads files as new sources. A file is skipped when its
// recorded hash matches and its title is already present remotely.
func (s *SyncService) AddSources(ctx context.Context, req AddRequest) (*domain.Result, error) {
	if req.Text != "" || req.URL != "" {
		return s.insertSource(ctx, req)
	}

	started := s.now()
	res := s.begin(domain.OpAdd, req.Target)

	set, err := s.resolveLocal(ctx, res, req.Inputs, req.Manifest)
	if err != nil {
		return s.finish(res, req.Target, started, false, err)
	}
	if len(set.files) == 0 {
		if set.unreadable.Cardinality() > 0 {
			return s.finish(res, req.Target, started, false, nil)
		}
		return s.finish(res, req.Target, started, false, domain.Validationf("no files found to upload"))
	}

	if req.CopyToTemp {
		staging, err := local.NewStaging()
		if err != nil {
			return s.finish(res, req.Target, started, false, err)
		}
		defer staging.Close()

		res.TempUploadDir = staging.Root()
		if set.files, err = staging.Stage(ctx, set.files); err != nil {
			return s.finish(res, req.Target, started, false, err)
		}
	}

	target := req.Target.URL
	localFailures := len(res.Failures)
	first := true

	err = s.withRemote(ctx, res, req.Target, req.Remote, func(ctx context.Context, r adapter.Remote) error {
		res.Failures = res.Failures[:localFailures]
		res.SkippedUnchanged = nil

		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		res.RemoteCount = len(items)
		if first {
			res.BeforeCount = len(items)
			first = false
		}
		existing := mapset.NewThreadUnsafeSet(domain.ItemTitles(items)...)

		batch := make([]domain.FileDescriptor, 0, len(set.files))
		for _, f := range set.files {
			if !req.NoDedupe && existing.Contains(f.Title) {
				if hash, ok := s.ledger.Get(target, f.Title); ok && hash == f.ContentHash {
					res.SkippedUnchanged = append(res.SkippedUnchanged, f.Title)
					continue
				}
			}
			batch = append(batch, f)
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

		return s.recordFinal(ctx, r, res, req.Remote)
	})

	if len(res.UploadedTitles) > 0 {
		s.saveLedger(res)
	}
	return s.finish(res, req.Target, started, false, err)
}

// insertSource adds one pasted-text or website source. The remote picks the
// title, so success means any new title showed up.
func (s *SyncService) insertSource(ctx context.Context, req AddRequest) (*domain.Result, error) {
	started := s.now()
	res := s.begin(domain.OpAdd, req.Target)

	if req.sourceKinds() != 1 {
		return s.finish(res, req.Target, started, false,
			domain.Validationf("choose exactly one source type: files, text or url"))
	}

	label, content := "text", strings.TrimSpace(req.Text)
	if req.URL != "" {
		label, content = "url", strings.TrimSpace(req.URL)
		if u, err := url.Parse(content); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return s.finish(res, req.Target, started, false, domain.Validationf("invalid source URL: %s", req.URL))
		}
	}

	first := true
	err := s.withRemote(ctx, res, req.Target, req.Remote, func(ctx context.Context, r adapter.Remote) error {
		res.Failures = nil
		res.AddedSources = []string{}

		inserter, ok := r.(adapter.SourceInserter)
		if !ok {
			return fmt.Errorf("%w: remote cannot insert %s sources", domain.ErrValidation, label)
		}
		insert := inserter.InsertText
		if label == "url" {
			insert = inserter.InsertURL
		}

		var before []string
		err := s.retryItem(ctx, req.Remote, "list", func(ctx context.Context) error {
			items, err := r.ListItems(ctx)
			if err != nil {
				return err
			}
			before = domain.ItemTitles(items)
			return nil
		})
		if err != nil {
			return err
		}
		res.RemoteCount = len(before)
		if first {
			res.BeforeCount = len(before)
			first = false
		}

		sent := false
		err = s.retryItem(ctx, req.Remote, domain.OpInsert, func(ctx context.Context) error {
			if sent {
				items, err := r.ListItems(ctx)
				if err != nil {
					return err
				}
				if len(adapter.NewTitles(before, domain.ItemTitles(items))) > 0 {
					return nil
				}
			}
			sent = true
			return insert(ctx, content)
		})
		if err != nil {
			if !itemFailure(ctx, err) {
				return err
			}
			res.AddFailure(label, domain.OpInsert, err)
			return s.recordFinal(ctx, r, res, req.Remote)
		}

		added, err := adapter.WaitForAnyNewTitle(ctx, r, before, req.Remote.uploadWaiter())
		if err != nil {
			return err
		}
		if len(added) == 0 {
			res.AddFailure(label, domain.OpInsert, fmt.Errorf("%w: source did not appear after insert", domain.ErrTimeout))
		}
		res.AddedSources = append(res.AddedSources, added...)
		logger.Get().Info("source inserted", "kind", label, "titles", added)

		return s.recordFinal(ctx, r, res, req.Remote)
	})
	return s.finish(res, req.Target, started, false, err)
}

// DeleteRequest removes sources by title
type DeleteRequest struct {
	Target library.Target
	Title  string

	// Contains matches titles containing Title instead of equal to it.
	// Matching ignores case and surrounding space either way.
	Contains bool

	// AllMatches removes every match; otherwise more than one match is an error
	AllMatches bool
	DryRun     bool
	Remote     RemoteOptions
}

// DeleteSources removes the sources matching the request
func (s *SyncService) DeleteSources(ctx context.Context, req DeleteRequest) (*domain.Result, error) {
	started := s.now()
	res := s.begin(domain.OpDelete, req.Target)

	if strings.TrimSpace(req.Title) == "" {
		return s.finish(res, req.Target, started, req.DryRun, domain.Validationf("source title is required"))
	}

	target := req.Target.URL
	err := s.withRemote(ctx, res, req.Target, req.Remote, func(ctx context.Context, r adapter.Remote) error {
		res.Failures = nil

		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		res.BeforeCount = len(items)
		res.RemoteCount = len(items)
		if len(items) == 0 {
			return domain.Validationf("no sources found in notebook")
		}

		matched := MatchTitles(items, req.Title, req.Contains)
		switch {
		case len(matched) == 0:
			return domain.Validationf("no source matched: %s", req.Title)
		case len(matched) > 1 && !req.AllMatches:
			return domain.Validationf("matched %d sources (%s): re-run with --all-matches or use a more specific title",
				len(matched), strings.Join(matched, ", "))
		}
		if !req.AllMatches {
			matched = matched[:1]
		}
		res.Plan = &domain.Plan{ToAdd: []string{}, ToUpdate: []string{}, ToDelete: matched, Unchanged: []string{}}

		if req.DryRun {
			res.AfterCount = len(items)
			return nil
		}
		return s.removeMatched(ctx, r, res, req, matched)
	})

	if !req.DryRun && len(res.RemovedTitles) > 0 {
		s.ledger.Remove(target, res.RemovedTitles...)
		s.saveLedger(res)
	}
	return s.finish(res, req.Target, started, req.DryRun, err)
}

func (s *SyncService) removeMatched(ctx context.Context, r adapter.Remote, res *domain.Result, req DeleteRequest, matched []string) error {
	rep := s.getReporter()
	w := req.Remote.deleteWaiter()

	rep.SetTotal(progress.PhaseDelete, len(matched), 0)
	for _, title := range matched {
		rep.Start(progress.PhaseDelete, title, 0)
		removed := false
		err := s.retryItem(ctx, req.Remote, domain.OpRemove, func(ctx context.Context) error {
			items, err := r.ListItems(ctx)
			if err != nil {
				return err
			}
			count := adapter.CountTitle(items, title)
			if count == 0 {
				return nil
			}
			ok, err := r.Delete(ctx, title)
			if err != nil || !ok {
				return err
			}
			if err := adapter.WaitForTitleCountBelow(ctx, r, title, count, w); err != nil {
				return &domain.RemoteError{Op: domain.OpRemove, Title: title, Err: err}
			}
			removed = true
			return nil
		})
		if err != nil {
			rep.Error(title, err)
			if !itemFailure(ctx, err) {
				return err
			}
			res.AddFailure(title, domain.OpRemove, err)
			continue
		}
		rep.Complete(title)
		if removed {
			res.RemovedTitles = appendUnique(res.RemovedTitles, title)
			logger.Get().Debug("source removed", "run_id", res.RunID, "title", title)
		}
	}
	return s.recordFinal(ctx, r, res, req.Remote)
}

// ListRequest reads the sources of a notebook
type ListRequest struct {
	Target library.Target
	Remote RemoteOptions
}

// ListSources returns the notebook's sources. Listing is read-only and is
// not recorded in the history.
func (s *SyncService) ListSources(ctx context.Context, req ListRequest) (*domain.Result, error) {
	res := s.begin(domain.OpList, req.Target)

	err := s.withRemote(ctx, res, req.Target, req.Remote, func(ctx context.Context, r adapter.Remote) error {
		items, err := r.ListItems(ctx)
		if err != nil {
			return err
		}
		res.Sources = items
		res.RemoteCount = len(items)
		return nil
	})
	if err != nil {
		res.Status = domain.StatusFailed
		res.Error = err.Error()
		return res, err
	}
	if res.Sources == nil {
		res.Sources = []domain.RemoteItem{}
	}
	res.Status = domain.StatusSuccess
	return res, nil
}

// MatchTitles returns the titles of items matching query, in page order.
// Duplicated titles appear once per source.
func MatchTitles(items []domain.RemoteItem, query string, contains bool) []string {
	wanted := strings.ToLower(strings.TrimSpace(query))
	matched := []string{}
	for _, item := range items {
		current := strings.ToLower(strings.TrimSpace(item.Title))
		if (contains && strings.Contains(current, wanted)) || (!contains && current == wanted) {
			matched = append(matched, item.Title)
		}
	}
	return matched
}
