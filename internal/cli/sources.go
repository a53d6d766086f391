package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/core/collector"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/scheduler"
	"github.com/Ning0612/nbsync/internal/service"
)

// targetFlags select the notebook of a remote command
type targetFlags struct {
	url string
	id  string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "notebook-url", "", "notebook URL (default: active library notebook)")
	cmd.Flags().StringVar(&f.id, "notebook-id", "", "library notebook id")
}

// remoteFlags override remote budgets for one command
type remoteFlags struct {
	timeout time.Duration
	retries int
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "wait budget for uploads to appear (default from config)")
	cmd.Flags().IntVar(&f.retries, "retries", -1, "retries after a failed remote attempt (default from config)")
}

// inputFlags select and filter local files
type inputFlags struct {
	files         []string
	dirs          []string
	recursive     bool
	manifest      string
	includeExt    string
	exclude       []string
	maxSize       string
	modifiedSince string
	copyToTemp    bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.files, "file", nil, "file to include (repeatable)")
	flags.StringArrayVar(&f.dirs, "dir", nil, "directory to scan (repeatable)")
	flags.BoolVar(&f.recursive, "recursive", false, "scan directories recursively")
	flags.StringVar(&f.manifest, "manifest", "", "text or JSON file listing paths")
	flags.StringVar(&f.includeExt, "include-ext", "", "comma-separated extension allow-list, e.g. md,txt,pdf")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "glob pattern to exclude (repeatable, comma-separated)")
	flags.StringVar(&f.maxSize, "max-size", "", "skip files larger than this, e.g. 5MB")
	flags.StringVar(&f.modifiedSince, "modified-since", "", "skip files older than an ISO time or a relative value like 7d")
	flags.BoolVar(&f.copyToTemp, "copy-to-temp", false, "upload copies staged in a temporary directory")
}

func (f *inputFlags) request() collector.Request {
	return collector.Request{
		Files:     f.files,
		Dirs:      f.dirs,
		Recursive: f.recursive,
		Filters: collector.Filters{
			IncludeExt:    f.includeExt,
			Exclude:       splitList(f.exclude),
			MaxSize:       f.maxSize,
			ModifiedSince: f.modifiedSince,
		},
	}
}

// remoteRun opens the library and service, resolves the target and runs fn
func (a *App) remoteRun(cmd *cobra.Command, tf targetFlags, fn func(svc *service.SyncService, target library.Target) (*domain.Result, error)) error {
	lib, err := a.openLibrary()
	if err != nil {
		return err
	}
	target, err := lib.Resolve(tf.url, tf.id)
	if err != nil {
		return err
	}

	svc, err := a.newService(lib)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, runErr := fn(svc, target)
	return a.emitResult(cmd, res, runErr)
}

func newSyncCmd(app *App) *cobra.Command {
	var (
		tf       targetFlags
		rf       remoteFlags
		in       inputFlags
		plan     domain.PlanOptions
		dryRun   bool
		failFast bool
		every    time.Duration
		runs     int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile notebook sources with local files",
		Long: `Collects local files, compares their content hashes with the ledger and
the notebook's current sources, then removes and uploads what changed.

Remote sources without a local counterpart are kept unless --delete-missing
is set. With --every the sync repeats until interrupted, printing one
result per run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once := func(ctx context.Context) error {
				return app.remoteRun(cmd, tf, func(svc *service.SyncService, target library.Target) (*domain.Result, error) {
					return svc.Sync(ctx, service.SyncRequest{
						Target:     target,
						Inputs:     in.request(),
						Manifest:   in.manifest,
						Plan:       plan,
						DryRun:     dryRun,
						CopyToTemp: in.copyToTemp,
						FailFast:   failFast,
						Remote:     app.remoteOptions(&rf),
					})
				})
			}
			if every <= 0 {
				return once(cmd.Context())
			}
			return app.repeat(cmd, every, runs, once)
		},
	}

	tf.register(cmd)
	rf.register(cmd)
	in.register(cmd)
	cmd.Flags().BoolVar(&plan.DeleteMissing, "delete-missing", false, "remove remote sources absent locally")
	cmd.Flags().BoolVar(&plan.ForceUpdate, "force-update", false, "re-upload every local file present remotely")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without changing anything")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first removal or upload that does not complete")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the sync at this interval until interrupted")
	cmd.Flags().IntVar(&runs, "max-runs", 0, "stop repeating after this many runs (0 = no limit)")
	return cmd
}

// repeat runs once on a fixed interval. A run that fails prints its error
// document and the loop goes on; the exit code follows the last run.
func (a *App) repeat(cmd *cobra.Command, every time.Duration, maxRuns int, once func(ctx context.Context) error) error {
	runner := scheduler.RunnerFunc(func(ctx context.Context) error {
		err := once(ctx)
		var exit *exitError
		if err == nil || errors.As(err, &exit) {
			return err
		}
		if emitErr := a.emit(cmd.OutOrStdout(), map[string]string{"error": err.Error()}); emitErr != nil {
			return emitErr
		}
		return &exitError{code: 1}
	})

	s, err := scheduler.NewIntervalScheduler(scheduler.Config{Interval: every, MaxRuns: maxRuns}, runner)
	if err != nil {
		return domain.Validationf("%v", err)
	}
	logger.Get().Info("repeating sync", "every", every, "max_runs", maxRuns)
	return s.Run(cmd.Context())
}

func newAddCmd(app *App) *cobra.Command {
	var (
		tf       targetFlags
		rf       remoteFlags
		in       inputFlags
		noDedupe bool
		text     string
		link     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Upload local files, pasted text or a link as new sources",
		Long: `Uploads files without removing anything. A file whose recorded hash is
unchanged and whose title is already present is skipped unless
--no-dedupe-hash is set.

--text pastes a text source and --url adds a website or YouTube source
instead; exactly one kind of source may be given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.remoteRun(cmd, tf, func(svc *service.SyncService, target library.Target) (*domain.Result, error) {
				return svc.AddSources(cmd.Context(), service.AddRequest{
					Target:     target,
					Inputs:     in.request(),
					Manifest:   in.manifest,
					NoDedupe:   noDedupe,
					CopyToTemp: in.copyToTemp,
					Remote:     app.remoteOptions(&rf),
					Text:       text,
					URL:        link,
				})
			})
		},
	}

	tf.register(cmd)
	rf.register(cmd)
	in.register(cmd)
	cmd.Flags().BoolVar(&noDedupe, "no-dedupe-hash", false, "upload even when the ledger hash matches")
	cmd.Flags().StringVar(&text, "text", "", "paste this text as a source")
	cmd.Flags().StringVar(&link, "url", "", "add this web page or YouTube link as a source")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	var (
		tf  targetFlags
		rf  remoteFlags
		req service.DeleteRequest
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove sources by title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.remoteRun(cmd, tf, func(svc *service.SyncService, target library.Target) (*domain.Result, error) {
				req.Target = target
				req.Remote = app.remoteOptions(&rf)
				return svc.DeleteSources(cmd.Context(), req)
			})
		},
	}

	tf.register(cmd)
	rf.register(cmd)
	cmd.Flags().StringVar(&req.Title, "title", "", "source title to remove")
	cmd.Flags().BoolVar(&req.Contains, "contains", false, "match titles containing --title")
	cmd.Flags().BoolVar(&req.AllMatches, "all-matches", false, "remove every match instead of failing on ambiguity")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "list matches without removing them")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newSourcesCmd(app *App) *cobra.Command {
	var (
		tf targetFlags
		rf remoteFlags
	)

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the notebook's sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.remoteRun(cmd, tf, func(svc *service.SyncService, target library.Target) (*domain.Result, error) {
				return svc.ListSources(cmd.Context(), service.ListRequest{
					Target: target,
					Remote: app.remoteOptions(&rf),
				})
			})
		},
	}

	tf.register(cmd)
	rf.register(cmd)
	return cmd
}
