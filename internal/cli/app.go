// Package cli wires the nbsync commands. Every command prints one
// structured document on stdout; logs go to stderr.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/adapter/browser"
	"github.com/Ning0612/nbsync/internal/config"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/lock"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/progress"
	"github.com/Ning0612/nbsync/internal/service"
	"github.com/Ning0612/nbsync/internal/state"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

// Output formats
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// App holds global flags and the loaded configuration
type App struct {
	ConfigPath  string
	Output      string
	DataDir     string
	Profile     string
	LogLevel    string
	ShowBrowser bool

	// Opener replaces the browser driver, used by tests
	Opener adapter.Opener

	// LogWriter replaces stderr for logs, used by tests
	LogWriter io.Writer

	cfg *config.Config
}

// exitError carries a non-zero exit code for a result that was already printed
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// NewRootCmd builds the nbsync command tree
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "nbsync",
		Short:         "Keep NotebookLM notebook sources in sync with local files",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.ConfigPath, "config", "c", "", "config file (default: search ., user config dir, ~/.config/nbsync)")
	flags.StringVarP(&app.Output, "output", "o", OutputJSON, "output format: json or yaml")
	flags.StringVar(&app.DataDir, "data-dir", "", "data directory for ledger, library, history and browser profiles")
	flags.StringVar(&app.Profile, "profile", "", "browser profile name")
	flags.StringVar(&app.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&app.ShowBrowser, "show-browser", false, "run Chrome with a visible window")

	root.AddCommand(
		newSyncCmd(app),
		newAddCmd(app),
		newDeleteCmd(app),
		newAskCmd(app),
		newSourcesCmd(app),
		newNotebooksCmd(app),
		newLibraryCmd(app),
		newAuthCmd(app),
		newPromptCmd(app),
		newHistoryCmd(app),
		newUnlockCmd(app),
	)
	return root
}

// Execute runs the command tree and returns the process exit code
func Execute(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer logger.Shutdown()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	if app.Output == "" {
		app.Output = OutputJSON
	}
	if emitErr := app.emit(root.OutOrStdout(), map[string]string{"error": err.Error()}); emitErr != nil {
		fmt.Fprintln(stderr, err)
	}
	return 1
}

// setup loads the configuration, applies flag overrides and starts logging
func (a *App) setup() error {
	switch a.Output {
	case OutputJSON, OutputYAML:
	default:
		return domain.Validationf("unsupported output format %q: use json or yaml", a.Output)
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	if a.DataDir != "" {
		cfg.DataDir = config.ExpandPath(a.DataDir)
	}
	if a.Profile != "" {
		cfg.Profile = config.SanitizeProfileName(a.Profile)
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
	if a.ShowBrowser {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogger()
}

func (a *App) initLogger() error {
	logCfg := logger.Config{
		Level:   logger.ParseLevel(a.cfg.Log.Level),
		Format:  logger.ParseFormat(a.cfg.Log.Format),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr, Writer: a.LogWriter}},
	}
	if a.cfg.Log.File {
		logCfg.Outputs = append(logCfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		logCfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       a.cfg.LogPath(),
			MaxSizeMB:  10,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		}
	}

	// A previous Execute in the same process may still own the logger
	_ = logger.Shutdown()
	return logger.Init(logCfg)
}

// emit writes v in the selected output format
func (a *App) emit(w io.Writer, v any) error {
	if a.Output == OutputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// emitResult prints res and maps its status to the exit code.
// An error is only returned to cobra when nothing was printed.
func (a *App) emitResult(cmd *cobra.Command, res *domain.Result, runErr error) error {
	if res == nil {
		return runErr
	}
	if err := a.emit(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Status.OK() {
		return &exitError{code: 1}
	}
	return nil
}

// openLibrary loads library.json from the data dir
func (a *App) openLibrary() (*library.Library, error) {
	return library.Load(a.cfg.LibraryPath())
}

// browserOptions are the Chrome settings for the configured profile
func (a *App) browserOptions() browser.Options {
	return browser.Options{
		ProfileDir:        a.cfg.ProfilePath(),
		Headless:          a.cfg.Browser.Headless,
		Bin:               a.cfg.Browser.Bin,
		ViewportWidth:     a.cfg.Browser.ViewportWidth,
		ViewportHeight:    a.cfg.Browser.ViewportHeight,
		NavigationTimeout: a.cfg.Browser.NavigationTimeout,
	}
}

func (a *App) opener() adapter.Opener {
	if a.Opener != nil {
		return a.Opener
	}
	return browser.NewDriver(a.browserOptions())
}

func (a *App) profileLock() (*lock.ProfileLock, error) {
	return lock.ForProfile(a.cfg.ProfilePath())
}

// newService assembles a SyncService over the data dir
func (a *App) newService(lib *library.Library) (*service.SyncService, error) {
	ledger, err := state.LoadLedger(a.cfg.LedgerPath())
	if err != nil {
		return nil, err
	}

	history, err := state.NewManager(a.cfg.DataDir)
	if err != nil {
		logger.Get().Warn("execution history unavailable", "error", err)
		history = nil
	}

	profileLock, err := a.profileLock()
	if err != nil {
		if history != nil {
			history.Close()
		}
		return nil, err
	}

	svc, err := service.NewSyncService(service.Deps{
		Opener:       a.opener(),
		Ledger:       ledger,
		History:      history,
		Library:      lib,
		Lock:         profileLock,
		ArtifactsDir: a.cfg.ArtifactsPath(),
	})
	if err != nil {
		if history != nil {
			history.Close()
		}
		return nil, err
	}
	svc.SetProgressReporter(progress.ForTerminal(os.Stderr))
	return svc, nil
}

// remoteOptions derives remote budgets from config and command flags
func (a *App) remoteOptions(f *remoteFlags) service.RemoteOptions {
	opts := service.DefaultRemoteOptions()
	opts.Retries = a.cfg.Sync.Retries
	if a.cfg.Sync.Backoff > 0 {
		opts.Backoff = a.cfg.Sync.Backoff
	}
	if a.cfg.Sync.MaxBackoff > 0 {
		opts.MaxBackoff = a.cfg.Sync.MaxBackoff
	}
	if a.cfg.Sync.Timeout > 0 {
		opts.UploadTimeout = a.cfg.Sync.Timeout
	}
	if a.cfg.Sync.PollInterval > 0 {
		opts.PollInterval = a.cfg.Sync.PollInterval
	}

	if f != nil {
		if f.retries >= 0 {
			opts.Retries = f.retries
		}
		if f.timeout > 0 {
			opts.UploadTimeout = f.timeout
		}
	}
	return opts
}

// splitList flattens repeated and comma-separated flag values
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
