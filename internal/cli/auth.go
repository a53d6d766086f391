package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/adapter/browser"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
)

// withSession runs fn in a browser session holding the profile lock
func (a *App) withSession(ctx context.Context, op string, headless bool, fn func(s *browser.Session) error) error {
	profileLock, err := a.profileLock()
	if err != nil {
		return err
	}
	if err := profileLock.Acquire(op, ""); err != nil {
		return err
	}
	defer func() {
		if err := profileLock.Release(); err != nil {
			logger.Get().Warn("failed to release profile lock", "error", err)
		}
	}()

	opts := a.browserOptions()
	opts.Headless = headless
	session, err := browser.NewDriver(opts).Launch(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	return fn(session)
}

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google session of browser profiles",
	}
	cmd.AddCommand(
		newAuthStatusCmd(app),
		newAuthSetupCmd(app),
		newAuthClearCmd(app),
		newAuthProfilesCmd(app),
	)
	return cmd
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the profile is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st browser.AuthStatus
			err := app.withSession(cmd.Context(), "auth-status", app.cfg.Browser.Headless, func(s *browser.Session) error {
				var err error
				st, err = s.Status(cmd.Context(), app.cfg.Profile)
				return err
			})
			if err != nil {
				return err
			}
			if err := app.emit(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if !st.Authenticated {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newAuthSetupCmd(app *App) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Sign in interactively in a visible browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st browser.AuthStatus
			err := app.withSession(cmd.Context(), "auth-setup", false, func(s *browser.Session) error {
				var err error
				st, err = s.Setup(cmd.Context(), app.cfg.Profile, timeout)
				return err
			})
			if st.Profile == "" {
				return err
			}
			if emitErr := app.emit(cmd.OutOrStdout(), st); emitErr != nil {
				return emitErr
			}
			if err != nil || !st.Authenticated {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", browser.DefaultSetupTimeout, "how long to wait for the login to finish")
	return cmd
}

func newAuthClearCmd(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete browser profile data",
		Long: `Deletes the configured profile, or every profile with --all.
A profile in use by another process is left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := app.cfg.ProfilesRoot()
			names := []string{app.cfg.Profile}
			if all {
				profiles, err := browser.ListProfiles(root)
				if err != nil {
					return err
				}
				names = names[:0]
				for _, p := range profiles {
					if p.Exists {
						names = append(names, p.Profile)
					}
				}
			}

			for _, name := range names {
				if err := app.ensureProfileFree(root, name); err != nil {
					return err
				}
			}

			cleared, err := browser.ClearProfiles(root, names...)
			if err != nil {
				return err
			}
			return app.emit(cmd.OutOrStdout(), map[string]any{
				"cleared":      cleared,
				"profilesRoot": root,
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear every profile")
	return cmd
}

// ensureProfileFree fails when a live process holds the profile
func (a *App) ensureProfileFree(root, name string) error {
	saved := a.cfg.Profile
	a.cfg.Profile = name
	defer func() { a.cfg.Profile = saved }()

	profileLock, err := a.profileLock()
	if err != nil {
		return err
	}
	if h, err := profileLock.Holder(); err == nil {
		return domain.Validationf("profile %s is in use by PID %d (%s)", name, h.PID, h.Operation)
	}
	return nil
}

func newAuthProfilesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List browser profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := browser.ListProfiles(app.cfg.ProfilesRoot())
			if err != nil {
				return err
			}
			return app.emit(cmd.OutOrStdout(), map[string]any{
				"active":   app.cfg.Profile,
				"profiles": profiles,
			})
		},
	}
}

func newNotebooksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebooks",
		Short: "List notebooks visible to the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var notebooks []browser.RemoteNotebook
			err := app.withSession(cmd.Context(), "notebooks", app.cfg.Browser.Headless, func(s *browser.Session) error {
				var err error
				notebooks, err = s.ListNotebooks(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			if notebooks == nil {
				notebooks = []browser.RemoteNotebook{}
			}
			return app.emit(cmd.OutOrStdout(), map[string]any{
				"count":     len(notebooks),
				"notebooks": notebooks,
			})
		},
	}
	cmd.AddCommand(newNotebooksCreateCmd(app))
	return cmd
}

// createdNotebook is printed by notebooks create
type createdNotebook struct {
	Status    domain.Status          `json:"status" yaml:"status"`
	Operation string                 `json:"operation" yaml:"operation"`
	Notebook  browser.RemoteNotebook `json:"notebook" yaml:"notebook"`
	Library   *library.Notebook      `json:"libraryEntry,omitempty" yaml:"libraryEntry,omitempty"`
	Created   bool                   `json:"libraryCreated" yaml:"libraryCreated"`
	Skipped   bool                   `json:"librarySkipped,omitempty" yaml:"librarySkipped,omitempty"`
}

func newNotebooksCreateCmd(app *App) *cobra.Command {
	var (
		name        string
		description string
		topics      []string
		skipLibrary bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a notebook and catalogue it in the library",
		Long: `Creates an empty notebook from the NotebookLM home page and names it.
The new notebook is added to the library, or its entry refreshed when the
URL is already catalogued, unless --skip-library is set.

Creation is attempted once: a retry could leave two notebooks behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return domain.Validationf("notebook name is required")
			}
			req := library.AddRequest{
				Name:        name,
				Description: description,
				Topics:      splitList(topics),
			}
			if req.Description == "" {
				req.Description = "Notebook created through nbsync"
			}

			if dryRun {
				return app.emit(cmd.OutOrStdout(), createdNotebook{
					Status:    domain.StatusDryRun,
					Operation: domain.OpCreate,
					Notebook:  browser.RemoteNotebook{Name: name},
					Skipped:   skipLibrary,
				})
			}

			var nb browser.RemoteNotebook
			err := app.withSession(cmd.Context(), domain.OpCreate, app.cfg.Browser.Headless, func(s *browser.Session) error {
				var err error
				nb, err = s.CreateNotebook(cmd.Context(), name)
				return err
			})
			if err != nil {
				return err
			}

			out := createdNotebook{Status: domain.StatusSuccess, Operation: domain.OpCreate, Notebook: nb, Skipped: skipLibrary}
			if !skipLibrary {
				lib, err := app.openLibrary()
				if err != nil {
					return err
				}
				req.URL = nb.URL
				if out.Library, out.Created, err = lib.Upsert(req); err != nil {
					return err
				}
				if err := lib.Save(); err != nil {
					return err
				}
			}
			return app.emit(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "notebook title")
	cmd.Flags().StringVar(&description, "description", "", "library description")
	cmd.Flags().StringArrayVar(&topics, "topics", nil, "library topics (comma-separated, default notebooklm)")
	cmd.Flags().BoolVar(&skipLibrary, "skip-library", false, "do not catalogue the new notebook")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be created")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUnlockCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Show or remove the profile lock",
		Long: `Prints the process holding the browser profile. With --force the lock
file is removed, for use after a crash left it behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profileLock, err := app.profileLock()
			if err != nil {
				return err
			}

			out := map[string]any{
				"profile":  app.cfg.Profile,
				"lockFile": profileLock.Path(),
				"locked":   false,
			}
			if h, err := profileLock.Holder(); err == nil {
				out["locked"] = true
				out["holder"] = h
			}
			if force {
				if err := profileLock.ForceRelease(); err != nil {
					return err
				}
				out["released"] = true
				logger.Get().Warn("profile lock removed", "path", profileLock.Path())
			}
			return app.emit(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the lock file")
	return cmd
}
