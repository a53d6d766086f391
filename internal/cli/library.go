package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/library"
)

// notebookView is a library entry with its active flag
type notebookView struct {
	library.Notebook `yaml:",inline"`
	Active           bool `json:"active" yaml:"active"`
}

type notebookList struct {
	ActiveNotebookID string         `json:"activeNotebookId,omitempty" yaml:"activeNotebookId,omitempty"`
	Count            int            `json:"count" yaml:"count"`
	Notebooks        []notebookView `json:"notebooks" yaml:"notebooks"`
}

func listView(lib *library.Library, notebooks []*library.Notebook) notebookList {
	out := notebookList{
		ActiveNotebookID: lib.ActiveID(),
		Count:            len(notebooks),
		Notebooks:        make([]notebookView, 0, len(notebooks)),
	}
	for _, nb := range notebooks {
		out.Notebooks = append(out.Notebooks, notebookView{Notebook: *nb, Active: nb.ID == lib.ActiveID()})
	}
	return out
}

func newLibraryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the local notebook catalogue",
	}
	cmd.AddCommand(
		newLibraryAddCmd(app),
		newLibraryListCmd(app),
		newLibraryGetCmd(app),
		newLibraryActivateCmd(app),
		newLibraryRemoveCmd(app),
		newLibrarySearchCmd(app),
		newLibraryUpdateCmd(app),
		newLibraryStatsCmd(app),
	)
	return cmd
}

// withLibrary loads the library, runs fn and saves when fn asks for it
func (a *App) withLibrary(cmd *cobra.Command, save bool, fn func(lib *library.Library) (any, error)) error {
	lib, err := a.openLibrary()
	if err != nil {
		return err
	}
	out, err := fn(lib)
	if err != nil {
		return err
	}
	if save {
		if err := lib.Save(); err != nil {
			return err
		}
	}
	return a.emit(cmd.OutOrStdout(), out)
}

func newLibraryAddCmd(app *App) *cobra.Command {
	var (
		req    library.AddRequest
		topics []string
		tags   []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Catalogue a notebook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Topics = splitList(topics)
			req.Tags = splitList(tags)
			return app.withLibrary(cmd, true, func(lib *library.Library) (any, error) {
				nb, err := lib.Add(req)
				if err != nil {
					return nil, err
				}
				return notebookView{Notebook: *nb, Active: nb.ID == lib.ActiveID()}, nil
			})
		},
	}

	cmd.Flags().StringVar(&req.URL, "url", "", "notebook URL")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Description, "description", "", "what the notebook holds")
	cmd.Flags().StringArrayVar(&topics, "topics", nil, "topics (repeatable, comma-separated)")
	cmd.Flags().StringArrayVar(&tags, "tags", nil, "tags (repeatable, comma-separated)")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLibraryListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogued notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, false, func(lib *library.Library) (any, error) {
				return listView(lib, lib.List()), nil
			})
		},
	}
}

func newLibraryGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, false, func(lib *library.Library) (any, error) {
				nb, err := lib.Get(args[0])
				if err != nil {
					return nil, err
				}
				return notebookView{Notebook: *nb, Active: nb.ID == lib.ActiveID()}, nil
			})
		},
	}
}

func newLibraryActivateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a notebook the default target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, true, func(lib *library.Library) (any, error) {
				nb, err := lib.Activate(args[0])
				if err != nil {
					return nil, err
				}
				return notebookView{Notebook: *nb, Active: true}, nil
			})
		},
	}
}

func newLibraryRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Drop a notebook from the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, true, func(lib *library.Library) (any, error) {
				remaining, err := lib.Remove(args[0])
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"removed":          args[0],
					"remaining":        remaining,
					"activeNotebookId": lib.ActiveID(),
				}, nil
			})
		},
	}
}

func newLibrarySearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find notebooks by name, description, topic or tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, false, func(lib *library.Library) (any, error) {
				return listView(lib, lib.Search(args[0])), nil
			})
		},
	}
}

func newLibraryUpdateCmd(app *App) *cobra.Command {
	var (
		req    library.UpdateRequest
		topics []string
		tags   []string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit notebook metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("topics") {
				t := splitList(topics)
				req.Topics = &t
			}
			if cmd.Flags().Changed("tags") {
				t := splitList(tags)
				req.Tags = &t
			}
			return app.withLibrary(cmd, true, func(lib *library.Library) (any, error) {
				nb, err := lib.Update(args[0], req)
				if err != nil {
					return nil, err
				}
				return notebookView{Notebook: *nb, Active: nb.ID == lib.ActiveID()}, nil
			})
		},
	}

	cmd.Flags().StringVar(&req.URL, "url", "", "new notebook URL")
	cmd.Flags().StringVar(&req.Name, "name", "", "new display name")
	cmd.Flags().StringVar(&req.Description, "description", "", "new description")
	cmd.Flags().StringArrayVar(&topics, "topics", nil, "replacement topics")
	cmd.Flags().StringArrayVar(&tags, "tags", nil, "replacement tags")
	return cmd
}

func newLibraryStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library usage totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, false, func(lib *library.Library) (any, error) {
				return lib.Stats(), nil
			})
		},
	}
}
