package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/state"
)

func newHistoryCmd(app *App) *cobra.Command {
	var (
		notebookURL string
		limit       int
		lastSuccess bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync, add and delete runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return domain.Validationf("--limit must be positive, got %d", limit)
			}

			history, err := state.NewManager(app.cfg.DataDir)
			if err != nil {
				return err
			}
			defer history.Close()

			url := strings.TrimSpace(notebookURL)
			if lastSuccess {
				if url == "" {
					return domain.Validationf("--last-success requires --notebook-url")
				}
				rec, err := history.GetLastSuccess(url)
				if err != nil {
					return err
				}
				return app.emit(cmd.OutOrStdout(), map[string]any{"notebookUrl": url, "lastSuccess": rec})
			}

			var runs []state.ExecutionRecord
			if url != "" {
				runs, err = history.GetHistory(url, limit)
			} else {
				runs, err = history.GetAllHistory(limit)
			}
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []state.ExecutionRecord{}
			}
			return app.emit(cmd.OutOrStdout(), map[string]any{"count": len(runs), "runs": runs})
		},
	}

	cmd.Flags().StringVar(&notebookURL, "notebook-url", "", "only runs against this notebook")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&lastSuccess, "last-success", false, "show only the last successful run")
	return cmd
}
