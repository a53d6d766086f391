package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/prompt"
)

func newPromptCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Score prompts and suggest prompting frameworks",
	}
	cmd.AddCommand(newPromptEvaluateCmd(app), newPromptRecommendCmd(app))
	return cmd
}

// promptText joins the arguments, or reads stdin when there are none
func promptText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", domain.Validationf("prompt text is required as arguments or on stdin")
	}
	return text, nil
}

func newPromptEvaluateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [prompt...]",
		Short: "Score a prompt on clarity, specificity, context, completeness and structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := promptText(cmd, args)
			if err != nil {
				return err
			}
			return app.emit(cmd.OutOrStdout(), prompt.Evaluate(text))
		},
	}
}

func newPromptRecommendCmd(app *App) *cobra.Command {
	var questions bool

	cmd := &cobra.Command{
		Use:   "recommend [prompt...]",
		Short: "Suggest up to three frameworks for a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := promptText(cmd, args)
			if err != nil {
				return err
			}
			recs := prompt.Recommend(text)
			if questions {
				recs = prompt.WithQuestions(recs)
			}
			return app.emit(cmd.OutOrStdout(), map[string]any{
				"prompt":          text,
				"recommendations": recs,
			})
		},
	}

	cmd.Flags().BoolVar(&questions, "questions", false, "include clarifying questions per framework")
	return cmd
}
