package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/library"
	"github.com/Ning0612/nbsync/internal/logger"
	"github.com/Ning0612/nbsync/internal/service"
)

// Export formats of the ask command
const (
	ExportJSON     = "json"
	ExportMarkdown = "markdown"
)

func newAskCmd(app *App) *cobra.Command {
	var (
		tf            targetFlags
		questions     []string
		questionList  string
		questionsFile string
		compareIDs    []string
		compareURLs   []string
		answerTimeout time.Duration
		retries       int
		failFast      bool
		exportFormat  string
		exportFile    string
		saveNotes     bool
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask questions in the notebook chat",
		Long: `Types each question into the notebook chat and waits for the reply to
settle. Several questions run as a batch, one browser session each. With
--compare-notebook-ids or --compare-notebook-urls a single question goes to
every listed notebook as well as the target.

A reply is captured with the citation chips that appeared alongside it.
A rate-limit message ends the run without retrying.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch exportFormat {
			case ExportJSON, ExportMarkdown:
			default:
				return domain.Validationf("unsupported export format %q: use json or markdown", exportFormat)
			}

			qs, err := collectQuestions(questions, questionList, questionsFile)
			if err != nil {
				return err
			}

			lib, err := app.openLibrary()
			if err != nil {
				return err
			}
			targets, err := askTargets(lib, tf, splitList(compareIDs), splitList(compareURLs))
			if err != nil {
				return err
			}

			svc, err := app.newService(lib)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, runErr := svc.Ask(cmd.Context(), service.AskRequest{
				Targets:       targets,
				Questions:     qs,
				FailFast:      failFast,
				AnswerTimeout: answerTimeout,
				Remote:        app.remoteOptions(&remoteFlags{retries: retries}),
			})
			if res == nil || (errors.Is(runErr, domain.ErrValidation) && len(res.Items) == 0) {
				return runErr
			}

			path := exportFile
			if path == "" && saveNotes {
				path = filepath.Join(app.cfg.NotesPath(), exportName(res, exportFormat, time.Now()))
			}
			if path != "" && len(res.Items) > 0 {
				if err := writeExport(res, exportFormat, path, time.Now()); err != nil {
					logger.Get().Error("failed to write export", "path", path, "error", err)
				} else {
					res.ExportFile = path
				}
			}

			if err := app.emit(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Status.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	tf.register(cmd)
	flags := cmd.Flags()
	flags.StringArrayVarP(&questions, "question", "q", nil, "question to ask (repeatable)")
	flags.StringVar(&questionList, "questions", "", `questions separated by "||", or by commas when no "||" is present`)
	flags.StringVar(&questionsFile, "questions-file", "", "file with one question per line, # starts a comment")
	flags.StringArrayVar(&compareIDs, "compare-notebook-ids", nil, "library ids of notebooks to compare (repeatable, comma-separated)")
	flags.StringArrayVar(&compareURLs, "compare-notebook-urls", nil, "URLs of notebooks to compare (repeatable, comma-separated)")
	flags.DurationVar(&answerTimeout, "timeout", service.DefaultAnswerTimeout, "wait budget for each reply")
	flags.IntVar(&retries, "retries", -1, "retries after a failed question (default from config)")
	flags.BoolVar(&failFast, "fail-fast", false, "stop at the first question without an answer")
	flags.StringVar(&exportFormat, "export-format", ExportJSON, "export format: json or markdown")
	flags.StringVar(&exportFile, "export-file", "", "write the answers to this file")
	flags.BoolVar(&saveNotes, "save-notes", false, "write the answers to the notes directory")
	return cmd
}

// askTargets resolves the target notebook followed by the compared ones
func askTargets(lib *library.Library, tf targetFlags, ids, urls []string) ([]library.Target, error) {
	primary, err := lib.Resolve(tf.url, tf.id)
	if err != nil {
		return nil, err
	}
	targets := []library.Target{primary}
	seen := map[string]bool{primary.URL: true}

	add := func(url, id string) error {
		t, err := lib.Resolve(url, id)
		if err != nil {
			return err
		}
		if !seen[t.URL] {
			seen[t.URL] = true
			targets = append(targets, t)
		}
		return nil
	}
	for _, id := range ids {
		if err := add("", id); err != nil {
			return nil, err
		}
	}
	for _, url := range urls {
		if err := add(url, ""); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// collectQuestions merges --question, --questions and --questions-file in
// that order
func collectQuestions(flagged []string, list, file string) ([]string, error) {
	out := []string{}
	for _, q := range flagged {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	out = append(out, parseQuestions(list)...)

	if file != "" {
		fromFile, err := readQuestions(file)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	if len(out) == 0 {
		return nil, domain.Validationf("no question given: use --question, --questions or --questions-file")
	}
	return out, nil
}

// parseQuestions splits on "||" when present, otherwise on commas
func parseQuestions(list string) []string {
	sep := ","
	if strings.Contains(list, "||") {
		sep = "||"
	}
	out := []string{}
	for _, part := range strings.Split(list, sep) {
		if q := strings.TrimSpace(part); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Validationf("cannot read questions file: %v", err)
	}
	defer f.Close()

	out := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

func exportName(res *domain.AskResult, format string, now time.Time) string {
	ext := ".json"
	if format == ExportMarkdown {
		ext = ".md"
	}
	return fmt.Sprintf("ask-%s-%s%s", res.Mode, now.UTC().Format("20060102-150405"), ext)
}

// writeExport writes the answers as JSON or a markdown note
func writeExport(res *domain.AskResult, format, path string, now time.Time) error {
	var data []byte
	if format == ExportMarkdown {
		data = []byte(service.AskMarkdown(res, now))
	} else {
		var err error
		if data, err = json.MarshalIndent(res, "", "  "); err != nil {
			return err
		}
		data = append(data, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
