package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/nbsync/internal/domain"
)

func decodeAsk(t *testing.T, out string) domain.AskResult {
	t.Helper()
	var res domain.AskResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

func TestParseQuestions(t *testing.T) {
	assert.Equal(t, []string{"What, if anything, changed?", "Why?"}, parseQuestions("What, if anything, changed? || Why?"))
	assert.Equal(t, []string{"a", "b"}, parseQuestions(" a ,, b "))
	assert.Empty(t, parseQuestions(""))
}

func TestCollectQuestions(t *testing.T) {
	file := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(file, []byte("# weekly\nFirst?\n\n  Second?  \n"), 0644))

	got, err := collectQuestions([]string{"Flagged?"}, "x||y", file)
	require.NoError(t, err)
	assert.Equal(t, []string{"Flagged?", "x", "y", "First?", "Second?"}, got)

	_, err = collectQuestions(nil, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = collectQuestions(nil, "", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAskCommand(t *testing.T) {
	h := newHarness(t)
	h.addNotebook(t)
	export := filepath.Join(h.dir, "exports", "answers.md")

	out, code := h.run(t, "ask", "-q", "What changed?", "--export-format", "markdown", "--export-file", export)
	require.Equal(t, 0, code, out)

	res := decodeAsk(t, out)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, domain.AskSingle, res.Mode)
	assert.Equal(t, "answer to: What changed?", res.Items[0].Answer)
	assert.Equal(t, export, res.ExportFile)

	note, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Contains(t, string(note), "## Answer\n\nanswer to: What changed?")
}

func TestAskCommand_BatchSavedToNotes(t *testing.T) {
	h := newHarness(t)
	h.addNotebook(t)

	out, code := h.run(t, "ask", "--questions", "one||two", "--save-notes")
	require.Equal(t, 0, code, out)

	res := decodeAsk(t, out)
	assert.Equal(t, domain.AskBatch, res.Mode)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, filepath.Join(h.dir, "data", "notes"), filepath.Dir(res.ExportFile))
	assert.True(t, strings.HasSuffix(res.ExportFile, ".json"))
	assert.FileExists(t, res.ExportFile)
}

func TestAskCommand_RateLimitedExitsNonZero(t *testing.T) {
	h := newHarness(t)
	h.addNotebook(t)
	h.remote.FailNext("ask", domain.ErrRateLimited)

	out, code := h.run(t, "ask", "-q", "a", "-q", "b")
	assert.Equal(t, 1, code)

	res := decodeAsk(t, out)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 1, res.Count)
	assert.Contains(t, res.Error, "rate limit")
}

func TestAskCommand_Invalid(t *testing.T) {
	h := newHarness(t)
	h.addNotebook(t)

	out, code := h.run(t, "ask")
	assert.Equal(t, 1, code)
	assert.Contains(t, decode(t, out)["error"], "no question")

	out, code = h.run(t, "ask", "-q", "a", "-q", "b", "--compare-notebook-urls", "https://notebooklm.google.com/notebook/bbb")
	assert.Equal(t, 1, code)
	assert.Contains(t, decode(t, out)["error"], "exactly one question")

	out, code = h.run(t, "ask", "-q", "a", "--export-format", "pdf")
	assert.Equal(t, 1, code)
	assert.Contains(t, decode(t, out)["error"], "export format")
}
