package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
)

var (
	_ adapter.Remote           = (*Session)(nil)
	_ adapter.ArtifactCapturer = (*Session)(nil)
	_ adapter.SourceInserter   = (*Session)(nil)
	_ adapter.Asker            = (*Session)(nil)
	_ adapter.Opener           = (*Driver)(nil)
)

func TestSourceIDFromMenuID(t *testing.T) {
	assert.Equal(t, "abc-123", SourceIDFromMenuID("source-item-more-button-abc-123"))
	assert.Empty(t, SourceIDFromMenuID("other-button"))
}

func TestBuildNotebook(t *testing.T) {
	id := "0f8e2c1a-1111-2222-3333-444455556666"
	nb := BuildNotebook("Research", "12 sources · Jan 3", "Research\n12 sources\nPublic",
		"", `<button aria-labelledby="project-`+id+`-title">`)

	assert.Equal(t, id, nb.ID)
	assert.Equal(t, "https://notebooklm.google.com/notebook/"+id, nb.URL)
	require.NotNil(t, nb.SourceCount)
	assert.Equal(t, 12, *nb.SourceCount)
	assert.True(t, nb.Public)

	bare := BuildNotebook("Draft", "", "Draft")
	assert.Empty(t, bare.ID)
	assert.Nil(t, bare.SourceCount)
	assert.False(t, bare.Public)
}

func TestNotebookIDFromURL(t *testing.T) {
	id := "0f8e2c1a-1111-2222-3333-444455556666"

	u, got := NotebookIDFromURL("https://notebooklm.google.com/notebook/" + id + "?authuser=1#chat")
	assert.Equal(t, id, got)
	assert.Equal(t, "https://notebooklm.google.com/notebook/"+id, u)

	u, got = NotebookIDFromURL(HomeURL)
	assert.Empty(t, got)
	assert.Empty(t, u)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited("You have reached your Daily Limit for chats."))
	assert.True(t, IsRateLimited("429 Too Many Requests"))
	assert.False(t, IsRateLimited("The report covers three quarters."))
}

func TestIsPlaceholder(t *testing.T) {
	for _, text := range []string{"", "  ", "Analyzing your sources...", "Thinking", "Just a moment"} {
		assert.True(t, IsPlaceholder(text), text)
	}
	assert.False(t, IsPlaceholder("Revenue grew 12% year over year [1]."))
}

func TestAnswerTracker(t *testing.T) {
	tr := NewAnswerTracker("What changed?", []string{"Earlier reply"})

	reads := [][]string{
		{"Earlier reply"},
		{"Earlier reply", "what changed?"},
		{"Earlier reply", "Analyzing your files"},
		{"Earlier reply", "Two things"},
		{"Earlier reply", "Two things changed."},
		{"Earlier reply", "Two things changed."},
	}
	for i, texts := range reads {
		_, done := tr.Observe(texts)
		require.False(t, done, "read %d", i)
	}

	text, done := tr.Observe([]string{"Earlier reply", "Two things changed."})
	assert.True(t, done)
	assert.Equal(t, "Two things changed.", text)
}

func TestNewCitations(t *testing.T) {
	got := NewCitations([]string{"1", "2"}, []string{"1", "2", "3", "3", "report.pdf"})
	assert.Equal(t, []string{"3", "report.pdf"}, got)
	assert.Empty(t, NewCitations([]string{"1"}, []string{"1"}))
}

func TestCountSessionCookies(t *testing.T) {
	assert.Equal(t, 3, CountSessionCookies([]string{"SID", "NID", "__Secure-1PSID", "SAPISID", "OTZ"}))
	assert.Zero(t, CountSessionCookies(nil))
}

func TestIsLoginURL(t *testing.T) {
	assert.True(t, IsLoginURL("https://accounts.google.com/v3/signin/identifier?x=1"))
	assert.False(t, IsLoginURL("https://notebooklm.google.com/notebook/abc"))
}

func TestOptionsDefaults(t *testing.T) {
	w, h := Options{}.viewport()
	assert.Equal(t, 1600, w)
	assert.Equal(t, 1100, h)
	assert.Equal(t, 120*time.Second, Options{}.navTimeout())
	assert.Equal(t, 5*time.Second, Options{NavigationTimeout: 5 * time.Second}.navTimeout())
}

func TestLaunch_RequiresProfile(t *testing.T) {
	_, err := NewDriver(Options{}).Launch(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListAndClearProfiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "profiles")

	profiles, err := ListProfiles(root)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "default", profiles[0].Profile)
	assert.False(t, profiles[0].Exists)

	for _, name := range []string{"default", "work", "alt"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0755))
	}
	profiles, err = ListProfiles(root)
	require.NoError(t, err)
	names := []string{}
	for _, p := range profiles {
		names = append(names, p.Profile)
	}
	assert.Equal(t, []string{"default", "alt", "work"}, names)

	cleared, err := ClearProfiles(root, "work", "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, cleared)
	assert.NoDirExists(t, filepath.Join(root, "work"))

	_, err = ClearProfiles(root, "../outside")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
