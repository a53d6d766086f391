package collector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/testutil"
)

func reasons(items []domain.FilteredOut) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[filepath.Base(item.Path)] = item.Reason
	}
	return out
}

func bases(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

func TestCollect_FilterReasons(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateTestFile(t, dir, "keep.md", "hello")
	testutil.CreateTestFile(t, dir, "skip.txt", "ignored")
	testutil.CreateTestFileWithSize(t, dir, "big.md", 4096)

	got, err := New().Collect(Request{
		Dirs: []string{dir},
		Filters: Filters{
			IncludeExt: "md",
			Exclude:    []string{"skip*"},
			MaxSize:    "2KB",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.md"}, bases(got.Files))

	r := reasons(got.FilteredOut)
	assert.Equal(t, domain.ReasonExtension, r["skip.txt"])
	assert.Equal(t, domain.ReasonSize, r["big.md"])

	for _, item := range got.FilteredOut {
		switch filepath.Base(item.Path) {
		case "skip.txt":
			assert.Equal(t, []string{".md"}, item.AllowedExtensions)
		case "big.md":
			assert.Equal(t, int64(4096), item.SizeBytes)
			assert.Equal(t, int64(2048), item.MaxSizeBytes)
		}
	}
}

func TestCollect_ExcludeAfterAllowList(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateTestFile(t, dir, "draft-notes.md", "x")
	testutil.CreateTestFile(t, dir, "final.md", "y")

	got, err := New().Collect(Request{
		Dirs:    []string{dir},
		Filters: Filters{IncludeExt: ".MD", Exclude: []string{"draft-*, *.tmp"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"final.md"}, bases(got.Files))
	assert.Equal(t, "excluded:draft-*", reasons(got.FilteredOut)["draft-notes.md"])
}

func TestCollect_ExcludeFullPath(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateTestFile(t, dir, "archive/old.md", "x")
	testutil.CreateTestFile(t, dir, "new.md", "y")

	got, err := New().Collect(Request{
		Dirs:      []string{dir},
		Recursive: true,
		Filters:   Filters{Exclude: []string{"**/archive/**"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"new.md"}, bases(got.Files))
	assert.Equal(t, "excluded:**/archive/**", reasons(got.FilteredOut)["old.md"])
}

func TestCollect_Recursive(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateTestFile(t, dir, "top.md", "a")
	testutil.CreateTestFile(t, dir, "nested/deep.md", "b")

	flat, err := New().Collect(Request{Dirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, []string{"top.md"}, bases(flat.Files))

	deep, err := New().Collect(Request{Dirs: []string{dir}, Recursive: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top.md", "deep.md"}, bases(deep.Files))
}

func TestCollect_SortedCaseInsensitive(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateTestFile(t, dir, "b.md", "b")
	testutil.CreateTestFile(t, dir, "A.md", "a")
	testutil.CreateTestFile(t, dir, "c.md", "c")

	got, err := New().Collect(Request{Dirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md", "b.md", "c.md"}, bases(got.Files))
}

func TestCollect_DuplicatePath(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.CreateTestFile(t, dir, "one.md", "x")

	got, err := New().Collect(Request{Files: []string{path}, Dirs: []string{dir}})
	require.NoError(t, err)

	assert.Len(t, got.Files, 1)
	require.Len(t, got.FilteredOut, 1)
	assert.Equal(t, domain.ReasonDuplicatePath, got.FilteredOut[0].Reason)
}

func TestCollect_ModifiedSince(t *testing.T) {
	dir := testutil.TempDir(t)
	old := testutil.CreateTestFile(t, dir, "old.md", "x")
	testutil.CreateTestFile(t, dir, "fresh.md", "y")

	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := New().Collect(Request{
		Dirs:    []string{dir},
		Filters: Filters{ModifiedSince: "1d"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh.md"}, bases(got.Files))
	require.Len(t, got.FilteredOut, 1)
	assert.Equal(t, domain.ReasonModifiedSince, got.FilteredOut[0].Reason)
	assert.InDelta(t, float64(past.Unix()), got.FilteredOut[0].ModifiedAtEpoch, 1)
}

func TestCollect_InvalidInputs(t *testing.T) {
	dir := testutil.TempDir(t)
	file := testutil.CreateTestFile(t, dir, "a.md", "x")

	tests := []struct {
		name string
		req  Request
		kind error
	}{
		{"missing file", Request{Files: []string{filepath.Join(dir, "nope.md")}}, domain.ErrNotFound},
		{"file is dir", Request{Files: []string{dir}}, domain.ErrNotFile},
		{"missing dir", Request{Dirs: []string{filepath.Join(dir, "nope")}}, domain.ErrNotFound},
		{"dir is file", Request{Dirs: []string{file}}, domain.ErrNotDirectory},
		{"bad size", Request{Dirs: []string{dir}, Filters: Filters{MaxSize: "10tb"}}, nil},
		{"bad since", Request{Dirs: []string{dir}, Filters: Filters{ModifiedSince: "last week"}}, nil},
		{"bad exclude", Request{Dirs: []string{dir}, Filters: Filters{Exclude: []string{"drafts/[a-"}}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Collect(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			if tt.kind != nil {
				assert.ErrorIs(t, err, tt.kind)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"100b", 100},
		{"2KB", 2048},
		{"1.5mb", 1572864},
		{" 1 GB ", 1 << 30},
		{"8589934591gb", 8589934591 << 30},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"abc", "10tb", "1.2.3mb", "-5kb", "", "99999999999gb", "9223372036854775808"} {
		_, err := ParseSize(bad)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

func TestParseModifiedSince(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	got, err := ParseModifiedSince("7d", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), got)

	got, err = ParseModifiedSince("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), got)

	got, err = ParseModifiedSince("2024-01-02", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseModifiedSince("2024-01-02T10:30:00+02:00", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)))

	_, err = ParseModifiedSince("7w", now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseManifest(t *testing.T) {
	assert.Equal(t, []string{"a.md", "b.md"}, ParseManifest(`["a.md", " b.md ", ""]`))
	assert.Equal(t, []string{"x.txt"}, ParseManifest(`{"files": ["x.txt"]}`))
	assert.Equal(t, []string{"one.md", "two.md"}, ParseManifest("# list\none.md\n\n  two.md\n"))
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(testutil.TempDir(t), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
