package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/testutil"
)

func TestStaging_CopiesAndCleansUp(t *testing.T) {
	src := testutil.TempDir(t)
	path := testutil.CreateTestFile(t, src, "notes.md", "hello")

	staging, err := NewStaging()
	if err != nil {
		t.Fatalf("NewStaging failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(staging.Root()), StagingPrefix) {
		t.Errorf("unexpected staging dir name %s", staging.Root())
	}

	files := []domain.FileDescriptor{{Title: "notes.md", SourcePath: path, UploadPath: path}}
	staged, err := staging.Stage(context.Background(), files)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if staged[0].SourcePath != path {
		t.Errorf("SourcePath changed: %s", staged[0].SourcePath)
	}
	if filepath.Dir(staged[0].UploadPath) != staging.Root() {
		t.Errorf("UploadPath not in staging dir: %s", staged[0].UploadPath)
	}
	if files[0].UploadPath != path {
		t.Error("input descriptors must not be modified")
	}

	data, err := os.ReadFile(staged[0].UploadPath)
	if err != nil || string(data) != "hello" {
		t.Fatalf("staged copy mismatch: %q, %v", data, err)
	}

	if err := staging.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(staging.Root()); !os.IsNotExist(err) {
		t.Error("staging dir should be removed")
	}
}

func TestStaging_MissingSource(t *testing.T) {
	staging, err := NewStaging()
	if err != nil {
		t.Fatalf("NewStaging failed: %v", err)
	}
	defer staging.Close()

	files := []domain.FileDescriptor{{Title: "gone.md", SourcePath: filepath.Join(testutil.TempDir(t), "gone.md")}}
	_, err = staging.Stage(context.Background(), files)
	if !errors.Is(err, domain.ErrIO) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected IO/not-found error, got %v", err)
	}
}

func TestStaging_RejectsEscapingTitle(t *testing.T) {
	src := testutil.TempDir(t)
	path := testutil.CreateTestFile(t, src, "a.md", "x")

	staging, err := NewStaging()
	if err != nil {
		t.Fatalf("NewStaging failed: %v", err)
	}
	defer staging.Close()

	_, err = staging.Stage(context.Background(), []domain.FileDescriptor{{Title: "../evil.md", SourcePath: path}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
