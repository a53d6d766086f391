package checksum

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

func TestSHA256Calculation(t *testing.T) {
	calc := NewDefaultCalculator()

	result, err := calc.Calculate(context.Background(), strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	expected := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if result != expected {
		t.Errorf("SHA256 mismatch: got %s, want %s", result, expected)
	}
}

func TestEmptyInput(t *testing.T) {
	calc := NewDefaultCalculator()

	result, err := calc.Calculate(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	expected := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if result != expected {
		t.Errorf("empty digest mismatch: got %s, want %s", result, expected)
	}
}

func TestMaxSizeLimit(t *testing.T) {
	calc := NewCalculator(Options{MaxSize: 10, BufferSize: 4096})

	_, err := calc.Calculate(context.Background(), strings.NewReader("this is a long string that exceeds 10 bytes"))
	if err == nil {
		t.Fatal("Expected error for input exceeding MaxSize, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("Expected 'exceeds maximum' error, got: %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	calc := NewDefaultCalculator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := calc.Calculate(ctx, strings.NewReader("some data"))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

// Chunk boundaries must not affect the digest
func TestBufferSizeIndependence(t *testing.T) {
	content := strings.Repeat("abcdefg", 5000)

	small, err := NewCalculator(Options{BufferSize: 3}).Calculate(context.Background(), strings.NewReader(content))
	if err != nil {
		t.Fatalf("small buffer: %v", err)
	}
	large, err := NewDefaultCalculator().Calculate(context.Background(), strings.NewReader(content))
	if err != nil {
		t.Fatalf("default buffer: %v", err)
	}

	if small != large {
		t.Errorf("digest depends on buffer size: %s != %s", small, large)
	}
}

func TestDescribe(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.CreateTestFile(t, dir, "notes.md", "hello world")

	desc, err := NewFingerprinter(nil).Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	if desc.Title != "notes.md" {
		t.Errorf("Title = %q, want notes.md", desc.Title)
	}
	if desc.SourcePath != path || desc.UploadPath != path {
		t.Errorf("unexpected paths: %+v", desc)
	}
	if desc.SizeBytes != 11 {
		t.Errorf("SizeBytes = %d, want 11", desc.SizeBytes)
	}
	if desc.ContentHash != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("unexpected hash %s", desc.ContentHash)
	}
	if desc.ModTime.IsZero() {
		t.Error("ModTime not set")
	}
}

func TestDescribe_SingleByteChange(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.CreateTestFile(t, dir, "a.txt", "content-A")
	fp := NewFingerprinter(nil)

	first, err := fp.Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	again, err := fp.Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if first.ContentHash != again.ContentHash {
		t.Fatal("hash is not deterministic")
	}

	if err := os.WriteFile(path, []byte("content-B"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := fp.Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if changed.ContentHash == first.ContentHash {
		t.Error("hash did not change after content change")
	}
}

func TestDescribe_Missing(t *testing.T) {
	dir := testutil.TempDir(t)

	_, err := NewFingerprinter(nil).Describe(context.Background(), filepath.Join(dir, "gone.md"))
	if !errors.Is(err, domain.ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func TestEnsureUniqueTitles(t *testing.T) {
	dir := testutil.TempDir(t)
	a := testutil.CreateTestFile(t, dir, "a/same.md", "one")
	b := testutil.CreateTestFile(t, dir, "b/same.md", "two")
	c := testutil.CreateTestFile(t, dir, "other.md", "three")

	files, err := NewFingerprinter(nil).DescribeAll(context.Background(), []string{a, b, c})
	if err != nil {
		t.Fatalf("DescribeAll failed: %v", err)
	}

	err = EnsureUniqueTitles(files)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "same.md") {
		t.Errorf("error should name the duplicate title: %v", err)
	}

	if err := EnsureUniqueTitles(files[1:]); err != nil {
		t.Errorf("unexpected error for unique titles: %v", err)
	}
}
