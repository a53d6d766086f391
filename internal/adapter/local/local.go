package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// StagingPrefix names the temp directories created for uploads
const StagingPrefix = "nbsync-upload-"

// Staging is a temporary directory holding copies of files to upload.
// Uploading copies keeps the browser from holding handles on the originals.
type Staging struct {
	root string
}

// NewStaging creates an empty staging directory under the OS temp dir
func NewStaging() (*Staging, error) {
	root, err := os.MkdirTemp("", StagingPrefix+"*")
	if err != nil {
		return nil, &domain.IoError{Path: os.TempDir(), Err: err}
	}
	return &Staging{root: root}, nil
}

// Root returns the staging directory path
func (s *Staging) Root() string {
	return s.root
}

// Stage copies each file into the staging root under its title and returns
// descriptors whose UploadPath points at the copy
func (s *Staging) Stage(ctx context.Context, files []domain.FileDescriptor) ([]domain.FileDescriptor, error) {
	out := make([]domain.FileDescriptor, 0, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dest, err := s.resolvePath(f.Title)
		if err != nil {
			return nil, err
		}
		if err := s.copyFile(f.SourcePath, dest); err != nil {
			return nil, &domain.IoError{Path: f.SourcePath, Err: err}
		}

		staged := f
		staged.UploadPath = dest
		out = append(out, staged)
	}

	logger.Get().Debug("staged upload copies", "dir", s.root, "count", len(out))
	return out, nil
}

// Close removes the staging directory and everything in it
func (s *Staging) Close() error {
	if s.root == "" {
		return nil
	}
	err := os.RemoveAll(s.root)
	if err != nil {
		logger.Get().Warn("failed to remove staging dir", "dir", s.root, "error", err)
	}
	return err
}

// resolvePath maps a title to a path inside root, rejecting escapes
func (s *Staging) resolvePath(title string) (string, error) {
	name := filepath.Clean(filepath.FromSlash(title))
	if name == "." || filepath.IsAbs(name) {
		return "", domain.Validationf("cannot stage %q: invalid title", title)
	}

	fullPath := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", domain.Validationf("cannot stage %q: path escapes staging dir", title)
	}
	return fullPath, nil
}

// copyFile writes src to a temp name beside dest and renames it into place
func (s *Staging) copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return mapError(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return mapError(err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return mapError(err)
	}

	tempPath := dest + ".nbsync.tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return mapError(err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return mapError(err)
	}

	// Keep the original mtime on the copy
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// mapError converts OS errors to domain errors, keeping the cause
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return errors.Join(domain.ErrNotFound, err)
	case os.IsPermission(err):
		return errors.Join(domain.ErrPermissionDenied, err)
	default:
		return err
	}
}
