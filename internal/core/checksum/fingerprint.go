package checksum

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Ning0612/nbsync/internal/domain"
)

// Fingerprinter turns local paths into file descriptors
type Fingerprinter struct {
	calc Calculator
}

// NewFingerprinter creates a fingerprinter; a nil calculator uses the default
func NewFingerprinter(calc Calculator) *Fingerprinter {
	if calc == nil {
		calc = NewDefaultCalculator()
	}
	return &Fingerprinter{calc: calc}
}

// Describe stats and hashes one file. The title is the base name.
func (f *Fingerprinter) Describe(ctx context.Context, path string) (domain.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileDescriptor{}, &domain.IoError{Path: path, Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.FileDescriptor{}, &domain.IoError{Path: path, Err: err}
	}
	defer file.Close()

	sum, err := f.calc.Calculate(ctx, file)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FileDescriptor{}, err
		}
		return domain.FileDescriptor{}, &domain.IoError{Path: path, Err: err}
	}

	return domain.FileDescriptor{
		Title:       filepath.Base(path),
		SourcePath:  path,
		UploadPath:  path,
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: sum,
	}, nil
}

// DescribeAll describes paths in order, stopping at the first error
func (f *Fingerprinter) DescribeAll(ctx context.Context, paths []string) ([]domain.FileDescriptor, error) {
	out := make([]domain.FileDescriptor, 0, len(paths))
	for _, path := range paths {
		desc, err := f.Describe(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// EnsureUniqueTitles rejects sets where two files share a title
func EnsureUniqueTitles(files []domain.FileDescriptor) error {
	byTitle := make(map[string][]string)
	for _, f := range files {
		byTitle[f.Title] = append(byTitle[f.Title], f.SourcePath)
	}

	var dupes []string
	for title, paths := range byTitle {
		if len(paths) > 1 {
			dupes = append(dupes, title+" ("+strings.Join(paths, ", ")+")")
		}
	}
	if len(dupes) == 0 {
		return nil
	}

	sort.Strings(dupes)
	return domain.Validationf("duplicate source titles in local set: %s", strings.Join(dupes, "; "))
}
