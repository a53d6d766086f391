package collector

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// Request describes where to look for files and how to filter them
type Request struct {
	// Files are explicit file paths, each must exist and be a regular file
	Files []string

	// Dirs are directories scanned for regular files
	Dirs []string

	// Recursive descends into nested directories of Dirs
	Recursive bool

	Filters Filters
}

// Collection is the outcome of a collect pass
type Collection struct {
	// Files are eligible absolute paths, sorted case-insensitively
	Files []string

	// FilteredOut lists every rejected candidate with its reason
	FilteredOut []domain.FilteredOut
}

// Collector walks explicit paths and directories and applies filters
type Collector struct {
	// Now returns the invocation time used for relative modified-since values
	Now func() time.Time
}

// New creates a collector using the wall clock
func New() *Collector {
	return &Collector{Now: time.Now}
}

// Collect resolves candidates and filters them in the fixed order:
// existence, extension allow-list, exclusion globs, size ceiling, mtime floor
func (c *Collector) Collect(req Request) (Collection, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	criteria, err := req.Filters.Compile(now())
	if err != nil {
		return Collection{}, err
	}

	candidates, err := gatherCandidates(req)
	if err != nil {
		return Collection{}, err
	}

	result := Collection{
		Files:       make([]string, 0, len(candidates)),
		FilteredOut: make([]domain.FilteredOut, 0),
	}
	seen := make(map[string]struct{}, len(candidates))

	for _, path := range candidates {
		if _, dup := seen[path]; dup {
			result.FilteredOut = append(result.FilteredOut, domain.FilteredOut{
				Path: path, Reason: domain.ReasonDuplicatePath,
			})
			continue
		}
		seen[path] = struct{}{}

		if reject := criteria.check(path); reject != nil {
			result.FilteredOut = append(result.FilteredOut, *reject)
			continue
		}
		result.Files = append(result.Files, path)
	}

	sort.SliceStable(result.Files, func(i, j int) bool {
		a, b := strings.ToLower(result.Files[i]), strings.ToLower(result.Files[j])
		if a != b {
			return a < b
		}
		return result.Files[i] < result.Files[j]
	})

	logger.Get().Debug("collected files",
		"eligible", len(result.Files),
		"filtered_out", len(result.FilteredOut),
	)

	return result, nil
}

// check returns the rejection record for path, or nil when it is eligible
func (c Criteria) check(path string) *domain.FilteredOut {
	info, err := os.Stat(path)
	if err != nil {
		return &domain.FilteredOut{Path: path, Reason: domain.ReasonStatFailed}
	}

	if c.Extensions != nil && c.Extensions.Cardinality() > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		if !c.Extensions.Contains(ext) {
			return &domain.FilteredOut{
				Path:              path,
				Reason:            domain.ReasonExtension,
				AllowedExtensions: c.AllowedExtensions(),
			}
		}
	}

	if pattern, ok := matchExclude(path, c.Exclude); ok {
		return &domain.FilteredOut{Path: path, Reason: domain.ReasonExcludedPrefix + pattern}
	}

	if c.HasMaxSize && info.Size() > c.MaxSize {
		return &domain.FilteredOut{
			Path:         path,
			Reason:       domain.ReasonSize,
			SizeBytes:    info.Size(),
			MaxSizeBytes: c.MaxSize,
		}
	}

	if !c.ModifiedSince.IsZero() && info.ModTime().Before(c.ModifiedSince) {
		return &domain.FilteredOut{
			Path:            path,
			Reason:          domain.ReasonModifiedSince,
			ModifiedAtEpoch: float64(info.ModTime().UnixNano()) / 1e9,
		}
	}

	return nil
}

// matchExclude checks patterns against the base name and then the full path.
// Patterns are validated by Filters.Compile, so Match cannot fail here.
func matchExclude(path string, patterns []string) (string, bool) {
	base := filepath.Base(path)
	full := filepath.ToSlash(path)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return pattern, true
		}
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), full); ok {
			return pattern, true
		}
	}
	return "", false
}

// gatherCandidates validates explicit inputs and lists directory contents.
// Missing or wrong-type explicit paths are fatal.
func gatherCandidates(req Request) ([]string, error) {
	var candidates []string

	for _, raw := range req.Files {
		path, err := absPath(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.InvalidPath(domain.ErrNotFound, "file not found: %s", path)
			}
			return nil, domain.Validationf("cannot access file %s: %v", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, domain.InvalidPath(domain.ErrNotFile, "path is not a file: %s", path)
		}
		candidates = append(candidates, resolveLinks(path))
	}

	for _, raw := range req.Dirs {
		dir, err := absPath(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.InvalidPath(domain.ErrNotFound, "directory not found: %s", dir)
			}
			return nil, domain.Validationf("cannot access directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			return nil, domain.InvalidPath(domain.ErrNotDirectory, "path is not a directory: %s", dir)
		}

		files, err := listDir(resolveLinks(dir), req.Recursive)
		if err != nil {
			return nil, domain.Validationf("cannot list directory %s: %v", dir, err)
		}
		candidates = append(candidates, files...)
	}

	return candidates, nil
}

// listDir returns regular files in dir; unreadable entries are skipped
func listDir(dir string, recursive bool) ([]string, error) {
	var files []string

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if isRegular(path) {
				files = append(files, resolveLinks(path))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Skip entries we can't read
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isRegular(path) {
			files = append(files, resolveLinks(path))
		}
		return nil
	})
	return files, err
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func absPath(raw string) (string, error) {
	path, err := filepath.Abs(expandHome(strings.TrimSpace(raw)))
	if err != nil {
		return "", domain.Validationf("invalid path %q: %v", raw, err)
	}
	return path, nil
}

func resolveLinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
