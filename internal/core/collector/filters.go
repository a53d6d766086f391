package collector

import (
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/nbsync/internal/domain"
)

// Filters are the raw filter flags as typed by the user
type Filters struct {
	// IncludeExt is a comma-separated extension allow-list, e.g. "md,txt,.pdf"
	IncludeExt string `mapstructure:"include_ext"`

	// Exclude holds glob patterns, each entry may itself be comma-separated
	Exclude []string `mapstructure:"exclude"`

	// MaxSize is a size ceiling such as "5MB" or "120kb"
	MaxSize string `mapstructure:"max_size"`

	// ModifiedSince is an ISO timestamp or a relative value like 7d, 24h, 90m
	ModifiedSince string `mapstructure:"modified_since"`
}

// Criteria is the parsed form of Filters
type Criteria struct {
	Extensions    mapset.Set[string]
	Exclude       []string
	MaxSize       int64
	HasMaxSize    bool
	ModifiedSince time.Time
}

// Compile parses all filter strings, relative times are resolved against now
func (f Filters) Compile(now time.Time) (Criteria, error) {
	c := Criteria{
		Extensions: ParseExtensions(f.IncludeExt),
		Exclude:    ParseExcludes(f.Exclude),
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return Criteria{}, domain.Validationf("invalid exclude pattern: %q", pattern)
		}
	}

	if strings.TrimSpace(f.MaxSize) != "" {
		size, err := ParseSize(f.MaxSize)
		if err != nil {
			return Criteria{}, err
		}
		c.MaxSize = size
		c.HasMaxSize = true
	}

	if strings.TrimSpace(f.ModifiedSince) != "" {
		cutoff, err := ParseModifiedSince(f.ModifiedSince, now)
		if err != nil {
			return Criteria{}, err
		}
		c.ModifiedSince = cutoff
	}

	return c, nil
}

// AllowedExtensions returns the allow-list sorted
func (c Criteria) AllowedExtensions() []string {
	if c.Extensions == nil {
		return nil
	}
	exts := c.Extensions.ToSlice()
	sort.Strings(exts)
	return exts
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(b|kb|mb|gb)?$`)

var sizeUnits = map[string]float64{
	"b":  1,
	"kb": 1 << 10,
	"mb": 1 << 20,
	"gb": 1 << 30,
}

// ParseSize parses "<number><unit>" with binary units b, kb, mb, gb
func ParseSize(raw string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	m := sizePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, domain.Validationf("invalid max size value: %q", raw)
	}

	number, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, domain.Validationf("invalid max size value: %q", raw)
	}

	unit := m[2]
	if unit == "" {
		unit = "b"
	}
	size := number * sizeUnits[unit]
	// float64(MaxInt64) rounds up to 2^63, which no longer fits
	if size >= math.MaxInt64 {
		return 0, domain.Validationf("max size value too large: %q", raw)
	}
	return int64(size), nil
}

var relativePattern = regexp.MustCompile(`^(\d+)\s*([dhm])$`)

// absoluteLayouts are tried in order; layouts without a zone parse as UTC
var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseModifiedSince parses an absolute timestamp or a relative duration
// (d days, h hours, m minutes) counted back from now
func ParseModifiedSince(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)

	if m := relativePattern.FindStringSubmatch(strings.ToLower(value)); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, domain.Validationf("invalid modified-since value: %q", raw)
		}
		var unit time.Duration
		switch m[2] {
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		default:
			unit = time.Minute
		}
		return now.Add(-time.Duration(amount) * unit), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, domain.Validationf(
		"invalid modified-since format %q: use an ISO date/time or relative values like 7d, 24h, 90m", raw)
}

// ParseExtensions normalizes a comma-separated list to lower-case ".ext" entries
func ParseExtensions(raw string) mapset.Set[string] {
	exts := mapset.NewThreadUnsafeSet[string]()
	for _, value := range splitCSV(raw) {
		ext := strings.ToLower(value)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts.Add(ext)
	}
	return exts
}

// ParseExcludes flattens repeatable, comma-separated glob flags
func ParseExcludes(raw []string) []string {
	var patterns []string
	for _, entry := range raw {
		parts := splitCSV(entry)
		if len(parts) > 0 {
			patterns = append(patterns, parts...)
			continue
		}
		if s := strings.TrimSpace(entry); s != "" {
			patterns = append(patterns, s)
		}
	}
	return patterns
}

func splitCSV(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
