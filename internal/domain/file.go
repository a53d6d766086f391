package domain

import "time"

// FileDescriptor represents one eligible local file
type FileDescriptor struct {
	// Title is the display name used as the unique key on the remote side
	Title string `json:"title"`

	// SourcePath is the absolute path of the original file
	SourcePath string `json:"sourcePath"`

	// UploadPath is the path handed to the remote, a staged copy when staging is on
	UploadPath string `json:"uploadPath"`

	// SizeBytes in bytes, captured at hash time
	SizeBytes int64 `json:"sizeBytes"`

	// ModTime is the last modification time, captured at hash time
	ModTime time.Time `json:"-"`

	// ContentHash is the hex SHA-256 of the full content
	ContentHash string `json:"hash"`
}

// ModifiedAtEpoch returns ModTime as fractional unix seconds
func (f FileDescriptor) ModifiedAtEpoch() float64 {
	return float64(f.ModTime.UnixNano()) / 1e9
}

// RemoteItem is one source observed on the remote notebook
type RemoteItem struct {
	Title string `json:"title" yaml:"title"`

	// ItemID is the remote identifier when the page exposes one
	ItemID string `json:"sourceId,omitempty" yaml:"sourceId,omitempty"`

	// Kind is the free-form type label shown next to the title
	Kind string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Filter reasons reported by the collector
const (
	ReasonDuplicatePath  = "duplicate-path"
	ReasonStatFailed     = "stat-failed"
	ReasonExtension      = "extension-filtered"
	ReasonExcludedPrefix = "excluded:"
	ReasonSize           = "size-filtered"
	ReasonModifiedSince  = "modified-since-filtered"
)

// FilteredOut records a candidate rejected by the collector
type FilteredOut struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`

	AllowedExtensions []string `json:"allowedExtensions,omitempty" yaml:"allowedExtensions,omitempty"`
	SizeBytes         int64    `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	MaxSizeBytes      int64    `json:"maxSizeBytes,omitempty" yaml:"maxSizeBytes,omitempty"`
	ModifiedAtEpoch   float64  `json:"mtimeEpoch,omitempty" yaml:"mtimeEpoch,omitempty"`
}

// Titles returns the titles of descriptors in order
func Titles(files []FileDescriptor) []string {
	titles := make([]string, 0, len(files))
	for _, f := range files {
		titles = append(titles, f.Title)
	}
	return titles
}

// ItemTitles returns the titles of remote items in order
func ItemTitles(items []RemoteItem) []string {
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	return titles
}
