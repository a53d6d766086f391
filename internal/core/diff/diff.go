package diff

import (
	"github.com/Ning0612/nbsync/internal/domain"
)

// DiffResult is how a local file relates to what was last pushed
type DiffResult int

const (
	// Unknown means nothing was recorded for the title
	Unknown DiffResult = iota
	// Identical means the recorded hash equals the current content hash
	Identical
	// Modified means content changed since the last push
	Modified
)

func (r DiffResult) String() string {
	switch r {
	case Identical:
		return "identical"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// NeedsUpload reports whether a title present remotely should be re-uploaded.
// Unknown history counts as stale.
func (r DiffResult) NeedsUpload() bool {
	return r != Identical
}

// Comparer compares a local descriptor against the hash the ledger recorded
// for its title, "" meaning no record
type Comparer interface {
	Compare(desc domain.FileDescriptor, recorded string) DiffResult
}

// HashComparer compares content hashes only; size and mtime are informational
type HashComparer struct{}

// NewHashComparer creates a new HashComparer
func NewHashComparer() *HashComparer {
	return &HashComparer{}
}

// Compare implements the Comparer interface
func (c *HashComparer) Compare(desc domain.FileDescriptor, recorded string) DiffResult {
	return CompareHash(desc.ContentHash, recorded)
}

// CompareHash compares against a bare recorded hash, "" meaning no record
func CompareHash(current, recorded string) DiffResult {
	if recorded == "" {
		return Unknown
	}
	if recorded == current {
		return Identical
	}
	return Modified
}
