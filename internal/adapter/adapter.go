package adapter

import (
	"context"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
)

// Remote is one open notebook on the remote surface.
// Implementations return domain-level errors: ErrRemoteAuth when the session
// is signed out, ErrRemoteTransient or ErrTimeout for flaky conditions, and
// ErrRemoteUI when the page does not look as expected.
type Remote interface {
	// ListItems reads the sources currently shown, in page order
	ListItems(ctx context.Context) ([]domain.RemoteItem, error)

	// Upload submits local files as one batch. It returns once the files are
	// handed over; callers confirm arrival by polling ListItems.
	Upload(ctx context.Context, paths []string) error

	// Delete removes the first source whose title matches exactly.
	// It reports false when no such source exists.
	Delete(ctx context.Context, title string) (bool, error)

	// Close releases the page and any browser resources
	Close() error
}

// Opener creates Remote sessions for a notebook address
type Opener interface {
	Open(ctx context.Context, notebookURL string) (Remote, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, notebookURL string) (Remote, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, notebookURL string) (Remote, error) {
	return f(ctx, notebookURL)
}

// ArtifactCapturer is implemented by remotes that can dump debug state
type ArtifactCapturer interface {
	CaptureArtifacts(ctx context.Context, dir, name string) (domain.Artifact, error)
}

// SourceInserter is implemented by remotes that accept pasted text and web
// links as sources. Like Upload, both return once the dialog is submitted.
type SourceInserter interface {
	InsertText(ctx context.Context, text string) error
	InsertURL(ctx context.Context, url string) error
}

// Asker is implemented by remotes that can put a question to the notebook
// chat. Ask waits up to timeout for a reply that has stopped changing.
type Asker interface {
	Ask(ctx context.Context, question string, timeout time.Duration) (domain.Answer, error)
}
