package browser

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
)

// CaptureArtifacts writes a full-page screenshot and the page HTML to dir.
// name is the file prefix without extension.
func (s *Session) CaptureArtifacts(ctx context.Context, dir, name string) (domain.Artifact, error) {
	art := domain.Artifact{URL: s.CurrentURL()}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return art, &domain.IoError{Path: dir, Err: err}
	}
	page := s.page.Context(ctx).Timeout(30 * time.Second)

	if png, err := page.Screenshot(true, nil); err == nil {
		path := filepath.Join(dir, name+".png")
		if err := os.WriteFile(path, png, 0644); err != nil {
			return art, &domain.IoError{Path: path, Err: err}
		}
		art.Screenshot = path
	}

	html, err := page.HTML()
	if err != nil {
		return art, err
	}
	path := filepath.Join(dir, name+".html")
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return art, &domain.IoError{Path: path, Err: err}
	}
	art.HTML = path
	return art, nil
}
