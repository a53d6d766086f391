// Package library keeps the local catalogue of NotebookLM notebooks and
// resolves which notebook a command targets.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// FileName is the library file inside the data directory
const FileName = "library.json"

const version = "1.0.0"

const maxSlugLength = 40

var notebookURLPattern = regexp.MustCompile(`^https://notebooklm\.google\.com/notebook/[A-Za-z0-9_-]+(?:[/?#].*)?$`)

// IsValidNotebookURL reports whether raw looks like a notebook address
func IsValidNotebookURL(raw string) bool {
	return notebookURLPattern.MatchString(strings.TrimSpace(raw))
}

// Notebook is one catalogued notebook
type Notebook struct {
	ID          string    `json:"id" yaml:"id"`
	URL         string    `json:"url" yaml:"url"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Topics      []string  `json:"topics" yaml:"topics"`
	Tags        []string  `json:"tags" yaml:"tags"`
	AddedAt     time.Time `json:"addedAt" yaml:"addedAt"`
	LastUsed    time.Time `json:"lastUsed" yaml:"lastUsed"`
	UseCount    int       `json:"useCount" yaml:"useCount"`
}

type document struct {
	Version          string      `json:"version"`
	ActiveNotebookID string      `json:"activeNotebookId,omitempty"`
	Notebooks        []*Notebook `json:"notebooks"`
	LastModified     time.Time   `json:"lastModified"`
}

// Library is the in-memory catalogue backed by a JSON file
type Library struct {
	path string
	doc  document
	now  func() time.Time
}

// Load reads the library at path; a missing file yields an empty library
func Load(path string) (*Library, error) {
	l := &Library{
		path: path,
		doc:  document{Version: version, Notebooks: []*Notebook{}},
		now:  time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, &domain.IoError{Path: path, Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Get().Warn("library is corrupt, starting fresh", "path", path, "error", err)
		return l, nil
	}
	if doc.Notebooks == nil {
		doc.Notebooks = []*Notebook{}
	}
	l.doc = doc
	return l, nil
}

// AddRequest holds the fields of a new notebook
type AddRequest struct {
	URL         string
	Name        string
	Description string
	Topics      []string
	Tags        []string
}

// Add catalogues a notebook. The first notebook becomes active.
func (l *Library) Add(req AddRequest) (*Notebook, error) {
	if !IsValidNotebookURL(req.URL) {
		return nil, domain.Validationf("invalid NotebookLM URL, expected https://notebooklm.google.com/notebook/<id>")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Validationf("notebook name is required")
	}
	if len(req.Topics) == 0 {
		return nil, domain.Validationf("at least one topic is required")
	}

	now := l.now().UTC()
	nb := &Notebook{
		ID:          l.uniqueID(req.Name),
		URL:         strings.TrimSpace(req.URL),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Topics:      nonNil(req.Topics),
		Tags:        nonNil(req.Tags),
		AddedAt:     now,
		LastUsed:    now,
	}

	l.doc.Notebooks = append(l.doc.Notebooks, nb)
	if l.doc.ActiveNotebookID == "" {
		l.doc.ActiveNotebookID = nb.ID
	}
	return nb, nil
}

// DefaultTopics tag notebooks catalogued without explicit topics
var DefaultTopics = []string{"notebooklm"}

// Upsert refreshes the entry already catalogued under req.URL, or adds a new
// one. Missing topics fall back to DefaultTopics. The bool is true on insert.
func (l *Library) Upsert(req AddRequest) (*Notebook, bool, error) {
	if len(req.Topics) == 0 {
		req.Topics = append([]string(nil), DefaultTopics...)
	}
	if nb, ok := l.FindByURL(req.URL); ok {
		topics := req.Topics
		nb, err := l.Update(nb.ID, UpdateRequest{
			Name:        req.Name,
			Description: req.Description,
			Topics:      &topics,
		})
		return nb, false, err
	}
	nb, err := l.Add(req)
	return nb, err == nil, err
}

// List returns all notebooks in insertion order
func (l *Library) List() []*Notebook {
	return l.doc.Notebooks
}

// ActiveID returns the active notebook id, "" when none
func (l *Library) ActiveID() string {
	return l.doc.ActiveNotebookID
}

// Get finds a notebook by id
func (l *Library) Get(id string) (*Notebook, error) {
	for _, nb := range l.doc.Notebooks {
		if nb.ID == id {
			return nb, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNotebookNotFound, id)
}

// FindByURL finds a notebook by exact (trimmed) URL
func (l *Library) FindByURL(url string) (*Notebook, bool) {
	target := strings.TrimSpace(url)
	for _, nb := range l.doc.Notebooks {
		if strings.TrimSpace(nb.URL) == target {
			return nb, true
		}
	}
	return nil, false
}

// Activate makes id the default target
func (l *Library) Activate(id string) (*Notebook, error) {
	nb, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	l.doc.ActiveNotebookID = id
	nb.LastUsed = l.now().UTC()
	return nb, nil
}

// Remove deletes a notebook; when it was active the first remaining one
// takes over. It returns the remaining count.
func (l *Library) Remove(id string) (int, error) {
	kept := l.doc.Notebooks[:0]
	found := false
	for _, nb := range l.doc.Notebooks {
		if nb.ID == id {
			found = true
			continue
		}
		kept = append(kept, nb)
	}
	if !found {
		return len(l.doc.Notebooks), fmt.Errorf("%w: %s", domain.ErrNotebookNotFound, id)
	}
	l.doc.Notebooks = kept

	if l.doc.ActiveNotebookID == id {
		l.doc.ActiveNotebookID = ""
		if len(kept) > 0 {
			l.doc.ActiveNotebookID = kept[0].ID
		}
	}
	return len(kept), nil
}

// Search matches query case-insensitively against name, description, topics and tags
func (l *Library) Search(query string) []*Notebook {
	q := strings.ToLower(strings.TrimSpace(query))
	results := []*Notebook{}
	for _, nb := range l.doc.Notebooks {
		haystack := strings.ToLower(strings.Join([]string{
			nb.Name, nb.Description, strings.Join(nb.Topics, " "), strings.Join(nb.Tags, " "),
		}, " "))
		if strings.Contains(haystack, q) {
			results = append(results, nb)
		}
	}
	return results
}

// UpdateRequest holds optional replacements; nil or empty fields are kept
type UpdateRequest struct {
	Name        string
	Description string
	URL         string
	Topics      *[]string
	Tags        *[]string
}

// Update edits notebook metadata in place
func (l *Library) Update(id string, req UpdateRequest) (*Notebook, error) {
	nb, err := l.Get(id)
	if err != nil {
		return nil, err
	}

	if req.URL != "" {
		if !IsValidNotebookURL(req.URL) {
			return nil, domain.Validationf("invalid NotebookLM URL, expected https://notebooklm.google.com/notebook/<id>")
		}
		nb.URL = strings.TrimSpace(req.URL)
	}
	if req.Name != "" {
		nb.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		nb.Description = strings.TrimSpace(req.Description)
	}
	if req.Topics != nil {
		nb.Topics = nonNil(*req.Topics)
	}
	if req.Tags != nil {
		nb.Tags = nonNil(*req.Tags)
	}
	return nb, nil
}

// Stats summarizes the library
type Stats struct {
	TotalNotebooks     int    `json:"totalNotebooks" yaml:"totalNotebooks"`
	ActiveNotebookID   string `json:"activeNotebookId,omitempty" yaml:"activeNotebookId,omitempty"`
	ActiveNotebookName string `json:"activeNotebookName,omitempty" yaml:"activeNotebookName,omitempty"`
	MostUsedNotebookID string `json:"mostUsedNotebookId,omitempty" yaml:"mostUsedNotebookId,omitempty"`
	TotalUses          int    `json:"totalUses" yaml:"totalUses"`
}

// Stats computes usage totals
func (l *Library) Stats() Stats {
	s := Stats{
		TotalNotebooks:   len(l.doc.Notebooks),
		ActiveNotebookID: l.doc.ActiveNotebookID,
	}
	best := -1
	for _, nb := range l.doc.Notebooks {
		s.TotalUses += nb.UseCount
		if nb.UseCount > best {
			best = nb.UseCount
			s.MostUsedNotebookID = nb.ID
		}
		if nb.ID == l.doc.ActiveNotebookID {
			s.ActiveNotebookName = nb.Name
		}
	}
	return s
}

// RecordUse bumps the usage counter of id, if catalogued
func (l *Library) RecordUse(id string) {
	if nb, err := l.Get(id); err == nil {
		nb.UseCount++
		nb.LastUsed = l.now().UTC()
	}
}

// Target is a resolved notebook for remote operations
type Target struct {
	URL string
	// ID is empty for URLs not in the library
	ID string
}

// Resolve picks the target notebook: an explicit URL first, then an id, then
// the active notebook
func (l *Library) Resolve(url, id string) (Target, error) {
	switch {
	case strings.TrimSpace(url) != "":
		if !IsValidNotebookURL(url) {
			return Target{}, domain.Validationf("invalid notebook URL: %s", url)
		}
		t := Target{URL: strings.TrimSpace(url)}
		if nb, ok := l.FindByURL(url); ok {
			t.ID = nb.ID
		}
		return t, nil

	case strings.TrimSpace(id) != "":
		nb, err := l.Get(strings.TrimSpace(id))
		if err != nil {
			return Target{}, err
		}
		return Target{URL: nb.URL, ID: nb.ID}, nil

	default:
		if l.doc.ActiveNotebookID == "" {
			return Target{}, domain.Validationf(
				"no notebook specified and no active notebook configured: use --notebook-url, --notebook-id, or activate a notebook first")
		}
		nb, err := l.Get(l.doc.ActiveNotebookID)
		if err != nil {
			return Target{}, err
		}
		return Target{URL: nb.URL, ID: nb.ID}, nil
	}
}

// Save writes the library atomically
func (l *Library) Save() error {
	l.doc.Version = version
	l.doc.LastModified = l.now().UTC()

	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.IoError{Path: dir, Err: err}
	}

	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, append(data, '\n'), 0644); err != nil {
		os.Remove(tempPath)
		return &domain.IoError{Path: l.path, Err: err}
	}
	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return &domain.IoError{Path: l.path, Err: err}
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify builds a stable id fragment from a name
func Slugify(name string) string {
	base := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if base == "" {
		base = "notebook"
	}
	if len(base) > maxSlugLength {
		base = base[:maxSlugLength]
	}
	return base
}

func (l *Library) uniqueID(name string) string {
	existing := make(map[string]bool, len(l.doc.Notebooks))
	for _, nb := range l.doc.Notebooks {
		existing[nb.ID] = true
	}

	root := Slugify(name)
	candidate := root
	for i := 1; existing[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", root, i)
	}
	return candidate
}

func nonNil(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
