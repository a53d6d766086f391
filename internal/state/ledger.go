package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// LedgerVersion is written into every saved ledger
const LedgerVersion = "1.0.0"

// LedgerFileName is the ledger file inside the data directory
const LedgerFileName = "source_state.json"

// SourceEntry is what was last pushed for one title on one target
type SourceEntry struct {
	Hash            string    `json:"hash"`
	SizeBytes       int64     `json:"sizeBytes"`
	ModifiedAtEpoch float64   `json:"modifiedAtEpoch"`
	SourcePath      string    `json:"sourcePath"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type targetRecord struct {
	Sources   map[string]SourceEntry `json:"sources"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type ledgerDocument struct {
	Version      string                   `json:"version"`
	LastModified time.Time                `json:"lastModified"`
	Targets      map[string]*targetRecord `json:"targets"`
}

// Ledger is the in-memory copy of the on-disk hash record.
// It is read fully on load and replaced as a whole on Save; concurrent
// processes are not coordinated and the last writer wins.
type Ledger struct {
	path string
	doc  ledgerDocument
	now  func() time.Time
}

// TargetKey normalizes a remote target address
func TargetKey(address string) string {
	return strings.TrimSpace(address)
}

// LoadLedger reads the ledger at path. A missing file yields an empty ledger;
// an unreadable document is logged and replaced by an empty one.
func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		doc:  emptyDocument(),
		now:  time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, &domain.IoError{Path: path, Err: err}
	}

	var doc ledgerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Get().Warn("ledger is corrupt, starting fresh", "path", path, "error", err)
		return l, nil
	}

	if doc.Version == "" {
		doc.Version = LedgerVersion
	}
	if doc.Targets == nil {
		doc.Targets = make(map[string]*targetRecord)
	}
	for key, rec := range doc.Targets {
		if rec == nil {
			rec = &targetRecord{}
			doc.Targets[key] = rec
		}
		if rec.Sources == nil {
			rec.Sources = make(map[string]SourceEntry)
		}
	}
	l.doc = doc

	return l, nil
}

func emptyDocument() ledgerDocument {
	return ledgerDocument{
		Version: LedgerVersion,
		Targets: make(map[string]*targetRecord),
	}
}

// Path returns the backing file path
func (l *Ledger) Path() string {
	return l.path
}

// Get returns the last recorded hash for title on target
func (l *Ledger) Get(target, title string) (string, bool) {
	entry, ok := l.Entry(target, title)
	if !ok || entry.Hash == "" {
		return "", false
	}
	return entry.Hash, true
}

// Entry returns the full record for title on target
func (l *Ledger) Entry(target, title string) (SourceEntry, bool) {
	rec, ok := l.doc.Targets[TargetKey(target)]
	if !ok {
		return SourceEntry{}, false
	}
	entry, ok := rec.Sources[title]
	return entry, ok
}

// Put records desc as the latest pushed content for its title
func (l *Ledger) Put(target string, desc domain.FileDescriptor) {
	now := l.now().UTC()
	rec := l.record(target)
	rec.Sources[desc.Title] = SourceEntry{
		Hash:            desc.ContentHash,
		SizeBytes:       desc.SizeBytes,
		ModifiedAtEpoch: desc.ModifiedAtEpoch(),
		SourcePath:      desc.SourcePath,
		UpdatedAt:       now,
	}
	rec.UpdatedAt = now
}

// Remove drops titles from target; unknown titles are ignored
func (l *Ledger) Remove(target string, titles ...string) {
	rec, ok := l.doc.Targets[TargetKey(target)]
	if !ok {
		return
	}
	for _, title := range titles {
		delete(rec.Sources, title)
	}
	rec.UpdatedAt = l.now().UTC()
}

// List returns the recorded titles for target, sorted
func (l *Ledger) List(target string) []string {
	rec, ok := l.doc.Targets[TargetKey(target)]
	if !ok {
		return []string{}
	}
	titles := make([]string, 0, len(rec.Sources))
	for title := range rec.Sources {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// Hashes returns title -> hash for target, the planner's prior state
func (l *Ledger) Hashes(target string) map[string]string {
	out := make(map[string]string)
	rec, ok := l.doc.Targets[TargetKey(target)]
	if !ok {
		return out
	}
	for title, entry := range rec.Sources {
		if entry.Hash != "" {
			out[title] = entry.Hash
		}
	}
	return out
}

// Save writes the whole document to a temp file and renames it into place
func (l *Ledger) Save() error {
	l.doc.Version = LedgerVersion
	l.doc.LastModified = l.now().UTC()

	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.IoError{Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".source_state-*.tmp")
	if err != nil {
		return &domain.IoError{Path: l.path, Err: err}
	}
	tempPath := tmp.Name()

	_, writeErr := tmp.Write(append(data, '\n'))
	syncErr := tmp.Sync()
	closeErr := tmp.Close()

	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(tempPath)
		return &domain.IoError{Path: l.path, Err: err}
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return &domain.IoError{Path: l.path, Err: err}
	}

	return nil
}

func (l *Ledger) record(target string) *targetRecord {
	key := TargetKey(target)
	rec, ok := l.doc.Targets[key]
	if !ok {
		rec = &targetRecord{Sources: make(map[string]SourceEntry)}
		l.doc.Targets[key] = rec
	}
	return rec
}
