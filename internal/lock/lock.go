// Package lock guards a browser profile directory against concurrent use.
// Chromium refuses to share a user-data dir, so two nbsync runs on the same
// profile would fail halfway through a sync.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

const (
	// LockFileName is created inside the profile directory
	LockFileName = ".nbsync.lock"
	// DefaultStaleTimeout applies to locks held from another host
	DefaultStaleTimeout = 30 * time.Minute
)

// Holder describes the process using a profile
type Holder struct {
	PID       int       `json:"pid" yaml:"pid"`
	Hostname  string    `json:"hostname" yaml:"hostname"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	Operation string    `json:"operation,omitempty" yaml:"operation,omitempty"`
	Notebook  string    `json:"notebook,omitempty" yaml:"notebook,omitempty"`
}

// ProfileLock is a file lock scoped to one browser profile
type ProfileLock struct {
	lockPath     string
	staleTimeout time.Duration
	held         *Holder
}

// ForProfile creates a lock for the profile directory, creating it if needed
func ForProfile(profileDir string) (*ProfileLock, error) {
	if profileDir == "" {
		return nil, domain.Validationf("profile directory is required")
	}
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, &domain.IoError{Path: profileDir, Err: err}
	}
	return &ProfileLock{
		lockPath:     filepath.Join(profileDir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// Path returns the lock file location
func (l *ProfileLock) Path() string {
	return l.lockPath
}

// SetStaleTimeout sets the duration after which a foreign-host lock is stale
func (l *ProfileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire takes the profile for op against notebook.
// Re-acquiring from the same instance only updates the recorded operation.
func (l *ProfileLock) Acquire(op, notebook string) error {
	if l.held != nil {
		current, err := l.read()
		if err == nil && l.ownedBy(current) {
			current.Operation = op
			current.Notebook = notebook
			if err := l.write(current); err != nil {
				return err
			}
			l.held = current
			return nil
		}
	}

	if existing, err := l.read(); err == nil {
		if !l.isStale(existing) {
			return &LockError{Holder: existing, Reason: "profile is in use by another process"}
		}
		logger.Get().Warn("removing stale profile lock", "path", l.lockPath, "pid", existing.PID)
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	h := &Holder{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: op,
		Notebook:  notebook,
	}

	// O_EXCL 讓建立檔案成為競爭程序之間的仲裁點
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			other, readErr := l.read()
			if readErr != nil {
				return fmt.Errorf("profile lock race: %w", err)
			}
			return &LockError{Holder: other, Reason: "profile taken by another process during acquisition"}
		}
		return &domain.IoError{Path: l.lockPath, Err: err}
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.held = h
	return nil
}

// Release gives the profile back. Releasing an unheld lock is a no-op.
func (l *ProfileLock) Release() error {
	if l.held == nil {
		return nil
	}

	current, err := l.read()
	if err != nil {
		l.held = nil
		return nil
	}
	if !l.ownedBy(current) {
		l.held = nil
		return fmt.Errorf("profile lock was taken over by PID %d", current.PID)
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	l.held = nil
	return nil
}

// IsLocked reports whether a live holder exists
func (l *ProfileLock) IsLocked() bool {
	h, err := l.read()
	if err != nil {
		return false
	}
	return !l.isStale(h)
}

// Holder returns the live holder, or an error when the profile is free
func (l *ProfileLock) Holder() (*Holder, error) {
	h, err := l.read()
	if err != nil {
		return nil, err
	}
	if l.isStale(h) {
		return nil, errors.New("lock is stale")
	}
	return h, nil
}

// ForceRelease deletes the lock file regardless of owner
func (l *ProfileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.held = nil
	return nil
}

func (l *ProfileLock) read() (*Holder, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &h, nil
}

func (l *ProfileLock) write(h *Holder) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0600)
}

// isStale 同主機檢查 pid，其他主機改用逾時判斷
func (l *ProfileLock) isStale(h *Holder) bool {
	hostname, _ := os.Hostname()
	if h.Hostname == hostname {
		return !processExists(h.PID)
	}
	return time.Since(h.StartTime) > l.staleTimeout
}

func (l *ProfileLock) ownedBy(h *Holder) bool {
	if l.held == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return h.PID == os.Getpid() &&
		h.Hostname == hostname &&
		l.held.StartTime.Equal(h.StartTime)
}

// LockError is returned when the profile is held elsewhere
type LockError struct {
	Holder *Holder
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot lock browser profile: %s (PID %d on %s since %s, running %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Operation,
		)
	}
	return "cannot lock browser profile: " + e.Reason
}

func (e *LockError) Unwrap() error {
	return domain.ErrProfileLocked
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
