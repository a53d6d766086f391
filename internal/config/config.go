package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Ning0612/nbsync/internal/domain"
)

// File names derived from the data directory
const (
	LedgerFile   = "source_state.json"
	LibraryFile  = "library.json"
	HistoryFile  = "history.db"
	ProfilesDir  = "profiles"
	ArtifactsDir = "artifacts"
	LogsDir      = "logs"
	NotesDir     = "notes"
	LogFile      = "nbsync.log"
)

// Config represents the complete configuration for nbsync
type Config struct {
	// DataDir holds the ledger, library, history and browser profiles
	DataDir string `mapstructure:"data_dir"`

	// Profile names the browser profile used for the Google session
	Profile string `mapstructure:"profile"`

	Browser BrowserConfig `mapstructure:"browser"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

// BrowserConfig controls the automated browser
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	Bin               string        `mapstructure:"bin"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// SyncConfig holds defaults for remote operations
type SyncConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Retries      int           `mapstructure:"retries"`
	Backoff      time.Duration `mapstructure:"backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

// LogConfig mirrors logger.Config in config-file form
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   bool   `mapstructure:"file"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Profile: "default",
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1280,
			ViewportHeight:    900,
			NavigationTimeout: 60 * time.Second,
		},
		Sync: SyncConfig{
			Timeout:      180 * time.Second,
			PollInterval: 800 * time.Millisecond,
			Retries:      2,
			Backoff:      1500 * time.Millisecond,
			MaxBackoff:   5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDataDir is ~/.config/nbsync, or ./.nbsync when home is unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nbsync"
	}
	return filepath.Join(home, ".config", "nbsync")
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if strings.TrimSpace(c.Profile) == "" {
		return fmt.Errorf("%w: profile cannot be empty", domain.ErrConfigInvalid)
	}
	if SanitizeProfileName(c.Profile) != c.Profile {
		return fmt.Errorf("%w: invalid profile name: %s", domain.ErrConfigInvalid, c.Profile)
	}

	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("%w: viewport must not be negative", domain.ErrConfigInvalid)
	}
	if c.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("%w: browser.navigation_timeout must not be negative", domain.ErrConfigInvalid)
	}

	if c.Sync.Timeout < 0 {
		return fmt.Errorf("%w: sync.timeout must not be negative", domain.ErrConfigInvalid)
	}
	if c.Sync.PollInterval < 0 {
		return fmt.Errorf("%w: sync.poll_interval must not be negative", domain.ErrConfigInvalid)
	}
	if c.Sync.Retries < 0 {
		return fmt.Errorf("%w: sync.retries must not be negative", domain.ErrConfigInvalid)
	}
	if c.Sync.Backoff < 0 || c.Sync.MaxBackoff < 0 {
		return fmt.Errorf("%w: sync backoff must not be negative", domain.ErrConfigInvalid)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %s", domain.ErrConfigInvalid, c.Log.Format)
	}
	return nil
}

// LedgerPath is the source state file
func (c *Config) LedgerPath() string { return filepath.Join(c.DataDir, LedgerFile) }

// LibraryPath is the notebook library file
func (c *Config) LibraryPath() string { return filepath.Join(c.DataDir, LibraryFile) }

// HistoryPath is the execution history database
func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, HistoryFile) }

// ProfilesRoot holds every browser profile
func (c *Config) ProfilesRoot() string { return filepath.Join(c.DataDir, ProfilesDir) }

// ProfilePath is the user-data dir of the configured browser profile
func (c *Config) ProfilePath() string { return filepath.Join(c.ProfilesRoot(), c.Profile) }

// ArtifactsPath is where failure screenshots and HTML dumps go
func (c *Config) ArtifactsPath() string { return filepath.Join(c.DataDir, ArtifactsDir) }

// LogPath is the rotated log file
func (c *Config) LogPath() string { return filepath.Join(c.DataDir, LogsDir, LogFile) }

// NotesPath receives answers exported with --save-notes
func (c *Config) NotesPath() string { return filepath.Join(c.DataDir, NotesDir) }

var profileUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeProfileName lowercases a profile name and reduces it to a safe
// directory name; empty input becomes "default"
func SanitizeProfileName(name string) string {
	raw := strings.ToLower(strings.TrimSpace(name))
	safe := strings.Trim(profileUnsafe.ReplaceAllString(raw, "-"), "-")
	if safe == "" {
		return "default"
	}
	return safe
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
