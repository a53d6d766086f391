package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ning0612/nbsync/internal/domain"
)

// EnvOverrides are environment variables applied on top of the config file.
// Unset variables leave the file value untouched.
type EnvOverrides struct {
	DataDir       *string `env:"NBSYNC_DATA_DIR"`
	LegacyDataDir *string `env:"NOTEBOOKLM_DATA_DIR"`
	Profile       *string `env:"NBSYNC_PROFILE"`
	LogLevel      *string `env:"NBSYNC_LOG_LEVEL"`
	LogFormat     *string `env:"NBSYNC_LOG_FORMAT"`
	Headless      *bool   `env:"NBSYNC_HEADLESS"`
}

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{"."}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "nbsync"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "nbsync"))
	}
	return paths
}

// Load reads config.yaml, then .env and the environment.
// If path is empty the default locations are searched and a missing file
// means defaults; an explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return finish(v)
}

// LoadFromString parses configuration from a YAML string.
// Environment overrides still apply.
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("profile", d.Profile)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.bin", d.Browser.Bin)
	v.SetDefault("browser.viewport_width", d.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", d.Browser.ViewportHeight)
	v.SetDefault("browser.navigation_timeout", d.Browser.NavigationTimeout)
	v.SetDefault("sync.timeout", d.Sync.Timeout)
	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)
	v.SetDefault("sync.retries", d.Sync.Retries)
	v.SetDefault("sync.backoff", d.Sync.Backoff)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Profile = SanitizeProfileName(cfg.Profile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays NBSYNC_* variables onto cfg
func ApplyEnv(cfg *Config) error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: parsing environment: %v", domain.ErrConfigInvalid, err)
	}

	switch {
	case o.DataDir != nil && *o.DataDir != "":
		cfg.DataDir = *o.DataDir
	case o.LegacyDataDir != nil && *o.LegacyDataDir != "":
		cfg.DataDir = *o.LegacyDataDir
	}
	if o.Profile != nil && *o.Profile != "" {
		cfg.Profile = *o.Profile
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFormat != nil && *o.LogFormat != "" {
		cfg.Log.Format = *o.LogFormat
	}
	if o.Headless != nil {
		cfg.Browser.Headless = *o.Headless
	}
	return nil
}
