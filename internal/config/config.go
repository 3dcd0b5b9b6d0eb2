// Package config loads taskwatch daemon settings.
//
// Settings come from an optional TOML file overridden by TASKWATCH_*
// environment variables. A missing config file is not an error; defaults
// apply.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Errors returned by configuration loading.
var (
	ErrInvalidBackend  = errors.New("invalid watch backend")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Watch backends.
const (
	BackendFSNotify = "fsnotify"
	BackendPolling  = "polling"
)

// Config holds the daemon settings.
type Config struct {
	// Root is the workspace root to watch.
	Root string `toml:"root"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// Backend selects the watch backend: fsnotify or polling.
	Backend string `toml:"backend"`

	// PollIntervalMS is the polling backend interval in milliseconds.
	PollIntervalMS int `toml:"poll_interval_ms"`

	// DebounceMS is the change coalescing window in milliseconds.
	DebounceMS int `toml:"debounce_ms"`

	// HookScript is an optional Lua hook script path.
	HookScript string `toml:"hook_script"`

	// ExcludePatterns filters watch events by file base name.
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel:        "info",
		Backend:         BackendFSNotify,
		PollIntervalMS:  500,
		DebounceMS:      100,
		ExcludePatterns: []string{"*.swp", "*.swx", "*~", "*.tmp"},
	}
}

// PollInterval returns the polling interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Debounce returns the coalescing window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFSNotify, BackendPolling:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if c.PollIntervalMS <= 0 || c.DebounceMS <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// FileSystem is the file access used by the loader.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Load reads the configuration from path (an empty path skips the file),
// applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	return LoadWithFS(OSFS{}, path)
}

// LoadWithFS is Load with a custom file system.
func LoadWithFS(fsys FileSystem, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := fsys.ReadFile(path)
		switch {
		case err != nil && os.IsNotExist(err):
			// Missing config file, defaults apply
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, &ParseError{Path: path, Message: err.Error(), Err: err}
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides settings from TASKWATCH_* environment variables.
// Malformed numeric values are ignored.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("TASKWATCH_ROOT"); ok {
		cfg.Root = v
	}
	if v, ok := os.LookupEnv("TASKWATCH_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("TASKWATCH_BACKEND"); ok {
		cfg.Backend = v
	}
	if v, ok := os.LookupEnv("TASKWATCH_HOOK"); ok {
		cfg.HookScript = v
	}
	if v, ok := os.LookupEnv("TASKWATCH_POLL_INTERVAL_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalMS = n
		}
	}
	if v, ok := os.LookupEnv("TASKWATCH_DEBOUNCE_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DebounceMS = n
		}
	}
	if v, ok := os.LookupEnv("TASKWATCH_EXCLUDE"); ok {
		var patterns []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		cfg.ExcludePatterns = patterns
	}
}
