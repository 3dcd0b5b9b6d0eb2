// Package filewatch provides file change notification for taskwatch.
//
// A Service watches individual file paths registered by handle and delivers
// batches of change records to registered handlers. Rapid changes are
// coalesced within a debounce window. Two backends are provided: an
// fsnotify-based service and a modification-time polling service for
// platforms or paths where native watching is unavailable.
package filewatch

import (
	"errors"
	"time"
)

// Common errors returned by watch operations.
var (
	ErrServiceClosed = errors.New("watch service is closed")
	ErrUnknownHandle = errors.New("unknown watch handle")
)

// ChangeType represents the type of file change.
type ChangeType int

const (
	// Created indicates the file came into existence.
	Created ChangeType = iota
	// Modified indicates the file content changed.
	Modified
	// Deleted indicates the file was removed.
	Deleted
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change represents a single file change record.
type Change struct {
	// Path is the absolute path of the changed file.
	Path string

	// Type is the type of change.
	Type ChangeType
}

// Handle identifies an active watch registration.
type Handle string

// Handler receives batches of change records.
type Handler func(changes []Change)

// Service watches file paths and notifies handlers of changes.
type Service interface {
	// Watch starts watching a file path and returns a registration handle.
	// The path does not need to exist; creation is reported when it appears.
	Watch(path string) (Handle, error)

	// Unwatch releases a watch registration.
	// Returns ErrUnknownHandle if the handle is not active.
	Unwatch(handle Handle) error

	// OnChanges registers a handler for change batches.
	OnChanges(handler Handler)

	// Close stops the service and releases resources.
	// Close is idempotent.
	Close() error
}

// Config holds watch service configuration.
type Config struct {
	// Debounce is the window within which changes to the same path
	// are coalesced before delivery.
	// Default: 100ms
	Debounce time.Duration

	// PollInterval is the polling interval for the polling backend.
	// Default: 500ms
	PollInterval time.Duration

	// ExcludePatterns are glob patterns matched against file base names.
	// Events for matching files are discarded (editor swap and backup
	// files, for example "*.swp" or "*~").
	ExcludePatterns []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:     100 * time.Millisecond,
		PollInterval: 500 * time.Millisecond,
	}
}

// Option configures a watch service.
type Option func(*Config)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Debounce = d
		}
	}
}

// WithPollInterval sets the polling interval for the polling backend.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithExcludePatterns sets the exclude patterns.
func WithExcludePatterns(patterns []string) Option {
	return func(c *Config) {
		c.ExcludePatterns = patterns
	}
}

// coalesce merges a new change type into a pending one for the same path.
// Deletion takes precedence; a deletion followed by a creation within the
// window is reported as a modification (the file was replaced); a pending
// creation absorbs subsequent modifications.
func coalesce(old, next ChangeType) ChangeType {
	switch {
	case next == Deleted:
		return Deleted
	case old == Deleted && next == Created:
		return Modified
	case old == Created:
		return Created
	default:
		return next
	}
}
