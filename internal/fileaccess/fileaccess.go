// Package fileaccess provides file content access for taskwatch.
//
// The FileAccess interface abstracts the file system so consumers can be
// tested against an in-memory implementation. Reads decode text content:
// UTF-8 byte order marks are stripped and UTF-16 content is converted.
package fileaccess

import "io/fs"

// ErrNotExist is reported by ReadContent when the path does not exist.
// It aliases fs.ErrNotExist so errors.Is matches either.
var ErrNotExist = fs.ErrNotExist

// FileAccess provides access to file content.
type FileAccess interface {
	// Exists returns true if the path exists.
	Exists(path string) bool

	// ReadContent reads the file at path and returns its decoded text content.
	ReadContent(path string) (string, error)

	// WriteContent writes text content to the file at path, creating
	// parent directories as needed.
	WriteContent(path string, content string) error
}
