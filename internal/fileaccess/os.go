package fileaccess

import (
	"fmt"
	"os"
	"path/filepath"
)

// OSFS implements FileAccess using the operating system's file system.
type OSFS struct{}

// NewOSFS creates a new OS file access.
func NewOSFS() *OSFS {
	return &OSFS{}
}

// Ensure OSFS implements FileAccess.
var _ FileAccess = (*OSFS)(nil)

// Exists returns true if the path exists.
func (f *OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadContent reads and decodes the file at path.
func (f *OSFS) ReadContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content, err := DecodeContent(data)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// WriteContent writes content to path, creating parent directories.
func (f *OSFS) WriteContent(path string, content string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0644)
}
