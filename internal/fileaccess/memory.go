package fileaccess

import (
	"io/fs"
	"sync"
)

// MemoryFS implements FileAccess with an in-memory file map.
// It is safe for concurrent use and serves as the test double for
// every FileAccess consumer.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemoryFS creates a new in-memory file access.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string]string),
	}
}

// Ensure MemoryFS implements FileAccess.
var _ FileAccess = (*MemoryFS)(nil)

// Exists returns true if the path exists.
func (f *MemoryFS) Exists(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.files[path]
	return ok
}

// ReadContent returns the content of the file at path.
func (f *MemoryFS) ReadContent(path string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	content, ok := f.files[path]
	if !ok {
		return "", &fs.PathError{Op: "open", Path: path, Err: ErrNotExist}
	}
	return content, nil
}

// WriteContent stores content at path.
func (f *MemoryFS) WriteContent(path string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func (f *MemoryFS) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

// Paths returns all stored file paths.
func (f *MemoryFS) Paths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	return paths
}
