// Package taskconfig watches a workspace task configuration file.
//
// Each workspace root carries its task definitions in
// <root>/.taskwatch/tasks.json, a JSON document that permits comments and
// trailing commas. The Watcher keeps an in-memory label to task mapping
// consistent with the last successfully parsed file contents and notifies
// a registered client whenever the label set may have changed.
//
// The refresh is transactional: a parse or read failure leaves the mapping
// untouched, so a user editing the file under autosave never loses task
// availability to transiently invalid JSON.
package taskconfig

import "path/filepath"

const (
	// ConfigDirName is the workspace subdirectory holding the config file.
	ConfigDirName = ".taskwatch"

	// ConfigFileName is the task configuration file name.
	ConfigFileName = "tasks.json"
)

// ConfigPath returns the task configuration path for a workspace root.
// It is a pure function of the root string and performs no file system
// access.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigDirName, ConfigFileName)
}

// TaskOptions is one task definition from the configuration file.
// Beyond the label, task fields are opaque to this package and round-trip
// unmodified: MarshalJSON returns the original source text of the entry.
type TaskOptions struct {
	// Label is the unique task name.
	Label string

	// Fields holds the decoded task definition, including the label.
	Fields map[string]any

	// Source is the original JSON text of the task entry, with comments
	// already stripped.
	Source string
}

// MarshalJSON returns the retained source text of the task entry.
func (t TaskOptions) MarshalJSON() ([]byte, error) {
	return []byte(t.Source), nil
}

// Field returns a decoded task field by name.
func (t TaskOptions) Field(name string) (any, bool) {
	v, ok := t.Fields[name]
	return v, ok
}

// Client receives task label notifications. Labels are delivered in the
// insertion order of the most recent successful parse.
type Client interface {
	OnTaskLabelsChanged(labels []string)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(labels []string)

// OnTaskLabelsChanged implements Client.
func (f ClientFunc) OnTaskLabelsChanged(labels []string) {
	f(labels)
}
