package taskconfig

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/dshills/taskwatch/internal/fileaccess"
	"github.com/dshills/taskwatch/internal/filewatch"
	"github.com/dshills/taskwatch/internal/jsonc"
	"github.com/dshills/taskwatch/internal/logging"
)

// Watcher maintains a watch on one task configuration file and keeps the
// label to task mapping consistent with its last successfully parsed
// contents. Collaborators are constructor-injected; the Watcher registers
// itself as a change handler with the watch service.
type Watcher struct {
	mu sync.Mutex

	watch filewatch.Service
	files fileaccess.FileAccess
	log   *logging.Logger

	// The single currently watched path and its registration handle.
	watchedPath string
	handle      filewatch.Handle

	// Label to task mapping plus insertion order of the last good parse.
	tasks map[string]TaskOptions
	order []string

	// The single notification target.
	client Client

	closed bool
}

// NewWatcher creates a task configuration watcher using the given watch
// service, file access, and logger.
func NewWatcher(watch filewatch.Service, files fileaccess.FileAccess, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.NullLogger
	}
	w := &Watcher{
		watch: watch,
		files: files,
		log:   log.WithComponent("taskconfig"),
		tasks: make(map[string]TaskOptions),
	}
	watch.OnChanges(w.handleChanges)
	return w
}

// WatchConfigurationFile points the watcher at the task configuration file
// of the given workspace root. Watching the root already watched is a
// no-op; a different root tears down the previous registration, registers
// the new path, and triggers one refresh attempt (a refresh against a
// missing file leaves the mapping untouched).
//
// Returns whether the configuration file currently exists, independent of
// watch registration success.
func (w *Watcher) WatchConfigurationFile(root string) bool {
	path := ConfigPath(root)
	// Watch backends deliver change events with absolute paths; the watched
	// path must match them or every event gets filtered out.
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	w.mu.Lock()
	if !w.closed && path != w.watchedPath {
		if w.handle != "" {
			if err := w.watch.Unwatch(w.handle); err != nil {
				w.log.Warn("releasing watch on %s: %v", w.watchedPath, err)
			}
			w.handle = ""
		}
		handle, err := w.watch.Watch(path)
		if err != nil {
			w.log.Error("watching %s: %v", path, err)
		} else {
			w.handle = handle
		}
		w.watchedPath = path
		w.refreshLocked()
	}
	w.mu.Unlock()

	exists := w.files.Exists(path)
	if !exists {
		w.log.Warn("task configuration file %s does not exist", path)
	}
	return exists
}

// SetClient registers the notification target, replacing any previous one.
func (w *Watcher) SetClient(client Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.client = client
}

// TaskLabels returns the current task labels in the insertion order of the
// most recent successful parse.
func (w *Watcher) TaskLabels() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.labelsLocked()
}

// Task returns the task definition for a label.
func (w *Watcher) Task(label string) (TaskOptions, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	task, ok := w.tasks[label]
	return task, ok
}

// Close releases the watch registration, clears the task mapping, and
// clears the client reference. Close is idempotent.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	if w.handle != "" {
		if err := w.watch.Unwatch(w.handle); err != nil {
			w.log.Warn("releasing watch on %s: %v", w.watchedPath, err)
		}
		w.handle = ""
	}
	w.watchedPath = ""
	w.tasks = make(map[string]TaskOptions)
	w.order = nil
	w.client = nil
}

// handleChanges is the change handler registered with the watch service.
// The service delivers changes for any path it watches; this watcher
// filters the batch down to its one path.
func (w *Watcher) handleChanges(changes []filewatch.Change) {
	for _, change := range changes {
		w.handleChange(change)
	}
}

// handleChange processes one change record. Panics from handling,
// including from the client callback, are recovered and logged so a
// malformed event can never kill the dispatch loop or the registration.
func (w *Watcher) handleChange(change filewatch.Change) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("handling change for %s: %v", change.Path, r)
		}
	}()

	w.mu.Lock()
	if w.closed || change.Path != w.watchedPath {
		w.mu.Unlock()
		return
	}

	if change.Type == filewatch.Deleted {
		w.tasks = make(map[string]TaskOptions)
		w.order = nil
	} else {
		w.refreshLocked()
	}

	labels := w.labelsLocked()
	client := w.client
	w.mu.Unlock()

	// Notify after every deletion and refresh attempt, successful or not;
	// the client decides whether anything changed.
	if client != nil {
		client.OnTaskLabelsChanged(labels)
	}
}

// refreshLocked re-reads and re-parses the watched file. The mapping is
// replaced only at the very end of a fully successful parse; any earlier
// failure leaves it untouched. Caller must hold w.mu.
func (w *Watcher) refreshLocked() {
	path := w.watchedPath

	if !w.files.Exists(path) {
		return
	}

	content, err := w.files.ReadContent(path)
	if err != nil {
		w.log.Error("reading %s: %v", path, err)
		return
	}

	if errs := jsonc.Check(content); len(errs) > 0 {
		for _, e := range errs {
			w.log.Error("%s: %v", path, e)
		}
		return
	}

	clean := jsonc.Strip(content)
	tasksValue := gjson.Get(clean, "tasks")
	if !tasksValue.Exists() {
		w.log.Warn("%s has no %q key, treating as empty task list", path, "tasks")
		w.tasks = make(map[string]TaskOptions)
		w.order = nil
		return
	}
	if !tasksValue.IsArray() {
		w.log.Error("%s: %q is not an array", path, "tasks")
		return
	}

	tasks := make(map[string]TaskOptions)
	var order []string
	for _, entry := range tasksValue.Array() {
		if !entry.IsObject() {
			w.log.Error("%s: task entry %s is not an object", path, entry.Raw)
			continue
		}
		label := entry.Get("label")
		if label.Type != gjson.String {
			w.log.Error("%s: task entry without a string label", path)
			continue
		}
		if _, dup := tasks[label.Str]; dup {
			// First occurrence wins.
			w.log.Error("%s: duplicate task label %q", path, label.Str)
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(entry.Raw), &fields); err != nil {
			w.log.Error("%s: decoding task %q: %v", path, label.Str, err)
			continue
		}

		tasks[label.Str] = TaskOptions{
			Label:  label.Str,
			Fields: fields,
			Source: entry.Raw,
		}
		order = append(order, label.Str)
	}

	// The single mutation point: replace the mapping wholesale.
	w.tasks = tasks
	w.order = order
}

// labelsLocked returns a copy of the current label order.
// Caller must hold w.mu.
func (w *Watcher) labelsLocked() []string {
	labels := make([]string, len(w.order))
	copy(labels, w.order)
	return labels
}
