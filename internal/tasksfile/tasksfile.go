// Package tasksfile manages a workspace tasks.json programmatically.
//
// It reads files through the same tolerant comment-stripping path as the
// watcher and edits documents surgically, leaving unrelated parts of the
// file text untouched. Comments are removed by edits; the watcher side
// never rewrites the file and keeps them intact.
package tasksfile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/taskwatch/internal/fileaccess"
	"github.com/dshills/taskwatch/internal/jsonc"
	"github.com/dshills/taskwatch/internal/taskconfig"
)

// Errors returned by tasks file operations.
var (
	ErrFileExists   = errors.New("tasks file already exists")
	ErrFileNotFound = errors.New("tasks file not found")
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrInvalidTask  = errors.New("invalid task definition")
	ErrInvalidShape = errors.New("tasks key is not an array")
)

// ParseError carries the syntax errors of an invalid tasks file.
type ParseError struct {
	// Path is the file that failed to parse.
	Path string
	// Errs are the collected syntax errors.
	Errs []*jsonc.SyntaxError
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%d syntax error(s) in %s (first: %v)", len(e.Errs), e.Path, e.Errs[0])
}

// starterTemplate is the file written by Init. It demonstrates the
// comment and trailing-comma conventions the parser accepts.
const starterTemplate = `{
	// Tasks for this workspace. Each task needs a unique "label";
	// all other fields are passed through unmodified.
	"version": "1.0.0",
	"tasks": [
		{
			"label": "build",
			"command": "make",
		},
		{
			"label": "test",
			"command": "make",
			"args": ["test"],
		},
	],
}
`

// Init writes a starter tasks file for the workspace root.
// Returns ErrFileExists if the file is already present.
func Init(files fileaccess.FileAccess, root string) error {
	path := taskconfig.ConfigPath(root)
	if files.Exists(path) {
		return fmt.Errorf("%s: %w", path, ErrFileExists)
	}
	return files.WriteContent(path, starterTemplate)
}

// Load reads the workspace tasks with the watcher's filtering semantics:
// entries without a string label are dropped and the first occurrence of
// a duplicate label wins.
func Load(files fileaccess.FileAccess, root string) ([]taskconfig.TaskOptions, error) {
	path := taskconfig.ConfigPath(root)
	doc, err := readClean(files, path)
	if err != nil {
		return nil, err
	}

	tasksValue := gjson.Get(doc, "tasks")
	if !tasksValue.Exists() {
		return nil, nil
	}
	if !tasksValue.IsArray() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidShape)
	}

	var tasks []taskconfig.TaskOptions
	seen := make(map[string]bool)
	for _, entry := range tasksValue.Array() {
		label := entry.Get("label")
		if !entry.IsObject() || label.Type != gjson.String || seen[label.Str] {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(entry.Raw), &fields); err != nil {
			continue
		}
		seen[label.Str] = true
		tasks = append(tasks, taskconfig.TaskOptions{
			Label:  label.Str,
			Fields: fields,
			Source: entry.Raw,
		})
	}
	return tasks, nil
}

// Labels returns the surviving task labels in file order.
func Labels(files fileaccess.FileAccess, root string) ([]string, error) {
	tasks, err := Load(files, root)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(tasks))
	for i, task := range tasks {
		labels[i] = task.Label
	}
	return labels, nil
}

// Add appends a task definition to the workspace tasks file, creating the
// file if it does not exist. The definition must be a JSON object with a
// string label not already present.
func Add(files fileaccess.FileAccess, root string, taskJSON string) error {
	if errs := jsonc.Check(taskJSON); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTask, errs[0])
	}
	entry := jsonc.Strip(taskJSON)
	label := gjson.Get(entry, "label")
	if !gjson.Parse(entry).IsObject() || label.Type != gjson.String {
		return fmt.Errorf("%w: missing string label", ErrInvalidTask)
	}

	path := taskconfig.ConfigPath(root)
	doc := `{"version": "1.0.0", "tasks": []}`
	if files.Exists(path) {
		var err error
		doc, err = readClean(files, path)
		if err != nil {
			return err
		}
	}

	for _, existing := range gjson.Get(doc, "tasks").Array() {
		if existing.Get("label").Str == label.Str {
			return fmt.Errorf("%q: %w", label.Str, ErrTaskExists)
		}
	}

	out, err := sjson.SetRaw(doc, "tasks.-1", entry)
	if err != nil {
		return fmt.Errorf("adding task %q: %w", label.Str, err)
	}
	return files.WriteContent(path, string(pretty.Pretty([]byte(out))))
}

// Remove deletes the task with the given label from the tasks file.
func Remove(files fileaccess.FileAccess, root string, label string) error {
	path := taskconfig.ConfigPath(root)
	if !files.Exists(path) {
		return fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}
	doc, err := readClean(files, path)
	if err != nil {
		return err
	}

	index := -1
	for i, entry := range gjson.Get(doc, "tasks").Array() {
		if entry.Get("label").Str == label {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("%q: %w", label, ErrTaskNotFound)
	}

	out, err := sjson.Delete(doc, fmt.Sprintf("tasks.%d", index))
	if err != nil {
		return fmt.Errorf("removing task %q: %w", label, err)
	}
	return files.WriteContent(path, string(pretty.Pretty([]byte(out))))
}

// readClean reads a tasks file and returns its comment-stripped text.
func readClean(files fileaccess.FileAccess, path string) (string, error) {
	if !files.Exists(path) {
		return "", fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}
	content, err := files.ReadContent(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if errs := jsonc.Check(content); len(errs) > 0 {
		return "", &ParseError{Path: path, Errs: errs}
	}
	return jsonc.Strip(content), nil
}
