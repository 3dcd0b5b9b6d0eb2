package taskconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/taskwatch/internal/fileaccess"
	"github.com/dshills/taskwatch/internal/filewatch"
	"github.com/dshills/taskwatch/internal/logging"
)

// fakeWatchService implements filewatch.Service with synchronous,
// manually triggered delivery.
type fakeWatchService struct {
	mu         sync.Mutex
	handlers   []filewatch.Handler
	watched    map[filewatch.Handle]string
	watchCount int
	unwatched  []filewatch.Handle
	nextID     int
}

func newFakeWatchService() *fakeWatchService {
	return &fakeWatchService{watched: make(map[filewatch.Handle]string)}
}

func (s *fakeWatchService) Watch(path string) (filewatch.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.watchCount++
	handle := filewatch.Handle(fmt.Sprintf("h%d", s.nextID))
	s.watched[handle] = path
	return handle, nil
}

func (s *fakeWatchService) Unwatch(handle filewatch.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[handle]; !ok {
		return filewatch.ErrUnknownHandle
	}
	delete(s.watched, handle)
	s.unwatched = append(s.unwatched, handle)
	return nil
}

func (s *fakeWatchService) OnChanges(handler filewatch.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *fakeWatchService) Close() error { return nil }

// emit delivers a change batch to all handlers synchronously.
func (s *fakeWatchService) emit(changes ...filewatch.Change) {
	s.mu.Lock()
	handlers := make([]filewatch.Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()
	for _, h := range handlers {
		h(changes)
	}
}

func (s *fakeWatchService) activeWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

// countingFS wraps MemoryFS counting content reads.
type countingFS struct {
	*fileaccess.MemoryFS
	reads atomic.Int32
}

func (c *countingFS) ReadContent(path string) (string, error) {
	c.reads.Add(1)
	return c.MemoryFS.ReadContent(path)
}

// recordingClient records every notification it receives.
type recordingClient struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *recordingClient) OnTaskLabelsChanged(labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]string, len(labels))
	copy(snapshot, labels)
	c.calls = append(c.calls, snapshot)
}

func (c *recordingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *recordingClient) lastCall() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

type testEnv struct {
	watcher *Watcher
	service *fakeWatchService
	files   *countingFS
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	service := newFakeWatchService()
	files := &countingFS{MemoryFS: fileaccess.NewMemoryFS()}
	logs := &bytes.Buffer{}
	log := logging.NewLogger(logging.LoggerConfig{
		Level:  logging.LogLevelDebug,
		Output: logs,
	})
	w := NewWatcher(service, files, log)
	t.Cleanup(w.Close)
	return &testEnv{watcher: w, service: service, files: files, logs: logs}
}

func labelsEqual(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/work/project")
	want := filepath.Join("/work/project", ".taskwatch", "tasks.json")
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestWatchConfigurationFile_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"build","command":"make"}]}`)

	if !env.watcher.WatchConfigurationFile(root) {
		t.Fatal("WatchConfigurationFile() = false, want true")
	}

	labels := env.watcher.TaskLabels()
	if !labelsEqual(labels, []string{"build"}) {
		t.Errorf("TaskLabels() = %v, want [build]", labels)
	}

	task, ok := env.watcher.Task("build")
	if !ok {
		t.Fatal("Task(build) not found")
	}
	if task.Label != "build" {
		t.Errorf("task.Label = %q, want build", task.Label)
	}
	if cmd, _ := task.Field("command"); cmd != "make" {
		t.Errorf("task command = %v, want make", cmd)
	}

	if _, ok := env.watcher.Task("missing"); ok {
		t.Error("Task(missing) = found, want absent")
	}
}

func TestWatchConfigurationFile_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	exists := env.watcher.WatchConfigurationFile("/work/empty")
	if exists {
		t.Error("WatchConfigurationFile() = true for missing file, want false")
	}
	if len(env.watcher.TaskLabels()) != 0 {
		t.Errorf("TaskLabels() = %v, want empty", env.watcher.TaskLabels())
	}
	if !strings.Contains(env.logs.String(), "does not exist") {
		t.Errorf("expected a missing-file warning, logs:\n%s", env.logs.String())
	}
	// Watch is registered even though the file is missing.
	if env.service.activeWatches() != 1 {
		t.Errorf("active watches = %d, want 1", env.service.activeWatches())
	}
}

func TestWatchConfigurationFile_IdempotentRewatch(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	_ = env.files.WriteContent(ConfigPath(root), `{"tasks":[{"label":"a"}]}`)

	env.watcher.WatchConfigurationFile(root)
	watches := env.service.watchCount
	reads := env.files.reads.Load()

	env.watcher.WatchConfigurationFile(root)

	if env.service.watchCount != watches {
		t.Errorf("second watch of same root registered a new watch (%d -> %d)",
			watches, env.service.watchCount)
	}
	if env.files.reads.Load() != reads {
		t.Errorf("second watch of same root triggered a redundant refresh (%d -> %d reads)",
			reads, env.files.reads.Load())
	}
}

func TestWatchConfigurationFile_RootSwitch(t *testing.T) {
	env := newTestEnv(t)
	_ = env.files.WriteContent(ConfigPath("/work/one"), `{"tasks":[{"label":"one"}]}`)
	_ = env.files.WriteContent(ConfigPath("/work/two"), `{"tasks":[{"label":"two"}]}`)

	env.watcher.WatchConfigurationFile("/work/one")
	reads := env.files.reads.Load()

	env.watcher.WatchConfigurationFile("/work/two")

	if len(env.service.unwatched) != 1 {
		t.Errorf("unwatch calls = %d, want 1", len(env.service.unwatched))
	}
	if env.service.activeWatches() != 1 {
		t.Errorf("active watches = %d, want 1", env.service.activeWatches())
	}
	if got := env.files.reads.Load() - reads; got != 1 {
		t.Errorf("refreshes after root switch = %d, want exactly 1", got)
	}
	if !labelsEqual(env.watcher.TaskLabels(), []string{"two"}) {
		t.Errorf("TaskLabels() = %v, want [two]", env.watcher.TaskLabels())
	}
}

func TestRefresh_DuplicateLabelFiltering(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	_ = env.files.WriteContent(ConfigPath(root),
		`{"tasks":[{"label":"a","n":1},{"label":"b"},{"label":"a","n":2}]}`)

	env.watcher.WatchConfigurationFile(root)

	if !labelsEqual(env.watcher.TaskLabels(), []string{"a", "b"}) {
		t.Errorf("TaskLabels() = %v, want [a b]", env.watcher.TaskLabels())
	}

	// First occurrence wins.
	task, _ := env.watcher.Task("a")
	if n, _ := task.Field("n"); n != float64(1) {
		t.Errorf("task a field n = %v, want 1 (first occurrence)", n)
	}

	if got := strings.Count(env.logs.String(), "duplicate task label"); got != 1 {
		t.Errorf("duplicate errors logged = %d, want exactly 1\nlogs:\n%s", got, env.logs.String())
	}
}

func TestRefresh_ParseFailurePreservesState(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"good"}]}`)
	env.watcher.WatchConfigurationFile(root)

	client := &recordingClient{}
	env.watcher.SetClient(client)
	env.logs.Reset()

	// A keystroke mid-edit leaves the file invalid.
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"good"},`)
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})

	if !labelsEqual(env.watcher.TaskLabels(), []string{"good"}) {
		t.Errorf("TaskLabels() = %v, want map preserved as [good]", env.watcher.TaskLabels())
	}
	if !strings.Contains(env.logs.String(), "offset") {
		t.Errorf("expected syntax error with offset in logs:\n%s", env.logs.String())
	}
	// Client is still notified after the failed refresh.
	if client.callCount() != 1 {
		t.Errorf("client notifications = %d, want 1", client.callCount())
	}
	if !labelsEqual(client.lastCall(), []string{"good"}) {
		t.Errorf("client notified with %v, want [good]", client.lastCall())
	}
}

func TestChangeEvent_DeletionClears(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	client := &recordingClient{}
	env.watcher.SetClient(client)
	reads := env.files.reads.Load()

	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Deleted})

	if len(env.watcher.TaskLabels()) != 0 {
		t.Errorf("TaskLabels() = %v, want empty after deletion", env.watcher.TaskLabels())
	}
	if client.callCount() != 1 || len(client.lastCall()) != 0 {
		t.Errorf("client calls = %d (last %v), want 1 call with empty list",
			client.callCount(), client.lastCall())
	}
	// Deletion clears without attempting a parse.
	if env.files.reads.Load() != reads {
		t.Error("deletion event attempted a file read")
	}
}

func TestChangeEvent_OtherPathIgnored(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	_ = env.files.WriteContent(ConfigPath(root), `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	client := &recordingClient{}
	env.watcher.SetClient(client)

	env.service.emit(filewatch.Change{Path: "/somewhere/else.json", Type: filewatch.Deleted})

	if client.callCount() != 0 {
		t.Errorf("client notified %d times for unrelated path, want 0", client.callCount())
	}
	if !labelsEqual(env.watcher.TaskLabels(), []string{"a"}) {
		t.Errorf("TaskLabels() = %v, want [a]", env.watcher.TaskLabels())
	}
}

func TestChangeEvent_ClientPanicRecovered(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	env.watcher.SetClient(ClientFunc(func([]string) { panic("client bug") }))

	// Must not propagate.
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})

	if !strings.Contains(env.logs.String(), "client bug") {
		t.Errorf("expected recovered panic in logs:\n%s", env.logs.String())
	}
	// The watch registration survives and later events still work.
	client := &recordingClient{}
	env.watcher.SetClient(client)
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})
	if client.callCount() != 1 {
		t.Errorf("client calls after recovered panic = %d, want 1", client.callCount())
	}
	if env.service.activeWatches() != 1 {
		t.Errorf("active watches = %d, want 1", env.service.activeWatches())
	}
}

func TestRefresh_TasksKeyAbsent(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	_ = env.files.WriteContent(path, `{"version":"1.0.0"}`)
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})

	if len(env.watcher.TaskLabels()) != 0 {
		t.Errorf("TaskLabels() = %v, want empty for absent tasks key", env.watcher.TaskLabels())
	}
	if !strings.Contains(env.logs.String(), "empty task list") {
		t.Errorf("expected absent-key warning in logs:\n%s", env.logs.String())
	}
}

func TestRefresh_TasksNotArray(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	_ = env.files.WriteContent(path, `{"tasks":"oops"}`)
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})

	// Treated like a parse failure: mapping untouched.
	if !labelsEqual(env.watcher.TaskLabels(), []string{"a"}) {
		t.Errorf("TaskLabels() = %v, want [a] preserved", env.watcher.TaskLabels())
	}
	if !strings.Contains(env.logs.String(), "not an array") {
		t.Errorf("expected shape error in logs:\n%s", env.logs.String())
	}
}

func TestRefresh_EntryWithoutLabelDropped(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	_ = env.files.WriteContent(ConfigPath(root),
		`{"tasks":[{"label":"a"},{"command":"make"},{"label":42},{"label":"b"}]}`)

	env.watcher.WatchConfigurationFile(root)

	if !labelsEqual(env.watcher.TaskLabels(), []string{"a", "b"}) {
		t.Errorf("TaskLabels() = %v, want [a b]", env.watcher.TaskLabels())
	}
	if got := strings.Count(env.logs.String(), "without a string label"); got != 2 {
		t.Errorf("label errors logged = %d, want 2\nlogs:\n%s", got, env.logs.String())
	}
}

func TestRefresh_CommentsAndTrailingCommas(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	content := `{
	// workspace tasks
	"tasks": [
		{
			"label": "build", /* default */
			"command": "make",
		},
	],
}`
	_ = env.files.WriteContent(ConfigPath(root), content)

	if !env.watcher.WatchConfigurationFile(root) {
		t.Fatal("WatchConfigurationFile() = false, want true")
	}
	if !labelsEqual(env.watcher.TaskLabels(), []string{"build"}) {
		t.Errorf("TaskLabels() = %v, want [build]", env.watcher.TaskLabels())
	}
}

func TestSetClient_ReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[]}`)
	env.watcher.WatchConfigurationFile(root)

	first := &recordingClient{}
	second := &recordingClient{}
	env.watcher.SetClient(first)
	env.watcher.SetClient(second)

	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})

	if first.callCount() != 0 {
		t.Errorf("replaced client notified %d times, want 0", first.callCount())
	}
	if second.callCount() != 1 {
		t.Errorf("current client notified %d times, want 1", second.callCount())
	}
}

func TestClose_TerminalAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	root := "/work/project"
	path := ConfigPath(root)
	_ = env.files.WriteContent(path, `{"tasks":[{"label":"a"}]}`)
	env.watcher.WatchConfigurationFile(root)

	client := &recordingClient{}
	env.watcher.SetClient(client)

	env.watcher.Close()

	if len(env.watcher.TaskLabels()) != 0 {
		t.Errorf("TaskLabels() = %v after Close, want empty", env.watcher.TaskLabels())
	}
	if env.service.activeWatches() != 0 {
		t.Errorf("active watches after Close = %d, want 0", env.service.activeWatches())
	}

	// Events after Close are ignored.
	env.service.emit(filewatch.Change{Path: path, Type: filewatch.Modified})
	if client.callCount() != 0 {
		t.Errorf("client notified after Close: %d calls", client.callCount())
	}

	// Second Close must not panic or unwatch again.
	env.watcher.Close()
	if len(env.service.unwatched) != 1 {
		t.Errorf("unwatch calls = %d, want 1", len(env.service.unwatched))
	}
}

func TestClose_WithoutWatch(t *testing.T) {
	env := newTestEnv(t)
	// Close with no watch ever registered must be safe.
	env.watcher.Close()
	env.watcher.Close()
}

func TestTaskOptions_MarshalJSON(t *testing.T) {
	task := TaskOptions{
		Label:  "build",
		Fields: map[string]any{"label": "build", "command": "make"},
		Source: `{"label":"build","command":"make"}`,
	}

	data, err := task.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != task.Source {
		t.Errorf("MarshalJSON() = %s, want retained source %s", data, task.Source)
	}
}

func TestWatchConfigurationFile_RelativeRoot(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("Chdir() restore error = %v", err)
		}
	})

	service, err := filewatch.NewFSNotifyService(logging.NullLogger,
		filewatch.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewFSNotifyService() error = %v", err)
	}
	defer service.Close()

	watcher := NewWatcher(service, fileaccess.NewOSFS(), logging.NullLogger)
	defer watcher.Close()

	client := &recordingClient{}
	watcher.SetClient(client)

	// Relative root; the backend delivers absolute event paths.
	if watcher.WatchConfigurationFile("project") {
		t.Fatal("WatchConfigurationFile() = true before the file exists")
	}

	dir := filepath.Join(tmpDir, "project", ConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `{"tasks": [{"label": "build", "command": "make"}]}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		labels := watcher.TaskLabels()
		if len(labels) == 1 && labels[0] == "build" {
			if client.callCount() == 0 {
				t.Error("client was not notified")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("TaskLabels() = %v, want [build]", watcher.TaskLabels())
}
