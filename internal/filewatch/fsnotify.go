package filewatch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tidwall/match"

	"github.com/dshills/taskwatch/internal/logging"
)

// FSNotifyService implements Service using fsnotify.
//
// fsnotify cannot watch a path that does not exist yet, so each registered
// file is tracked through its deepest existing ancestor directory. As
// directories appear or disappear the registration is re-armed, and
// creation or deletion of the registered file is synthesized from directory
// events.
type FSNotifyService struct {
	mu sync.RWMutex

	watcher *fsnotify.Watcher
	config  Config
	log     *logging.Logger

	// Active registrations by handle
	registrations map[Handle]*registration

	// Reference counts for directories added to fsnotify
	dirRefs map[string]int

	handlers []Handler

	// Pending coalesced changes
	pendingMu sync.Mutex
	pending   map[string]pendingChange

	// Lifecycle
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// registration tracks one watched file.
type registration struct {
	// path is the absolute path of the registered file.
	path string

	// armedDir is the deepest existing ancestor directory currently
	// added to fsnotify for this registration.
	armedDir string

	// exists is the last observed existence of the file.
	exists bool
}

// pendingChange is a coalesced change awaiting delivery.
type pendingChange struct {
	typ  ChangeType
	when time.Time
}

// NewFSNotifyService creates a new fsnotify-based watch service.
func NewFSNotifyService(log *logging.Logger, opts ...Option) (*FSNotifyService, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if log == nil {
		log = logging.NullLogger
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &FSNotifyService{
		watcher:       fsw,
		config:        config,
		log:           log.WithComponent("filewatch"),
		registrations: make(map[Handle]*registration),
		dirRefs:       make(map[string]int),
		pending:       make(map[string]pendingChange),
		closeCh:       make(chan struct{}),
	}

	s.wg.Add(2)
	go s.processLoop()
	go s.flushLoop()

	return s, nil
}

// Ensure FSNotifyService implements Service.
var _ Service = (*FSNotifyService)(nil)

// Watch starts watching a file path.
func (s *FSNotifyService) Watch(path string) (Handle, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrServiceClosed
	}

	reg := &registration{
		path:     absPath,
		armedDir: deepestExistingDir(filepath.Dir(absPath)),
	}
	if _, err := os.Stat(absPath); err == nil {
		reg.exists = true
	}
	s.addDirLocked(reg.armedDir)

	handle := Handle(uuid.NewString())
	s.registrations[handle] = reg
	return handle, nil
}

// Unwatch releases a watch registration.
func (s *FSNotifyService) Unwatch(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}

	reg, ok := s.registrations[handle]
	if !ok {
		return ErrUnknownHandle
	}

	s.removeDirLocked(reg.armedDir)
	delete(s.registrations, handle)
	return nil
}

// OnChanges registers a handler for change batches.
func (s *FSNotifyService) OnChanges(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close stops the service.
func (s *FSNotifyService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	s.wg.Wait()
	return s.watcher.Close()
}

// addDirLocked adds a directory to fsnotify, reference counted.
// Caller must hold s.mu.
func (s *FSNotifyService) addDirLocked(dir string) {
	s.dirRefs[dir]++
	if s.dirRefs[dir] == 1 {
		if err := s.watcher.Add(dir); err != nil {
			s.log.Warn("watching directory %s: %v", dir, err)
		}
	}
}

// removeDirLocked drops a directory reference, removing the fsnotify watch
// when the count reaches zero. Caller must hold s.mu.
func (s *FSNotifyService) removeDirLocked(dir string) {
	s.dirRefs[dir]--
	if s.dirRefs[dir] <= 0 {
		delete(s.dirRefs, dir)
		// The directory may already be gone; the watch died with it.
		_ = s.watcher.Remove(dir)
	}
}

// deepestExistingDir walks up from dir to the deepest directory that exists.
func deepestExistingDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// processLoop handles incoming fsnotify events.
func (s *FSNotifyService) processLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closeCh:
			return

		case fsEvent, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(fsEvent)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watch error: %v", err)
		}
	}
}

// handleFSEvent maps an fsnotify event to registered file changes.
func (s *FSNotifyService) handleFSEvent(fsEvent fsnotify.Event) {
	if fsEvent.Op.Has(fsnotify.Chmod) && fsEvent.Op&^fsnotify.Chmod == 0 {
		return
	}
	if s.excluded(fsEvent.Name) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.registrations {
		if fsEvent.Name == reg.path {
			s.handleFileEventLocked(reg, fsEvent.Op)
			continue
		}
		if isAncestorOf(fsEvent.Name, reg.path) {
			s.rearmLocked(reg)
		}
	}
}

// handleFileEventLocked queues a change for a direct event on the
// registered file. Caller must hold s.mu.
func (s *FSNotifyService) handleFileEventLocked(reg *registration, op fsnotify.Op) {
	switch {
	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		reg.exists = false
		s.queue(reg.path, Deleted)
	case op.Has(fsnotify.Create):
		reg.exists = true
		s.queue(reg.path, Created)
	case op.Has(fsnotify.Write):
		reg.exists = true
		s.queue(reg.path, Modified)
	}
}

// rearmLocked re-resolves the deepest existing ancestor for a registration
// after a directory on its path changed, and synthesizes creation or
// deletion of the registered file. Caller must hold s.mu.
func (s *FSNotifyService) rearmLocked(reg *registration) {
	armed := deepestExistingDir(filepath.Dir(reg.path))
	if armed != reg.armedDir {
		s.removeDirLocked(reg.armedDir)
		s.addDirLocked(armed)
		reg.armedDir = armed
	}

	_, err := os.Stat(reg.path)
	exists := err == nil
	switch {
	case exists && !reg.exists:
		reg.exists = true
		s.queue(reg.path, Created)
	case !exists && reg.exists:
		reg.exists = false
		s.queue(reg.path, Deleted)
	}
}

// excluded checks the file base name against the exclude patterns.
func (s *FSNotifyService) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range s.config.ExcludePatterns {
		if match.Match(base, pattern) {
			return true
		}
	}
	return false
}

// queue records a pending change, coalescing with any prior change for
// the same path.
func (s *FSNotifyService) queue(path string, typ ChangeType) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if existing, ok := s.pending[path]; ok {
		typ = coalesce(existing.typ, typ)
	}
	s.pending[path] = pendingChange{typ: typ, when: time.Now()}
}

// flushLoop delivers coalesced changes once they have been stable for the
// debounce window.
func (s *FSNotifyService) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// flush delivers pending changes older than the debounce window.
func (s *FSNotifyService) flush() {
	threshold := time.Now().Add(-s.config.Debounce)

	s.pendingMu.Lock()
	var changes []Change
	for path, pc := range s.pending {
		if pc.when.Before(threshold) {
			changes = append(changes, Change{Path: path, Type: pc.typ})
			delete(s.pending, path)
		}
	}
	s.pendingMu.Unlock()

	if len(changes) == 0 {
		return
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	s.deliver(changes)
}

// deliver sends a change batch to all handlers with panic recovery.
func (s *FSNotifyService) deliver(changes []Change) {
	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, handler := range handlers {
		s.safeCall(handler, changes)
	}
}

// safeCall invokes a handler with panic recovery so one handler cannot
// kill the delivery goroutine.
func (s *FSNotifyService) safeCall(handler Handler, changes []Change) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("change handler panic: %v", r)
		}
	}()
	handler(changes)
}

// isAncestorOf reports whether dir is an ancestor directory of path.
func isAncestorOf(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
