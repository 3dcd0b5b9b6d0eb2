package filewatch

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/taskwatch/internal/logging"
)

// PollingService implements Service by polling file modification times.
// It is the fallback for platforms or paths where fsnotify is unavailable
// (network mounts, some containers).
type PollingService struct {
	mu sync.RWMutex

	config Config
	log    *logging.Logger

	registrations map[Handle]*pollRegistration
	handlers      []Handler

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// pollRegistration tracks the last observed state of one watched file.
type pollRegistration struct {
	path    string
	modTime time.Time
	exists  bool
}

// NewPollingService creates a new polling watch service.
func NewPollingService(log *logging.Logger, opts ...Option) *PollingService {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if log == nil {
		log = logging.NullLogger
	}

	s := &PollingService{
		config:        config,
		log:           log.WithComponent("filewatch"),
		registrations: make(map[Handle]*pollRegistration),
		closeCh:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.pollLoop()

	return s
}

// Ensure PollingService implements Service.
var _ Service = (*PollingService)(nil)

// Watch starts watching a file path.
func (s *PollingService) Watch(path string) (Handle, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrServiceClosed
	}

	reg := &pollRegistration{path: absPath}
	if info, err := os.Stat(absPath); err == nil {
		reg.exists = true
		reg.modTime = info.ModTime()
	}

	handle := Handle(uuid.NewString())
	s.registrations[handle] = reg
	return handle, nil
}

// Unwatch releases a watch registration.
func (s *PollingService) Unwatch(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}

	if _, ok := s.registrations[handle]; !ok {
		return ErrUnknownHandle
	}
	delete(s.registrations, handle)
	return nil
}

// OnChanges registers a handler for change batches.
func (s *PollingService) OnChanges(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close stops the service.
func (s *PollingService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// pollLoop checks watched files at regular intervals.
func (s *PollingService) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.checkAll()
		}
	}
}

// checkAll compares current file state against the last observation and
// delivers one batch for the cycle.
func (s *PollingService) checkAll() {
	s.mu.Lock()
	seen := make(map[string]ChangeType)
	for _, reg := range s.registrations {
		typ, changed := checkFile(reg)
		if !changed {
			continue
		}
		if existing, ok := seen[reg.path]; ok {
			typ = coalesce(existing, typ)
		}
		seen[reg.path] = typ
	}
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	if len(seen) == 0 {
		return
	}

	changes := make([]Change, 0, len(seen))
	for path, typ := range seen {
		changes = append(changes, Change{Path: path, Type: typ})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	for _, handler := range handlers {
		s.safeCall(handler, changes)
	}
}

// checkFile updates a registration from the file system and reports the
// observed transition, if any.
func checkFile(reg *pollRegistration) (ChangeType, bool) {
	info, err := os.Stat(reg.path)

	if err != nil {
		if reg.exists {
			reg.exists = false
			reg.modTime = time.Time{}
			return Deleted, true
		}
		return 0, false
	}

	modTime := info.ModTime()
	switch {
	case !reg.exists:
		reg.exists = true
		reg.modTime = modTime
		return Created, true
	case !modTime.Equal(reg.modTime):
		reg.modTime = modTime
		return Modified, true
	default:
		return 0, false
	}
}

// safeCall invokes a handler with panic recovery.
func (s *PollingService) safeCall(handler Handler, changes []Change) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("change handler panic: %v", r)
		}
	}()
	handler(changes)
}
