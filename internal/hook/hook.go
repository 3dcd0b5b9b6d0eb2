// Package hook runs a user-provided Lua script on task label changes.
//
// A script defines a global function on_tasks_changed(labels) that is
// invoked with the current ordered label list after every notification.
package hook

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/taskwatch/internal/logging"
)

// HandlerName is the global function the hook script must define.
const HandlerName = "on_tasks_changed"

// Errors returned by hook operations.
var (
	ErrHookClosed = errors.New("hook is closed")
	ErrNoHandler  = errors.New("script does not define " + HandlerName)
)

// Hook invokes a Lua handler on label notifications.
//
// gopher-lua's LState is not goroutine-safe, so all calls are serialized
// onto a single worker goroutine that owns the state. Notifications that
// arrive while the queue is full are dropped with a warning rather than
// blocking the notifier.
type Hook struct {
	log   *logging.Logger
	queue chan []string
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// Load compiles and runs the script at path, verifies it defines the
// handler function, and starts the worker goroutine.
func Load(path string, log *logging.Logger) (*Hook, error) {
	if log == nil {
		log = logging.NullLogger
	}

	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading hook script %s: %w", path, err)
	}

	if L.GetGlobal(HandlerName).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoHandler)
	}

	h := &Hook{
		log:   log.WithComponent("hook"),
		queue: make(chan []string, 16),
		done:  make(chan struct{}),
	}

	h.wg.Add(1)
	go h.run(L)

	return h, nil
}

// OnTaskLabelsChanged queues an invocation of the script handler.
func (h *Hook) OnTaskLabelsChanged(labels []string) {
	snapshot := make([]string, len(labels))
	copy(snapshot, labels)

	select {
	case h.queue <- snapshot:
	case <-h.done:
	default:
		h.log.Warn("hook queue full, dropping notification")
	}
}

// Close stops the worker and releases the Lua state. Close is idempotent.
func (h *Hook) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

// run is the worker goroutine owning the Lua state.
func (h *Hook) run(L *lua.LState) {
	defer h.wg.Done()
	defer L.Close()

	for {
		select {
		case <-h.done:
			return
		case labels := <-h.queue:
			h.call(L, labels)
		}
	}
}

// call invokes the script handler with panic recovery; script errors are
// logged and never propagate.
func (h *Hook) call(L *lua.LState, labels []string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("hook panic: %v", r)
		}
	}()

	table := L.NewTable()
	for _, label := range labels {
		table.Append(lua.LString(label))
	}

	L.Push(L.GetGlobal(HandlerName))
	L.Push(table)
	if err := L.PCall(1, 0, nil); err != nil {
		h.log.Error("hook %s: %v", HandlerName, err)
	}
}
