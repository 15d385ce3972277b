package ioloop

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/chmicro/chmicro/core/logging"
)

// How long one poll cycle blocks. Tasks submitted from other threads are
// picked up at the top of the next cycle, so this bounds their latency.
const pollIntervalMs = 100

// EventHandler consumes readiness events for one registered descriptor.
// Handlers run on the loop thread only.
type EventHandler func(Event)

// Loop is a single-threaded reactor: one poller, a registry of descriptor
// handlers, and a queue of submitted tasks drained between poll cycles.
//
// The work keeper holds an idle loop open; the pool drops it on Stop, after
// which the loop drains once more, aborts remaining descriptors, and exits.
type Loop struct {
	poller Poller

	mu       sync.Mutex
	tasks    *queue.Queue // of func()
	handlers map[int]EventHandler

	keeper atomic.Bool
}

func newLoop(p Poller) *Loop {
	return &Loop{
		poller:   p,
		tasks:    queue.New(),
		handlers: make(map[int]EventHandler),
	}
}

// Submit enqueues fn to run on the loop thread within one poll interval.
// Safe from any thread.
func (l *Loop) Submit(fn func()) {
	l.mu.Lock()
	l.tasks.Add(fn)
	l.mu.Unlock()
}

// Register watches fd for read readiness and routes its events to h.
// The caller keeps ownership of fd until Deregister or loop exit; a loop
// that stops with fd still registered closes it (pending I/O is aborted).
func (l *Loop) Register(fd int, h EventHandler) error {
	l.mu.Lock()
	l.handlers[fd] = h
	l.mu.Unlock()

	if err := l.poller.Add(fd); err != nil {
		l.mu.Lock()
		delete(l.handlers, fd)
		l.mu.Unlock()
		return err
	}
	return nil
}

// Deregister stops watching fd. The descriptor is not closed.
func (l *Loop) Deregister(fd int) {
	l.mu.Lock()
	delete(l.handlers, fd)
	l.mu.Unlock()
	l.poller.Remove(fd)
}

// SetWriteInterest toggles write-readiness events for fd.
func (l *Loop) SetWriteInterest(fd int, enabled bool) error {
	return l.poller.SetWriteInterest(fd, enabled)
}

func (l *Loop) handler(fd int) EventHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers[fd]
}

func (l *Loop) drainTasks() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks.Remove().(func())
		l.mu.Unlock()
		fn()
	}
}

// run is the loop body; the pool runs it on a dedicated locked thread.
func (l *Loop) run() {
	for {
		l.drainTasks()

		events, err := l.poller.Wait(pollIntervalMs)
		if err != nil {
			logging.Warn("ioloop: poll failed", "error", err)
			continue
		}
		for _, ev := range events {
			if h := l.handler(ev.FD); h != nil {
				h(ev)
			}
		}

		if !l.keeper.Load() {
			l.drainTasks()
			l.abortRemaining()
			return
		}
	}
}

// abortRemaining closes descriptors still registered at loop exit.
func (l *Loop) abortRemaining() {
	l.mu.Lock()
	fds := make([]int, 0, len(l.handlers))
	for fd := range l.handlers {
		fds = append(fds, fd)
	}
	l.handlers = make(map[int]EventHandler)
	l.mu.Unlock()

	for _, fd := range fds {
		l.poller.Remove(fd)
		unix.Close(fd)
	}
}
