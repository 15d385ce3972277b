// Package app ties the framework together: it owns the loop pool and the
// servers, and runs them until a signal or an explicit Stop.
package app

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/chmicro/chmicro/core/ioloop"
	"github.com/chmicro/chmicro/core/logging"
)

// Server is anything the app starts and stops with its lifecycle; the HTTP
// server satisfies it.
type Server interface {
	Start()
	Stop()
}

// Only one App at a time dispatches OS signals. The slot is claimed with a
// compare-and-swap on Run entry and released on Run exit; a second App
// running concurrently leaves the active one in place and receives no
// signals.
var activeApp atomic.Pointer[App]

// App owns the loop pool and the registered servers.
type App struct {
	opts    Options
	pool    *ioloop.Pool
	servers []Server

	stopRequested atomic.Bool
	mu            sync.Mutex
	stopped       bool
	stoppedCond   *sync.Cond
}

// New creates an app. The pool is sized from IoThreads; 0 means hardware
// concurrency with a floor of 1.
func New(opts Options) (*App, error) {
	logging.Init(opts.LogLevel)

	n := opts.IoThreads
	if n == 0 {
		n = runtime.NumCPU()
		if n < 1 {
			n = 1
		}
	}
	pool, err := ioloop.NewPool(n)
	if err != nil {
		return nil, err
	}

	a := &App{opts: opts, pool: pool}
	a.stoppedCond = sync.NewCond(&a.mu)
	return a, nil
}

// Io returns the loop pool for wiring servers.
func (a *App) Io() *ioloop.Pool { return a.pool }

// AddServer registers a server. Call before Run.
func (a *App) AddServer(s Server) {
	a.servers = append(a.servers, s)
}

// Run starts the pool and the servers, then blocks until Stop completes.
// While running, the app handles SIGINT and SIGTERM by calling Stop exactly
// once. Run always returns 0, suitable as a process exit code.
func (a *App) Run() int {
	if a.stopRequested.Load() {
		return 0
	}

	registered := activeApp.CompareAndSwap(nil, a)

	var sigCh chan os.Signal
	if registered {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			if _, ok := <-sigCh; ok {
				if app := activeApp.Load(); app != nil {
					app.Stop()
				}
			}
		}()
	}

	a.pool.Start()
	for _, s := range a.servers {
		s.Start()
	}

	a.mu.Lock()
	for !a.stopped {
		a.stoppedCond.Wait()
	}
	a.mu.Unlock()

	if registered {
		signal.Stop(sigCh)
		close(sigCh)
		activeApp.CompareAndSwap(a, nil)
	}
	return 0
}

// Stop shuts everything down: servers first, then the loop pool. The first
// caller wins; later calls are no-ops. Safe from any goroutine, including
// the signal handler.
func (a *App) Stop() {
	if !a.stopRequested.CompareAndSwap(false, true) {
		return
	}

	logging.Info("stopping app")
	for _, s := range a.servers {
		s.Stop()
	}
	a.pool.Stop()
	logging.Info("stopped")

	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.stoppedCond.Broadcast()
}
