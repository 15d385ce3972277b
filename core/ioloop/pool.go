package ioloop

import (
	"runtime"
	"sync/atomic"

	"github.com/creachadair/taskgroup"

	"github.com/chmicro/chmicro/core/status"
)

// Pool owns N event loops, each run by one worker thread once started.
// Next hands out loops round-robin; Start and Stop are idempotent.
type Pool struct {
	loops   []*Loop
	cursor  atomic.Uint64
	started atomic.Bool
	workers *taskgroup.Group
}

// NewPool creates a pool of n loops. n must be at least 1.
func NewPool(n int) (*Pool, error) {
	if n < 1 {
		return nil, status.New(status.InvalidArgument, "ioloop: pool size must be at least 1")
	}

	loops := make([]*Loop, 0, n)
	for i := 0; i < n; i++ {
		p, err := NewPoller()
		if err != nil {
			for _, l := range loops {
				l.poller.Close()
			}
			return nil, status.Errorf(status.Internal, "ioloop: poller: %v", err)
		}
		loops = append(loops, newLoop(p))
	}
	return &Pool{loops: loops}, nil
}

// Size returns the number of loops.
func (p *Pool) Size() int { return len(p.loops) }

// Next returns the loop selected by a relaxed round-robin cursor. Concurrent
// callers each get some loop; no ordering between them is guaranteed.
func (p *Pool) Next() *Loop {
	idx := p.cursor.Add(1) - 1
	return p.loops[idx%uint64(len(p.loops))]
}

// Start spawns one worker thread per loop. A second call is a no-op.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for _, l := range p.loops {
		l.keeper.Store(true)
	}
	p.workers = taskgroup.New(nil)
	for _, l := range p.loops {
		loop := l
		p.workers.Run(func() {
			// One loop, one thread: handlers never migrate mid-connection.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			loop.run()
		})
	}
}

// Stop drops the work keepers, waits for every worker to exit, and closes
// the pollers. A second call, or a call before Start, is a no-op.
func (p *Pool) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}

	for _, l := range p.loops {
		l.keeper.Store(false)
	}
	p.workers.Wait()
	for _, l := range p.loops {
		l.poller.Close()
	}
}
