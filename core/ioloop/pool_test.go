package ioloop

import (
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmicro/chmicro/core/status"
)

func TestNewPoolRejectsZero(t *testing.T) {
	_, err := NewPool(0)
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))

	_, err = NewPool(-1)
	require.Error(t, err)
}

func TestNextRoundRobin(t *testing.T) {
	p, err := NewPool(3)
	require.NoError(t, err)
	defer p.Stop()

	seen := map[*Loop]int{}
	for i := 0; i < 9; i++ {
		seen[p.Next()]++
	}
	assert.Len(t, seen, 3, "all loops should be handed out")
	for _, n := range seen {
		assert.Equal(t, 3, n)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	defer leaktest.Check(t)()

	p, err := NewPool(2)
	require.NoError(t, err)

	p.Start()
	p.Start() // no-op

	done := make(chan struct{})
	p.Next().Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task did not run")
	}

	p.Stop()
	p.Stop() // no-op
}

func TestStopJoinsWorkers(t *testing.T) {
	defer leaktest.Check(t)()

	p, err := NewPool(4)
	require.NoError(t, err)
	p.Start()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		p.Next().Submit(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	wg.Wait()
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 16, ran)
}

func TestTasksSerializedPerLoop(t *testing.T) {
	defer leaktest.Check(t)()

	p, err := NewPool(1)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	loop := p.Next()
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		loop.Submit(func() {
			defer wg.Done()
			order = append(order, i) // no lock: single loop thread
		})
	}
	wg.Wait()

	require.Len(t, order, 8)
	for i, v := range order {
		assert.Equal(t, i, v, "tasks must run in submission order")
	}
}
