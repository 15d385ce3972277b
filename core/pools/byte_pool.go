// Package pools provides byte-buffer reuse for the HTTP session layer.
package pools

import "sync"

// BytePool is a multi-tiered byte slice pool keyed by size class.
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Size tiers sized for HTTP read buffers.
var defaultSizes = []int{512, 2048, 8192, 32768}

// NewBytePool creates a byte pool with the standard size tiers.
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom ascending size tiers.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}
	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a byte slice of at least the requested size. Slices larger
// than every tier are allocated directly and never pooled.
func (bp *BytePool) Get(size int) []byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a slice obtained from Get. Slices whose capacity matches no
// tier are left to the garbage collector.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

var globalBytePool = NewBytePool()

// GetBytes draws from the shared process-wide pool.
func GetBytes(size int) []byte { return globalBytePool.Get(size) }

// PutBytes returns bytes to the shared pool.
func PutBytes(buf []byte) { globalBytePool.Put(buf) }
