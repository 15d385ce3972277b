package main

import (
	"hash/fnv"
	"sync"
)

// shard is one independently locked slice of the keyspace.
type shard struct {
	mu sync.RWMutex
	kv map[string]string
}

// Store is a sharded in-memory key/value map. Keys hash to a fixed shard,
// so writers on different shards never contend.
type Store struct {
	shards []*shard
}

// NewStore creates a store with the given shard count (floored at 1).
func NewStore(shards int) *Store {
	if shards < 1 {
		shards = 1
	}
	s := &Store{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{kv: make(map[string]string)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key, value string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.kv[key] = value
	sh.mu.Unlock()
}

// Get returns the value under key and whether it exists.
func (s *Store) Get(key string) (string, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.kv[key]
	return v, ok
}

// Size returns the total number of keys across all shards.
func (s *Store) Size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.kv)
		sh.mu.RUnlock()
	}
	return total
}
