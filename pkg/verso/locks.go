package verso

import (
	"hash/fnv"
	"sync"
)

// DefaultLockStripes is the size of the lock table. The value only tunes the
// probability of false contention between unrelated scope keys; it carries no
// other meaning.
const DefaultLockStripes = 64

// LockTable is a fixed-size table of read/write locks keyed by scope string.
// A scope key is hashed onto one of the stripes, so two distinct keys may
// share a physical lock: false contention is acceptable, false concurrency is
// not. The table lives for the process lifetime and is never torn down.
//
// No timeout or deadlock detection is provided. Callers must hold at most one
// lock per call chain.
type LockTable struct {
	stripes []sync.RWMutex
}

// NewLockTable creates a lock table with n stripes. Non-positive n falls back
// to DefaultLockStripes.
func NewLockTable(n int) *LockTable {
	if n <= 0 {
		n = DefaultLockStripes
	}
	return &LockTable{stripes: make([]sync.RWMutex, n)}
}

func (t *LockTable) stripe(scopeKey string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(scopeKey))
	return &t.stripes[int(h.Sum32())%len(t.stripes)]
}

// Lock acquires the write lock for the scope key and returns the release
// function. At most one writer holds a given stripe at a time, process-wide.
func (t *LockTable) Lock(scopeKey string) func() {
	s := t.stripe(scopeKey)
	s.Lock()
	return s.Unlock
}

// RLock acquires the read lock for the scope key and returns the release
// function. Any number of readers may hold the stripe while no writer does.
func (t *LockTable) RLock(scopeKey string) func() {
	s := t.stripe(scopeKey)
	s.RLock()
	return s.RUnlock
}

// Scope key constructors. The prefixes keep bucket, object and collection
// entities from aliasing each other on identical names.

func bucketScope(bucket string) string {
	return "b\x00" + bucket
}

func objectScope(bucket, key string) string {
	return "o\x00" + bucket + "\x00" + key
}

func collectionScope(bucket, key string) string {
	return "c\x00" + bucket + "\x00" + key
}
