package indexer

import (
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// LockSet holds one IndexLock per project root. Runs for the same root are
// rejected while one is in flight rather than queued.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*IndexLock
}

// TryAcquire attempts to take the lock for root.
func (s *LockSet) TryAcquire(root string) bool {
	return s.lock(root).TryAcquire()
}

// Release releases the lock for root.
func (s *LockSet) Release(root string) {
	s.lock(root).Release()
}

func (s *LockSet) lock(root string) *IndexLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*IndexLock)
	}
	l, ok := s.locks[root]
	if !ok {
		l = &IndexLock{}
		s.locks[root] = l
	}
	return l
}
