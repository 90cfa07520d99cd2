package indexer

import "sync/atomic"

// IndexLock is a non-blocking mutual exclusion flag. A second ingestion
// started while one is running fails fast instead of queueing behind it.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = indexing
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether an ingestion is running
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
