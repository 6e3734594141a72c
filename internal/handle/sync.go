package handle

import "sync"

// SyncTable wraps a Table with a read-write mutex for concurrent use. Get
// returns entries by value so callers never hold pointers into the table.
type SyncTable[T any] struct {
	mutex sync.RWMutex
	table *Table[T]
}

// NewSyncTable creates an empty concurrent table.
func NewSyncTable[T any]() *SyncTable[T] {
	return &SyncTable[T]{table: NewTable[T]()}
}

// Insert adds an entry and returns its handle.
func (t *SyncTable[T]) Insert(entry T) Handle {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.table.Insert(entry)
}

// Get returns a copy of the entry for h.
func (t *SyncTable[T]) Get(h Handle) (T, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	entry, ok := t.table.Get(h)
	if !ok {
		var zero T
		return zero, false
	}
	return *entry, true
}

// Update applies fn to the entry for h under the write lock.
func (t *SyncTable[T]) Update(h Handle, fn func(*T)) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.table.Update(h, fn)
}

// Remove deletes the entry for h and returns it.
func (t *SyncTable[T]) Remove(h Handle) (T, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.table.Remove(h)
}

// Len returns the number of live entries.
func (t *SyncTable[T]) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.table.Len()
}

// Each calls fn with a copy of every live entry under the read lock. fn must
// not call back into the table.
func (t *SyncTable[T]) Each(fn func(Handle, T) bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	t.table.Each(func(h Handle, entry *T) bool {
		return fn(h, *entry)
	})
}

// Reset removes all entries.
func (t *SyncTable[T]) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table.Reset()
}
