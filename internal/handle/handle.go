// Package handle provides a generational slot map: a table whose entries are
// addressed by opaque 64-bit handles instead of pointers or raw indexes.
//
// A handle packs a 32-bit slot index with a 32-bit generation counter. When
// an entry is removed its slot's generation is bumped, so handles to the old
// entry resolve to nothing even after the slot is reused. The zero Handle is
// never live. Entries are kept dense, so iteration touches contiguous
// memory; removal swaps the last entry into the vacated position.
package handle

const (
	indexBits = 32
	indexMask = (1 << indexBits) - 1

	// noFree marks the end of the free slot list.
	noFree = ^uint32(0)
)

// Handle is a stable reference to a table entry. It stays valid until the
// entry it names is removed; after that it resolves to nothing, even if the
// underlying slot has been reused.
type Handle uint64

// Zero reports whether h is the zero handle, which never resolves.
func (h Handle) Zero() bool { return h == 0 }

func (h Handle) index() uint32      { return uint32(h & indexMask) }
func (h Handle) generation() uint32 { return uint32(h >> indexBits) }

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<indexBits | uint64(index))
}

type slot struct {
	generation uint32
	dense      uint32
	nextFree   uint32
	occupied   bool
}

// Table is a generational slot map. It is not safe for concurrent use; wrap
// it in a SyncTable or guard it with the owner's lock.
type Table[T any] struct {
	entries  []T
	ids      []Handle
	slots    []slot
	freeHead uint32
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{freeHead: noFree}
}

// Insert adds an entry and returns its handle.
func (t *Table[T]) Insert(entry T) Handle {
	var index uint32
	if t.freeHead != noFree {
		index = t.freeHead
		t.freeHead = t.slots[index].nextFree
	} else {
		index = uint32(len(t.slots))
		// Generations start at 1 so the zero Handle is never live.
		t.slots = append(t.slots, slot{generation: 1})
	}

	s := &t.slots[index]
	s.dense = uint32(len(t.entries))
	s.occupied = true

	h := makeHandle(index, s.generation)
	t.entries = append(t.entries, entry)
	t.ids = append(t.ids, h)
	return h
}

// lookup resolves a handle to its dense position, rejecting stale handles.
func (t *Table[T]) lookup(h Handle) (uint32, bool) {
	index := h.index()
	if h == 0 || int(index) >= len(t.slots) {
		return 0, false
	}
	s := t.slots[index]
	if !s.occupied || s.generation != h.generation() {
		return 0, false
	}
	return s.dense, true
}

// Get returns a pointer to the entry for h, or false if h is stale. The
// pointer is invalidated by the next Insert or Remove.
func (t *Table[T]) Get(h Handle) (*T, bool) {
	pos, ok := t.lookup(h)
	if !ok {
		return nil, false
	}
	return &t.entries[pos], true
}

// Update applies fn to the entry for h in place. It reports whether h was
// live.
func (t *Table[T]) Update(h Handle, fn func(*T)) bool {
	pos, ok := t.lookup(h)
	if !ok {
		return false
	}
	fn(&t.entries[pos])
	return true
}

// Remove deletes the entry for h and returns it. The handle and any copies
// of it become stale.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	pos, ok := t.lookup(h)
	if !ok {
		return zero, false
	}

	removed := t.entries[pos]

	// Swap the last entry into the vacated position to stay dense.
	last := uint32(len(t.entries) - 1)
	if pos != last {
		t.entries[pos] = t.entries[last]
		t.ids[pos] = t.ids[last]
		t.slots[t.ids[pos].index()].dense = pos
	}
	t.entries[last] = zero
	t.entries = t.entries[:last]
	t.ids = t.ids[:last]

	s := &t.slots[h.index()]
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		// Skip generation 0 on wraparound; it is reserved for the
		// zero Handle.
		s.generation = 1
	}
	s.nextFree = t.freeHead
	t.freeHead = h.index()

	return removed, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int { return len(t.entries) }

// Each calls fn for every live entry until fn returns false. The table must
// not be mutated during iteration.
func (t *Table[T]) Each(fn func(Handle, *T) bool) {
	for i := range t.entries {
		if !fn(t.ids[i], &t.entries[i]) {
			return
		}
	}
}

// Reset removes all entries. Every outstanding handle becomes stale.
func (t *Table[T]) Reset() {
	for i := range t.slots {
		s := &t.slots[i]
		if s.occupied {
			s.occupied = false
			s.generation++
			if s.generation == 0 {
				s.generation = 1
			}
		}
	}
	t.entries = t.entries[:0]
	t.ids = t.ids[:0]

	// Rebuild the free list over all slots.
	t.freeHead = noFree
	for i := len(t.slots) - 1; i >= 0; i-- {
		t.slots[i].nextFree = t.freeHead
		t.freeHead = uint32(i)
	}
}
