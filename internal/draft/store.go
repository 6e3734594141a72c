package draft

import (
	"sort"
	"sync"
	"time"
)

// Info holds a parsed draft and its discovery metadata.
type Info struct {
	Draft
	FilePath string
	Hash     string
	LastMod  time.Time
}

// Store is a concurrency-safe index of parsed drafts keyed by name.
type Store struct {
	mutex  sync.RWMutex
	byName map[string]Info
}

// NewStore creates an empty draft store.
func NewStore() *Store {
	return &Store{byName: make(map[string]Info)}
}

// Put adds or replaces a draft.
func (s *Store) Put(info Info) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.byName[info.Name] = info
}

// Get retrieves a draft by name.
func (s *Store) Get(name string) (Info, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	info, ok := s.byName[name]
	return info, ok
}

// Remove deletes a draft by name. It reports whether the draft existed.
func (s *Store) Remove(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.byName[name]; !ok {
		return false
	}
	delete(s.byName, name)
	return true
}

// RemoveByPath deletes any drafts backed by the given file path and
// returns how many were removed.
func (s *Store) RemoveByPath(path string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	removed := 0
	for name, info := range s.byName {
		if info.FilePath == path {
			delete(s.byName, name)
			removed++
		}
	}
	return removed
}

// Names returns all draft names in sorted order.
func (s *Store) Names() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all drafts sorted by name.
func (s *Store) All() []Info {
	names := s.Names()
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, s.byName[name])
	}
	return infos
}

// Count returns the number of stored drafts.
func (s *Store) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.byName)
}
