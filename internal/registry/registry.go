// Package registry manages all discovered templates.
//
// Compiled templates live in a handle-indexed table; a name index maps
// template names onto handles. Callers that hold a handle (the preview
// server, watchers) keep a stable reference across re-registration: updating
// a template mutates the entry in place and preserves its handle, while
// removal invalidates it. Registry changes are broadcast to watcher channels
// the same way file events are.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/osierhq/osier/internal/ast"
	"github.com/osierhq/osier/internal/handle"
	"github.com/osierhq/osier/internal/render"
)

// TemplateInfo holds a compiled template and its discovery metadata.
type TemplateInfo struct {
	Name     string
	FilePath string
	Hash     string
	LastMod  time.Time
	Template *ast.Template
}

// Event represents a change in the template registry.
type Event struct {
	Type      EventType
	Template  TemplateInfo
	Timestamp time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// TemplateRegistry is the owning aggregate for templates. The mutex guards
// both the handle table and the name index so they change atomically.
type TemplateRegistry struct {
	mutex    sync.RWMutex
	table    *handle.Table[TemplateInfo]
	byName   map[string]handle.Handle
	watchers []chan Event
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		table:  handle.NewTable[TemplateInfo](),
		byName: make(map[string]handle.Handle),
	}
}

// Register adds or updates a template and returns its handle. Updating an
// existing name mutates the entry in place, so handles held elsewhere stay
// valid.
func (r *TemplateRegistry) Register(info TemplateInfo) handle.Handle {
	r.mutex.Lock()

	eventType := EventTypeAdded
	h, exists := r.byName[info.Name]
	if exists {
		eventType = EventTypeUpdated
		r.table.Update(h, func(entry *TemplateInfo) { *entry = info })
	} else {
		h = r.table.Insert(info)
		r.byName[info.Name] = h
	}

	event := Event{Type: eventType, Template: info, Timestamp: time.Now()}
	watchers := r.watchers
	r.mutex.Unlock()

	notify(watchers, event)
	return h
}

// Get retrieves a template by name.
func (r *TemplateRegistry) Get(name string) (TemplateInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	h, ok := r.byName[name]
	if !ok {
		return TemplateInfo{}, false
	}
	info, ok := r.table.Get(h)
	if !ok {
		return TemplateInfo{}, false
	}
	return *info, true
}

// Handle returns the handle for a name.
func (r *TemplateRegistry) Handle(name string) (handle.Handle, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// GetByHandle retrieves a template by handle. Stale handles report false.
func (r *TemplateRegistry) GetByHandle(h handle.Handle) (TemplateInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	info, ok := r.table.Get(h)
	if !ok {
		return TemplateInfo{}, false
	}
	return *info, true
}

// Remove removes a template by name, invalidating its handle.
func (r *TemplateRegistry) Remove(name string) bool {
	r.mutex.Lock()

	h, ok := r.byName[name]
	if !ok {
		r.mutex.Unlock()
		return false
	}
	info, _ := r.table.Remove(h)
	delete(r.byName, name)

	event := Event{Type: EventTypeRemoved, Template: info, Timestamp: time.Now()}
	watchers := r.watchers
	r.mutex.Unlock()

	notify(watchers, event)
	return true
}

// RemoveByPath removes every template registered from a file path. Used
// when a watched file disappears.
func (r *TemplateRegistry) RemoveByPath(path string) int {
	r.mutex.RLock()
	var names []string
	r.table.Each(func(_ handle.Handle, info *TemplateInfo) bool {
		if info.FilePath == path {
			names = append(names, info.Name)
		}
		return true
	})
	r.mutex.RUnlock()

	for _, name := range names {
		r.Remove(name)
	}
	return len(names)
}

// Names returns all registered template names, sorted.
func (r *TemplateRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a snapshot of all registered templates, sorted by name.
func (r *TemplateRegistry) All() []TemplateInfo {
	r.mutex.RLock()
	out := make([]TemplateInfo, 0, r.table.Len())
	r.table.Each(func(_ handle.Handle, info *TemplateInfo) bool {
		out = append(out, *info)
		return true
	})
	r.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered templates.
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.table.Len()
}

// Watch returns a channel that receives registry events.
func (r *TemplateRegistry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *TemplateRegistry) UnWatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Loader adapts the registry to the render engine's include resolution.
func (r *TemplateRegistry) Loader() render.Loader {
	return render.LoaderFunc(func(name string) (*ast.Template, error) {
		info, ok := r.Get(name)
		if !ok {
			return nil, &notFoundError{name: name}
		}
		return info.Template, nil
	})
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "template " + e.name + " is not registered" }

func notify(watchers []chan Event, event Event) {
	for _, watcher := range watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
