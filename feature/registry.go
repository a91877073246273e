package feature

import (
	"sort"
	"sync"
)

// PageCache is the name of the full-page cache feature.
const PageCache = "page_cache"

// Registry is the set of currently enabled features.
// It is safe for concurrent use.
type Registry struct {
	mutex    *sync.RWMutex
	features map[string]struct{}
}

func NewRegistry(names ...string) Registry {
	r := Registry{
		mutex:    &sync.RWMutex{},
		features: make(map[string]struct{}),
	}
	for _, name := range names {
		r.features[name] = struct{}{}
	}
	return r
}

// Exists reports whether the named feature is enabled.
func (r Registry) Exists(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.features[name]
	return ok
}

func (r Registry) Enable(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.features[name] = struct{}{}
}

func (r Registry) Disable(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.features, name)
}

// List returns the enabled feature names in sorted order.
func (r Registry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.features))
	for name := range r.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
