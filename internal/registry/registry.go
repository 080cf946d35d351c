// Package registry implements the hierarchical, tagged key/value store
// that is the sole channel used to pass state into hooks.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is an ordered, string-keyed mapping that may be parented:
// a lookup that misses in the local map falls through to the parent.
// Registries are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	data   map[string]any
	order  []string
	parent *Registry
	tags   map[string]struct{}

	// version is shared by the whole parented tree so a Resolver can
	// detect that any registry in its chain changed, not just its own.
	version *uint64
}

// New creates a root registry with the given tags.
func New(tags ...string) *Registry {
	v := uint64(0)
	return &Registry{
		data:    make(map[string]any),
		tags:    tagSet(tags),
		version: &v,
	}
}

// NewChild creates a registry parented to r, inheriting its version counter
// so mutations anywhere in the tree invalidate resolver caches built from
// any descendant.
func (r *Registry) NewChild(tags ...string) *Registry {
	return &Registry{
		data:    make(map[string]any),
		parent:  r,
		tags:    tagSet(tags),
		version: r.version,
	}
}

func tagSet(tags []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Set stores value under key in this registry.
func (r *Registry) Set(key string, value any) {
	r.mu.Lock()
	if _, exists := r.data[key]; !exists {
		r.order = append(r.order, key)
	}
	r.data[key] = value
	r.mu.Unlock()
	atomic.AddUint64(r.version, 1)
}

// Get looks up key in this registry, falling through to the parent chain
// if not found locally.
func (r *Registry) Get(key string) (any, bool) {
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		v, ok := reg.data[key]
		reg.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether key is visible from this registry (locally or via a parent).
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key from this registry only; it does not affect parents.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	if _, ok := r.data[key]; ok {
		delete(r.data, key)
		for i, k := range r.order {
			if k == key {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	atomic.AddUint64(r.version, 1)
}

// Parent returns the parent registry, or nil for a root registry.
func (r *Registry) Parent() *Registry {
	return r.parent
}

// HasTag reports whether this registry carries the given tag.
func (r *Registry) HasTag(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tags[tag]
	return ok
}

// Tags returns the set of tags carried by this registry.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tags))
	for t := range r.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Keys returns every key visible from this registry, own keys first in
// insertion order, then unshadowed parent keys.
func (r *Registry) Keys() []string {
	seen := make(map[string]struct{})
	var out []string
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		for _, k := range reg.order {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		reg.mu.RUnlock()
	}
	return out
}

// Snapshot copies the current value of each given key (resolved via Get,
// so parent fallthrough applies) into an immutable flat map. Keys absent
// from the registry tree are silently omitted. Background hook buckets
// are handed a Snapshot instead of a live Registry so they never contend
// with foreground writes.
func (r *Registry) Snapshot(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := r.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// currentVersion returns the current mutation counter for the whole tree, used by
// Resolver to decide whether its cache is stale.
func (r *Registry) currentVersion() uint64 {
	return atomic.LoadUint64(r.version)
}
