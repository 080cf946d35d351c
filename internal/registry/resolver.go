package registry

import (
	"strings"
	"sync"
)

// Resolver answers glob-style queries of shape "a.b.*.c" against the keys
// visible from a registry, where each "*" segment matches exactly one
// dot-delimited component. Results are cached per pattern and invalidated
// whenever the registry tree's version counter advances, the same
// check-then-recompute shape as the teacher's class-category cache.
type Resolver struct {
	mu            sync.RWMutex
	registry      *Registry
	cache         map[string][]string
	cachedVersion uint64
}

// NewResolver creates a resolver bound to registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{
		registry: registry,
		cache:    make(map[string][]string),
	}
}

// Resolve returns every key visible from the bound registry that matches
// pattern. The returned slice is owned by the caller; mutating it is safe.
func (res *Resolver) Resolve(pattern string) []string {
	res.mu.RLock()
	if res.cachedVersion == res.registry.currentVersion() {
		if hit, ok := res.cache[pattern]; ok {
			res.mu.RUnlock()
			return cloneKeys(hit)
		}
	}
	res.mu.RUnlock()

	matched := res.resolveUncached(pattern)

	res.mu.Lock()
	if res.cachedVersion != res.registry.currentVersion() {
		res.cache = make(map[string][]string)
		res.cachedVersion = res.registry.currentVersion()
	}
	res.cache[pattern] = matched
	res.mu.Unlock()

	return cloneKeys(matched)
}

func cloneKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

func (res *Resolver) resolveUncached(pattern string) []string {
	patternSegs := strings.Split(pattern, ".")
	var matched []string
	for _, key := range res.registry.Keys() {
		if matchSegments(patternSegs, strings.Split(key, ".")) {
			matched = append(matched, key)
		}
	}
	return matched
}

// matchSegments matches a glob pattern against a key, both already split on
// ".". "*" matches exactly one segment.
func matchSegments(pattern, key []string) bool {
	if len(pattern) != len(key) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			continue
		}
		if p != key[i] {
			return false
		}
	}
	return true
}

// Invalidate forces the next Resolve call to recompute regardless of the
// registry's version counter. Exposed for tests; normal invalidation is
// automatic via Registry mutation.
func (res *Resolver) Invalidate() {
	res.mu.Lock()
	defer res.mu.Unlock()
	res.cache = make(map[string][]string)
	res.cachedVersion = 0
}
