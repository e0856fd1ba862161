// Package filter provides the class and method name filters applied while
// analyzing a classpath.
package filter

import (
	"strings"
	"sync"
)

// ClassFilter decides which classes take part in a run by VM name prefix.
// A class is accepted when it matches an include prefix (or no includes are
// configured) and matches no exclude prefix. Prefixes may be given in dot or
// slash form. It is safe for concurrent use.
type ClassFilter struct {
	mu sync.RWMutex

	includes []string
	excludes []string
	gen      uint64

	// Cache for frequently queried classes
	cache     map[string]bool
	cacheSize int
}

// NewClassFilter creates a filter from include and exclude prefixes.
// The zero configuration accepts every class.
func NewClassFilter(includes, excludes []string) *ClassFilter {
	f := &ClassFilter{
		cache:     make(map[string]bool),
		cacheSize: 10000,
	}
	f.AddIncludes(includes...)
	f.AddExcludes(excludes...)
	return f
}

// NormalizeName converts a dotted Java name to VM slash form.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), ".", "/")
}

// Accept reports whether the class with the given VM name passes the
// filter.
func (f *ClassFilter) Accept(vmName string) bool {
	if f == nil {
		return true
	}

	f.mu.RLock()
	if ok, hit := f.cache[vmName]; hit {
		f.mu.RUnlock()
		return ok
	}
	ok := f.acceptUncached(vmName)
	gen := f.gen
	f.mu.RUnlock()

	f.mu.Lock()
	// Rules changed while unlocked; the result may be stale.
	if f.gen == gen && len(f.cache) < f.cacheSize {
		f.cache[vmName] = ok
	}
	f.mu.Unlock()
	return ok
}

func (f *ClassFilter) acceptUncached(vmName string) bool {
	if len(f.includes) > 0 && !hasAnyPrefix(vmName, f.includes) {
		return false
	}
	return !hasAnyPrefix(vmName, f.excludes)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// AddIncludes adds include prefixes. Empty and duplicate prefixes are
// ignored.
func (f *ClassFilter) AddIncludes(prefixes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.includes = appendPrefixes(f.includes, prefixes)
	f.gen++
	f.cache = make(map[string]bool)
}

// AddExcludes adds exclude prefixes. Empty and duplicate prefixes are
// ignored.
func (f *ClassFilter) AddExcludes(prefixes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excludes = appendPrefixes(f.excludes, prefixes)
	f.gen++
	f.cache = make(map[string]bool)
}

func appendPrefixes(dst, prefixes []string) []string {
	for _, p := range prefixes {
		p = NormalizeName(p)
		if p == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if existing == p {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, p)
		}
	}
	return dst
}

// Includes returns a copy of the include prefixes.
func (f *ClassFilter) Includes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.includes...)
}

// Excludes returns a copy of the exclude prefixes.
func (f *ClassFilter) Excludes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.excludes...)
}

// CacheStats returns cache statistics.
func (f *ClassFilter) CacheStats() (size int, maxSize int) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.cache), f.cacheSize
}

// SetCacheSize sets the maximum cache size.
func (f *ClassFilter) SetCacheSize(size int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cacheSize = size
	if len(f.cache) > size {
		f.cache = make(map[string]bool)
	}
}
