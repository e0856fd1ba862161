package filter

import (
	"sort"
	"strings"
	"sync"
)

// MethodSet is a set of method names matched exactly and case-sensitively.
// Every overload of a listed name matches. It is safe for concurrent use.
type MethodSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewMethodSet creates a set from names. Names are trimmed and empty names
// are dropped.
func NewMethodSet(names ...string) *MethodSet {
	s := &MethodSet{names: make(map[string]struct{}, len(names))}
	s.Add(names...)
	return s
}

// ParseList splits a comma-separated argument, trimming items and dropping
// empty ones.
func ParseList(arg string) []string {
	var items []string
	for _, item := range strings.Split(arg, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Add adds names to the set.
func (s *MethodSet) Add(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s.names[n] = struct{}{}
		}
	}
}

// Contains reports whether name is in the set.
func (s *MethodSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names.
func (s *MethodSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns the names in sorted order.
func (s *MethodSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String joins the sorted names with commas.
func (s *MethodSet) String() string {
	return strings.Join(s.Names(), ",")
}
