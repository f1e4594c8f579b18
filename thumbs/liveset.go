package thumbs

import (
	"sort"
	"sync"
)

// LiveSet is the run-scoped set of cache file names referenced so far.
// It only grows; the sweep reads it once after every worker has finished.
type LiveSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewLiveSet returns an empty set.
func NewLiveSet() *LiveSet {
	return &LiveSet{names: make(map[string]struct{})}
}

// Add registers names as referenced.
func (s *LiveSet) Add(names ...string) {
	s.mu.Lock()
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	s.mu.Unlock()
}

// Has reports whether name is referenced.
func (s *LiveSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

// Len returns the number of referenced names.
func (s *LiveSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns the referenced names sorted.
func (s *LiveSet) Names() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
