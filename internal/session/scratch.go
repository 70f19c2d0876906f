package session

import (
	"sync"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// defaultUnresolvedTTL is the number of uses an "unresolved method"
// scratch entry survives before being dropped. The reference VM source
// defaults this to 2 and decrements on each use; spec.md §9 leaves the
// exact value unprescribed, so we keep that default.
const defaultUnresolvedTTL = 2

// unresolvedEntry is a tentative answer the server was unable to
// persist into the long-lived Cache (e.g. a resolution that might flip
// before the compile completes).
type unresolvedEntry struct {
	value interface{}
	ttl   int
}

// Scratch is the per-CompilationTask scratch cache (spec.md §4.E):
// bound to a single compilation task, discarded (or recycled) when the
// task finishes.
type Scratch struct {
	mu         sync.Mutex
	unresolved map[wire.MethodHandle]*unresolvedEntry
}

// NewScratch allocates an empty per-compilation scratch cache.
func NewScratch() *Scratch {
	return &Scratch{unresolved: make(map[wire.MethodHandle]*unresolvedEntry)}
}

// PutUnresolved records a tentative answer for a method, with the
// default TTL.
func (s *Scratch) PutUnresolved(method wire.MethodHandle, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unresolved[method] = &unresolvedEntry{value: value, ttl: defaultUnresolvedTTL}
}

// GetUnresolved returns a tentative answer and decrements its TTL,
// evicting the entry once the TTL reaches zero.
func (s *Scratch) GetUnresolved(method wire.MethodHandle) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.unresolved[method]
	if !ok {
		return nil, false
	}
	e.ttl--
	v := e.value
	if e.ttl <= 0 {
		delete(s.unresolved, method)
	}
	return v, true
}

// Reset clears the scratch cache for recycling onto the next task
// (spec.md §4.G step 10).
func (s *Scratch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unresolved = make(map[wire.MethodHandle]*unresolvedEntry)
}
