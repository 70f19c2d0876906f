package session

import (
	"sync"
	"sync/atomic"

	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
)

// Gate is the per-session class-unload reader/writer lock of
// spec.md §4.F. Compilation workers take the reader side around the
// body of a request after sequencing admit; the writer side is taken
// only to clear caches.
type Gate struct {
	rw sync.RWMutex

	// classUnloadingAttempted is raised whenever a writer is waiting on
	// rw (i.e. about to clear caches). Readers that are about to send a
	// non-critical message over the wire must check it and abort with
	// ErrCompilationInterrupted if set, so a session about to be reset
	// doesn't accept new blocking I/O.
	classUnloadingAttempted atomic.Bool
}

// ReadLock acquires the reader side: the normal path for a compilation
// worker processing one request.
func (g *Gate) ReadLock() {
	g.rw.RLock()
}

// ReadUnlock releases the reader side.
func (g *Gate) ReadUnlock() {
	g.rw.RUnlock()
}

// WriteLock acquires the writer side for a cache clear. It sets
// classUnloadingAttempted before blocking on the lock so concurrent
// readers can observe it and bail out of non-reply sends.
func (g *Gate) WriteLock() {
	g.classUnloadingAttempted.Store(true)
	g.rw.Lock()
}

// WriteUnlock releases the writer side and clears the attempted flag.
func (g *Gate) WriteUnlock() {
	g.classUnloadingAttempted.Store(false)
	g.rw.Unlock()
}

// CheckInterrupted returns ErrCompilationInterrupted if a writer is
// currently waiting for (or holding) this gate. A reader about to send
// a non-reply message over the stream must call this first
// (spec.md §4.F, §5).
func (g *Gate) CheckInterrupted() error {
	if g.classUnloadingAttempted.Load() {
		return stream.ErrCompilationInterrupted
	}
	return nil
}
