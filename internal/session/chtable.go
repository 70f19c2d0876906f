package session

import (
	"sync"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// CHTableEntry is one class's flattened PersistentClassInfo mirror.
//
// Design note (spec.md §9): the reference VM-side implementation uses
// intrusive pointer cycles between a class and its sub-classes. Here
// each entry holds a *set of handles* for its sub-classes rather than
// pointers, so unloading a class is erasing its handle from every other
// entry's set — O(classesTouched·avgChildren) — with no dangling
// cycles to worry about at session teardown.
type CHTableEntry struct {
	Class      wire.ClassHandle
	SuperClass wire.ClassHandle
	SubClasses map[wire.ClassHandle]struct{}
	Flags      uint32
}

// CHTableMirror is the server's flat mirror of the client's
// class-hierarchy table (spec.md §4.E "Class-hierarchy mirror").
type CHTableMirror struct {
	mu      sync.Mutex
	entries map[wire.ClassHandle]*CHTableEntry
}

// NewCHTableMirror allocates an empty mirror.
func NewCHTableMirror() *CHTableMirror {
	return &CHTableMirror{entries: make(map[wire.ClassHandle]*CHTableEntry)}
}

// Clear discards every entry.
func (m *CHTableMirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[wire.ClassHandle]*CHTableEntry)
}

// ApplyDeltas applies modifications first (in the order sent), then
// removes, per spec.md §4.E:
//
//   - Modifications: if the target class has no mirror entry yet,
//     create a blank one; copy scalar fields; overwrite the sub-class
//     set with the provided handles. We do not recursively add
//     sub-class entries — sub-classes are always loaded before their
//     super-class, so a modification referencing a new sub-class
//     includes that sub-class earlier in the same blob.
//   - Removes: erase each entry, and drop it from every other entry's
//     sub-class set so no dangling handle remains.
//
// Idempotent: applying the same blob twice yields the same mirror
// state as applying it once (spec.md §8).
func (m *CHTableMirror) ApplyDeltas(mods []wire.CHTableModification, removes []wire.ClassHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mod := range mods {
		entry, ok := m.entries[mod.Class]
		if !ok {
			entry = &CHTableEntry{Class: mod.Class}
			m.entries[mod.Class] = entry
		}
		entry.SuperClass = mod.SuperClass
		entry.Flags = mod.Flags
		subs := make(map[wire.ClassHandle]struct{}, len(mod.SubClasses))
		for _, sub := range mod.SubClasses {
			subs[sub] = struct{}{}
		}
		entry.SubClasses = subs
	}

	for _, class := range removes {
		delete(m.entries, class)
		for _, entry := range m.entries {
			delete(entry.SubClasses, class)
		}
	}
}

// Lookup returns the mirror entry for a class, or nil if absent.
func (m *CHTableMirror) Lookup(class wire.ClassHandle) *CHTableEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[class]
	if !ok {
		return nil
	}
	cp := *e
	cp.SubClasses = make(map[wire.ClassHandle]struct{}, len(e.SubClasses))
	for k := range e.SubClasses {
		cp.SubClasses[k] = struct{}{}
	}
	return &cp
}

// Len reports the number of classes currently mirrored.
func (m *CHTableMirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
