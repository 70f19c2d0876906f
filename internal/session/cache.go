// Package session implements the per-client ClientSession container
// (spec.md §3, §4.B), its long-lived caches and the class-unload R/W
// gate (spec.md §4.E, §4.F).
package session

import (
	"sync"
	"sync/atomic"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// ClassInfo mirrors RomClassMap's value type (spec.md §3).
type ClassInfo struct {
	RomClass   []byte
	Signature  string
	LoaderID   uint64
	Methods    MethodHandleSet
	Parent     wire.ClassHandle
	Interfaces []wire.ClassHandle
	Flags      uint32

	// HasIllegalFinalFieldModifications is set when the client reports
	// an illegal final-field modification against this class
	// (spec.md §4.E step 2).
	HasIllegalFinalFieldModifications bool

	// ReferencingClassLoaders lets the inverse purge in unload handling
	// find every (loader, signature) key to erase from ClassBySignature
	// without scanning the whole map (spec.md §3).
	ReferencingClassLoaders map[uint64]struct{}
}

// MethodHandleSet is a small set of method handles, used so
// ClassInfo.Methods can be iterated when a class unloads.
type MethodHandleSet map[wire.MethodHandle]struct{}

// MethodInfo mirrors MethodMap's value type.
type MethodInfo struct {
	OwningClass     wire.ClassHandle
	Index           int
	IPProfilingData []byte
	IsTracing       bool
	AotRecordID     string // empty unless this method has an AOT record
}

// ClassChainInfo mirrors ClassChainMap's value type. Both fields are
// lazily populated.
type ClassChainInfo struct {
	ChainOffset   uint64
	AotChainID    string // empty until lazily computed
}

type classBySigKey struct {
	LoaderID  uint64
	Signature string
}

// Cache is the per-session long-lived cache set (spec.md §3, §4.E).
// Each sub-map is guarded by its own monitor; the canonical acquisition
// order documented in spec.md §5 is:
//
//	compilation -> sequencing -> classMap -> romMap -> constantPool ->
//	staticMap -> thunkSet -> wellKnownClasses -> aotCacheKnownIds
//
// Callers must never acquire a monitor out of this order, to avoid
// deadlock between compilation workers and the registry/sequencer.
type Cache struct {
	romMu      sync.Mutex
	RomClassMap map[wire.ClassHandle]*ClassInfo

	classMu      sync.Mutex
	ClassBySignature map[classBySigKey]wire.ClassHandle

	// MethodMap is guarded by romMu: entries sharing an OwningClass must
	// be removed atomically with their class's RomClassMap entry, and
	// romMu is already the lock held across that removal.
	MethodMap map[wire.MethodHandle]*MethodInfo

	classChainMu sync.Mutex
	ClassChainMap map[wire.ClassHandle]*ClassChainInfo

	cpMu     sync.Mutex
	CpToClass map[uint64]wire.ClassHandle

	staticMu sync.Mutex
	StaticFinalMap map[wire.ClassHandle]map[string][]byte

	thunkMu  sync.Mutex
	ThunkSet map[uint64]struct{}

	wellKnownMu sync.Mutex
	WellKnownClasses map[string]wire.ClassHandle

	aotKnownMu sync.Mutex
	AotCacheKnownIDs map[string]map[uint64]struct{} // record type -> known ids

	// UnloadedAddressSet is a sparse set of unloaded class handles used
	// to reject stale entries quickly. Guarded by romMu, since it is
	// only ever mutated alongside RomClassMap during reconcile.
	UnloadedAddressSet map[wire.ClassHandle]struct{}

	// UnloadedAddressRanges supplements UnloadedAddressSet with the
	// coarse [low,high] ranges a client reports in a full resync
	// (spec.md §4.G step 5); populated only by ApplyFullResync, reset by
	// Clear.
	UnloadedAddressRanges [][2]wire.ClassHandle

	// clearEpoch counts how many times Clear has run on this cache. The
	// compiler package samples it before Reconcile and compares after,
	// to detect a just-cleared cache and request a full resync instead
	// of trusting the incremental delta it already applied
	// (spec.md §4.G step 5).
	clearEpoch atomic.Uint64

	CHTable *CHTableMirror
}

// NewCache allocates an empty per-session cache set.
func NewCache() *Cache {
	return &Cache{
		RomClassMap:      make(map[wire.ClassHandle]*ClassInfo),
		ClassBySignature: make(map[classBySigKey]wire.ClassHandle),
		MethodMap:        make(map[wire.MethodHandle]*MethodInfo),
		ClassChainMap:    make(map[wire.ClassHandle]*ClassChainInfo),
		CpToClass:        make(map[uint64]wire.ClassHandle),
		StaticFinalMap:   make(map[wire.ClassHandle]map[string][]byte),
		ThunkSet:         make(map[uint64]struct{}),
		WellKnownClasses: make(map[string]wire.ClassHandle),
		AotCacheKnownIDs: make(map[string]map[uint64]struct{}),
		UnloadedAddressSet: make(map[wire.ClassHandle]struct{}),
		CHTable:          NewCHTableMirror(),
	}
}

// Clear destroys every entry in every cache. Per spec.md §4.B, the
// caller must hold the writer side of the session's Gate (or be
// tearing the session down) before calling this.
func (c *Cache) Clear() {
	c.romMu.Lock()
	c.RomClassMap = make(map[wire.ClassHandle]*ClassInfo)
	c.MethodMap = make(map[wire.MethodHandle]*MethodInfo)
	c.UnloadedAddressSet = make(map[wire.ClassHandle]struct{})
	c.UnloadedAddressRanges = nil
	c.romMu.Unlock()

	c.classMu.Lock()
	c.ClassBySignature = make(map[classBySigKey]wire.ClassHandle)
	c.classMu.Unlock()

	c.classChainMu.Lock()
	c.ClassChainMap = make(map[wire.ClassHandle]*ClassChainInfo)
	c.classChainMu.Unlock()

	c.cpMu.Lock()
	c.CpToClass = make(map[uint64]wire.ClassHandle)
	c.cpMu.Unlock()

	c.staticMu.Lock()
	c.StaticFinalMap = make(map[wire.ClassHandle]map[string][]byte)
	c.staticMu.Unlock()

	c.thunkMu.Lock()
	c.ThunkSet = make(map[uint64]struct{})
	c.thunkMu.Unlock()

	c.wellKnownMu.Lock()
	c.WellKnownClasses = make(map[string]wire.ClassHandle)
	c.wellKnownMu.Unlock()

	c.aotKnownMu.Lock()
	c.AotCacheKnownIDs = make(map[string]map[uint64]struct{})
	c.aotKnownMu.Unlock()

	c.CHTable.Clear()
	c.clearEpoch.Add(1)
}

// ClearEpoch reports how many times Clear has run on this cache.
func (c *Cache) ClearEpoch() uint64 {
	return c.clearEpoch.Load()
}

// ApplyFullResync installs the client's full session-init snapshot —
// every unloaded address range and the complete CH-table — requested
// after a cache clear was observed (spec.md §4.G step 5). Unlike
// Reconcile's incremental deltas, the CH-table mods here are a
// complete replacement, applied against the already-cleared (empty)
// mirror.
func (c *Cache) ApplyFullResync(ranges [][2]uint64, mods []wire.CHTableModification) {
	converted := make([][2]wire.ClassHandle, len(ranges))
	for i, r := range ranges {
		converted[i] = [2]wire.ClassHandle{wire.ClassHandle(r[0]), wire.ClassHandle(r[1])}
	}

	c.romMu.Lock()
	c.UnloadedAddressRanges = converted
	c.romMu.Unlock()

	c.CHTable.ApplyDeltas(mods, nil)
}

// KnownAotRecordIDs returns a snapshot copy of the AOT record IDs
// already known to this session's client, keyed by record type
// (spec.md §4.H). Used to compute the closure of records that still
// need sending on an AOT cache hit.
func (c *Cache) KnownAotRecordIDs() map[string]map[uint64]struct{} {
	c.aotKnownMu.Lock()
	defer c.aotKnownMu.Unlock()
	out := make(map[string]map[uint64]struct{}, len(c.AotCacheKnownIDs))
	for recordType, ids := range c.AotCacheKnownIDs {
		cp := make(map[uint64]struct{}, len(ids))
		for id := range ids {
			cp[id] = struct{}{}
		}
		out[recordType] = cp
	}
	return out
}

// MarkAotRecordKnown records that the client now has record id of
// recordType cached, so a later closure computation won't resend it.
func (c *Cache) MarkAotRecordKnown(recordType string, id uint64) {
	c.aotKnownMu.Lock()
	defer c.aotKnownMu.Unlock()
	ids, ok := c.AotCacheKnownIDs[recordType]
	if !ok {
		ids = make(map[uint64]struct{})
		c.AotCacheKnownIDs[recordType] = ids
	}
	ids[id] = struct{}{}
}

// Reconcile applies one request's unloaded-classes list, illegal-final-
// field-modification list, and CH-table deltas, in that order
// (spec.md §4.E). It runs before compilation, after sequencing admit,
// while the caller holds the reader side of the session's Gate.
func (c *Cache) Reconcile(req *wire.CompilationRequest) {
	for _, class := range req.Unloads {
		if class == wire.UnloadedClassesSentinel {
			c.Clear()
			continue
		}
		c.unloadClass(class)
	}

	for _, class := range req.IllegalFinalFieldMods {
		c.romMu.Lock()
		if info, ok := c.RomClassMap[class]; ok {
			info.HasIllegalFinalFieldModifications = true
		}
		c.romMu.Unlock()
	}

	c.CHTable.ApplyDeltas(req.CHTableMods, req.CHTableRemoves)
}

// unloadClass marks one class handle unloaded and purges every
// dependent secondary entry (spec.md §4.E step 1).
func (c *Cache) unloadClass(class wire.ClassHandle) {
	c.romMu.Lock()
	c.UnloadedAddressSet[class] = struct{}{}
	info, ok := c.RomClassMap[class]
	if !ok {
		c.romMu.Unlock()
		return
	}
	for method := range info.Methods {
		delete(c.MethodMap, method)
	}
	delete(c.RomClassMap, class)
	loaders := make([]uint64, 0, len(info.ReferencingClassLoaders))
	for loader := range info.ReferencingClassLoaders {
		loaders = append(loaders, loader)
	}
	sig := info.Signature
	c.romMu.Unlock()

	c.classMu.Lock()
	for _, loader := range loaders {
		delete(c.ClassBySignature, classBySigKey{LoaderID: loader, Signature: sig})
	}
	c.classMu.Unlock()

	c.classChainMu.Lock()
	delete(c.ClassChainMap, class)
	c.classChainMu.Unlock()

	c.cpMu.Lock()
	for cp, target := range c.CpToClass {
		if target == class {
			delete(c.CpToClass, cp)
		}
	}
	c.cpMu.Unlock()
}

// LookupClassBySignature is the secondary-index lookup exercised by
// spec.md §8 scenario 4 ("unload purges secondary index").
func (c *Cache) LookupClassBySignature(loaderID uint64, signature string) (wire.ClassHandle, bool) {
	c.classMu.Lock()
	defer c.classMu.Unlock()
	h, ok := c.ClassBySignature[classBySigKey{LoaderID: loaderID, Signature: signature}]
	return h, ok
}

// PutClassBySignature indexes a class under (loader, signature) and
// records the loader on the class's ReferencingClassLoaders so a later
// unload can purge this index entry without a full scan.
func (c *Cache) PutClassBySignature(loaderID uint64, signature string, class wire.ClassHandle) {
	c.classMu.Lock()
	c.ClassBySignature[classBySigKey{LoaderID: loaderID, Signature: signature}] = class
	c.classMu.Unlock()

	c.romMu.Lock()
	if info, ok := c.RomClassMap[class]; ok {
		if info.ReferencingClassLoaders == nil {
			info.ReferencingClassLoaders = make(map[uint64]struct{})
		}
		info.ReferencingClassLoaders[loaderID] = struct{}{}
	}
	c.romMu.Unlock()
}

// PutRomClass inserts or replaces a class's cached ROM class data.
func (c *Cache) PutRomClass(class wire.ClassHandle, info *ClassInfo) {
	c.romMu.Lock()
	defer c.romMu.Unlock()
	c.RomClassMap[class] = info
}

// GetRomClass returns the cached ClassInfo for a handle, or nil if
// absent (a cache miss the caller should resolve via lazy fetch).
func (c *Cache) GetRomClass(class wire.ClassHandle) *ClassInfo {
	c.romMu.Lock()
	defer c.romMu.Unlock()
	return c.RomClassMap[class]
}

// IsUnloaded reports whether a class handle is known-unloaded, either
// individually (UnloadedAddressSet) or within a range reported by a
// full resync (UnloadedAddressRanges).
func (c *Cache) IsUnloaded(class wire.ClassHandle) bool {
	c.romMu.Lock()
	defer c.romMu.Unlock()
	if _, ok := c.UnloadedAddressSet[class]; ok {
		return true
	}
	for _, r := range c.UnloadedAddressRanges {
		if class >= r[0] && class <= r[1] {
			return true
		}
	}
	return false
}
