// Package aotcache implements the optional, process-wide AOT
// (ahead-of-time) compiled-method cache of spec.md §4.H: a persistent,
// identity-keyed cache of compiled artifacts, keyed by a class-chain
// fingerprint, interned per cache name.
package aotcache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/eclipse-openj9/openj9-sub029/errors"
)

// RecordType tags the kind of an interned record; together with an Id
// it forms the stable (type, id) pair clients use to refer to records
// they've already seen (spec.md §3 "AOT cache record types").
type RecordType string

const (
	RecordClassLoader      RecordType = "ClassLoaderRecord"
	RecordClass            RecordType = "ClassRecord"
	RecordMethod           RecordType = "MethodRecord"
	RecordClassChain       RecordType = "ClassChainRecord"
	RecordWellKnownClasses RecordType = "WellKnownClassesRecord"
	RecordAotHeader        RecordType = "AotHeaderRecord"
)

// RecordID identifies one interned record of a given RecordType.
type RecordID uint64

// Record is one opaque, identity-interned AOT record. The coordination
// core never inspects its payload — only its (type, id) identity and
// which other records it references (for computing the record
// closure on a cache hit).
type Record struct {
	Type   RecordType
	ID     RecordID
	Refs   []RecordKey // other records this one transitively references
	Opaque []byte      // server-opaque payload, round-tripped via gob
}

// RecordKey is the (type, id) identity pair for a Record.
type RecordKey struct {
	Type RecordType
	ID   RecordID
}

// CachedAotMethod is a compiled method stored in the AOT cache,
// keyed by (definingClassChain, methodIndex, optLevel, aotHeader).
type CachedAotMethod struct {
	Key                  MethodKey
	SerializedMethod     []byte
	DefiningClassChain   RecordKey
	RecordID             RecordID
}

// MethodKey identifies one cached compiled method.
type MethodKey struct {
	ClassChain RecordKey
	MethodIndex int
	OptLevel    string
	AotHeader   RecordKey
}

// AotCache is one interned, process-wide named cache. Classes,
// class-loaders, methods, class chains, well-known-class sets, AOT
// headers and compiled methods are de-duplicated by identity.
type AotCache struct {
	name string
	dir  string

	mu         sync.Mutex
	records    map[RecordKey]*Record
	nextID     map[RecordType]RecordID
	methods    map[MethodKey]*CachedAotMethod
	byIdentity map[RecordType]map[string]RecordKey
}

func newAotCache(name, dir string) *AotCache {
	return &AotCache{
		name:       name,
		dir:        dir,
		records:    make(map[RecordKey]*Record),
		nextID:     make(map[RecordType]RecordID),
		methods:    make(map[MethodKey]*CachedAotMethod),
		byIdentity: make(map[RecordType]map[string]RecordKey),
	}
}

// intern inserts opaque under (type, computed id) if an equivalent
// record isn't already present, returning its stable key. Because the
// coordination core treats records as opaque, "equivalent" here is
// decided by the caller supplying a stable identity string; intern
// itself just hands out a new id on first sight of that identity.
func (c *AotCache) intern(t RecordType, identity string, refs []RecordKey, opaque []byte) RecordKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byIdentity[t][identity]; ok {
		return existing
	}
	id := c.nextID[t] + 1
	c.nextID[t] = id
	key := RecordKey{Type: t, ID: id}
	c.records[key] = &Record{Type: t, ID: id, Refs: refs, Opaque: opaque}
	if c.byIdentity[t] == nil {
		c.byIdentity[t] = make(map[string]RecordKey)
	}
	c.byIdentity[t][identity] = key
	return key
}

// FindMethod looks up a cached compiled method
// (spec.md §4.H "Lookup").
func (c *AotCache) FindMethod(key MethodKey) (*CachedAotMethod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[key]
	return m, ok
}

// StoreMethod materializes and atomically inserts a CachedAotMethod
// after a successful compile whose request asked for store
// (spec.md §4.H "Store").
func (c *AotCache) StoreMethod(key MethodKey, serializedMethod []byte) *CachedAotMethod {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &CachedAotMethod{
		Key:                key,
		SerializedMethod:   serializedMethod,
		DefiningClassChain: key.ClassChain,
	}
	c.methods[key] = m
	return m
}

// RecordClosure walks the records reachable from start (inclusive),
// without descending past a record already in known, and returns those
// NOT already in known — the set the server must send
// the client before it can deserialize a cache-hit method
// (spec.md §4.H "Lookup").
func (c *AotCache) RecordClosure(start RecordKey, known map[RecordType]map[RecordID]struct{}) []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	visited := make(map[RecordKey]struct{})
	var out []*Record

	var walk func(key RecordKey)
	walk = func(key RecordKey) {
		if _, seen := visited[key]; seen {
			return
		}
		visited[key] = struct{}{}
		rec, ok := c.records[key]
		if !ok {
			return
		}
		if ids, ok := known[key.Type]; ok {
			if _, already := ids[key.ID]; already {
				return // client already has it; don't walk further or resend
			}
		}
		out = append(out, rec)
		for _, ref := range rec.Refs {
			walk(ref)
		}
	}
	walk(start)
	return out
}

// InternClassChain interns a class-chain record. chainIdentity is the
// record's identity and refs the records it references; the resulting
// key is stable across repeated intern calls for the same chainIdentity.
func (c *AotCache) InternClassChain(chainIdentity string, refs []RecordKey) RecordKey {
	return c.intern(RecordClassChain, chainIdentity, refs, nil)
}

// InternAotHeader interns the single AotHeaderRecord for this cache's
// fixed header, returning its key.
func (c *AotCache) InternAotHeader(identity string, payload []byte) RecordKey {
	return c.intern(RecordAotHeader, identity, nil, payload)
}

// SaveToDisk persists every interned record and cached method to one
// file under the cache's directory. The cache treats the on-disk
// format as opaque (spec.md §6); gob round-trips the Go structs
// directly without a bespoke layout (see SPEC_FULL.md's stdlib
// justification for why this isn't one of the pack's wire-format
// libraries).
func (c *AotCache) SaveToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create AOT cache directory")
	}
	path := filepath.Join(c.dir, c.name+".aotcache")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create AOT cache file %s", path)
	}
	defer f.Close()

	snapshot := struct {
		Records map[RecordKey]*Record
		Methods map[MethodKey]*CachedAotMethod
		NextID  map[RecordType]RecordID
	}{c.records, c.methods, c.nextID}

	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return errors.Wrapf(err, "failed to encode AOT cache %s", c.name)
	}
	return nil
}

// LoadFromDisk populates the cache from its persisted file, if present.
func (c *AotCache) LoadFromDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, c.name+".aotcache")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open AOT cache file %s", path)
	}
	defer f.Close()

	var snapshot struct {
		Records map[RecordKey]*Record
		Methods map[MethodKey]*CachedAotMethod
		NextID  map[RecordType]RecordID
	}
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return errors.Wrapf(err, "failed to decode AOT cache %s", c.name)
	}
	c.records = snapshot.Records
	c.methods = snapshot.Methods
	c.nextID = snapshot.NextID
	return nil
}

// diagnosticID returns a fresh random UUID string on every call (not
// part of the wire protocol). It is not stored on an AotCache, and no
// code in this module calls it or logs its result.
func diagnosticID() string { return uuid.NewString() }
