package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// nextEpoch is a process-wide counter handing out sessionEpoch values.
// It exists purely so log lines can distinguish one client's successive
// sessions after eviction/recreation; it plays no part in any invariant
// (SPEC_FULL.md §3).
var nextEpoch atomic.Uint64

// VMInfo is the one-shot immutable client VM description captured at
// session creation (spec.md §3): GC type, pointer width, AOT header,
// shared-cache descriptors, helper addresses, etc. The coordination
// core treats its contents as opaque.
type VMInfo struct {
	AotHeader      []byte
	AotHeaderName  string // used to bind/intern the process-wide AOT cache
	GCPolicy       string
	PointerWidth   int
}

// ClientSession is all server-side state keyed to one client VM
// (spec.md §3, §4.B).
type ClientSession struct {
	ClientID wire.ClientID
	VMInfo   VMInfo

	// SessionEpoch distinguishes this ClientSession instance from a
	// prior one that occupied the same ClientID before eviction and
	// re-creation. Logging-only (SPEC_FULL.md §3); no invariant depends
	// on it.
	SessionEpoch uint64

	Cache *Cache
	Gate  Gate

	// compilation-monitor-guarded fields.
	mu                sync.Mutex
	lastAccess        time.Time
	inUse             int
	markedForDeletion bool

	// diagMu guards teardown diagnostics, surfaced in logs only
	// (SPEC_FULL.md §3).
	diagMu      sync.Mutex
	lastError   error
	closeReason string

	// sequencing-monitor-guarded fields. The Sequencer package mutates
	// these directly while holding SeqMu, matching spec.md §4.D's
	// "holding sequencingMonitor" protocol description.
	SeqMu                   sync.Mutex
	MaxReceivedSeqNo        wire.SeqNo
	LastProcessedCriticalSeqNo wire.SeqNo
	NumActiveThreads        int

	// AOT cache binding (spec.md §4.B GetOrCreateAotCache).
	aotMu           sync.Mutex
	aotCache        interface{} // *aotcache.AotCache; kept as interface{} to avoid an import cycle
	aotCacheBound   bool
	aotCacheDisabledReason string
}

// New constructs a session for clientId with its initial sequence
// number and VM description (spec.md §4.B constructor signature).
func New(clientID wire.ClientID, initialSeqNo wire.SeqNo, vmInfo VMInfo) *ClientSession {
	return &ClientSession{
		ClientID:         clientID,
		VMInfo:           vmInfo,
		SessionEpoch:     nextEpoch.Add(1),
		Cache:            NewCache(),
		lastAccess:       time.Now(),
		MaxReceivedSeqNo: initialSeqNo,
	}
}

// RecordTeardown stamps the diagnostic lastError/closeReason pair at
// session destruction, surfaced in logs only (SPEC_FULL.md §3).
func (s *ClientSession) RecordTeardown(reason string, cause error) {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	s.closeReason = reason
	s.lastError = cause
}

// TeardownDiagnostics returns the closeReason/lastError pair recorded by
// RecordTeardown, if any.
func (s *ClientSession) TeardownDiagnostics() (closeReason string, lastError error) {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	return s.closeReason, s.lastError
}

// IncInUse increments the reference count. Called under the registry's
// monitor (spec.md §4.B).
func (s *ClientSession) IncInUse() {
	s.mu.Lock()
	s.inUse++
	s.mu.Unlock()
}

// DecInUse decrements the reference count and reports whether the
// session is now both unreferenced and marked for deletion — the
// signal the registry uses to actually destroy it.
func (s *ClientSession) DecInUse() (shouldDestroy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse--
	return s.inUse == 0 && s.markedForDeletion
}

// InUse reports the current reference count.
func (s *ClientSession) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// UpdateLastAccess stamps the session as touched right now. Called on
// every admit (spec.md §4.B).
func (s *ClientSession) UpdateLastAccess() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long the session has been untouched.
func (s *ClientSession) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastAccess)
}

// MarkForDeletion sets markedForDeletion. Per spec.md §3, destruction
// is deferred until inUse reaches zero; returns whether the session can
// be destroyed immediately (already unreferenced).
func (s *ClientSession) MarkForDeletion() (shouldDestroyNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markedForDeletion = true
	return s.inUse == 0
}

// MarkedForDeletion reports the current teardown flag.
func (s *ClientSession) MarkedForDeletion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markedForDeletion
}

// ClearCaches destroys every cache entry. Per spec.md §4.B this may
// only run with the writer side of the Gate held and numActiveThreads
// == 0, or during session teardown; callers are responsible for that
// precondition (the sequencer's cache-clear recovery and the request
// processor's full-clear path both hold the writer gate already).
func (s *ClientSession) ClearCaches() {
	s.Cache.Clear()
}

// BindAotCache one-time materializes the AOT cache handle for this
// session's AOT header, or records why it was disabled
// (spec.md §4.B GetOrCreateAotCache). bind is invoked at most once; the
// factory itself deduplicates the (possibly expensive) lookup/create.
func (s *ClientSession) BindAotCache(bind func(vmInfo VMInfo) (cache interface{}, disabledReason string)) interface{} {
	s.aotMu.Lock()
	defer s.aotMu.Unlock()
	if s.aotCacheBound {
		return s.aotCache
	}
	cache, reason := bind(s.VMInfo)
	s.aotCache = cache
	s.aotCacheDisabledReason = reason
	s.aotCacheBound = true
	return cache
}

// AotCacheDisabledReason reports why the AOT cache is unavailable for
// this session, if it is.
func (s *ClientSession) AotCacheDisabledReason() string {
	s.aotMu.Lock()
	defer s.aotMu.Unlock()
	return s.aotCacheDisabledReason
}
