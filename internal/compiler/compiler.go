// Package compiler implements the per-request state machine of
// spec.md §4.G: QUEUED -> AWAITING_ORDER -> READY ->
// COMPILING|SERVING_AOT -> REPLYING -> DONE|ABORTED, plus the error
// taxonomy mapping of spec.md §7.
package compiler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/aotcache"
	"github.com/eclipse-openj9/openj9-sub029/internal/health"
	"github.com/eclipse-openj9/openj9-sub029/internal/registry"
	"github.com/eclipse-openj9/openj9-sub029/internal/sequencer"
	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// State is one stage of the request state machine (spec.md §4.G).
type State string

const (
	StateQueued        State = "QUEUED"
	StateAwaitingOrder State = "AWAITING_ORDER"
	StateReady         State = "READY"
	StateCompiling     State = "COMPILING"
	StateServingAot    State = "SERVING_AOT"
	StateReplying      State = "REPLYING"
	StateDone          State = "DONE"
	StateAborted       State = "ABORTED"
)

// ExternalCompiler is the black-box JIT backend: given a resolved
// method reference and optimization plan, it either returns compiled
// code or fails. The coordination core never inspects what happens
// inside it (spec.md §1 Non-goals).
type ExternalCompiler interface {
	Compile(ctx context.Context, req *wire.CompilationRequest, scratch *session.Scratch) (*wire.CompilationCode, error)
}

// Processor drives the full per-request lifecycle: admission ordering,
// cache reconcile, gate-guarded compilation, and reply dispatch.
type Processor struct {
	registry   *registry.Registry
	sequencer  *sequencer.Sequencer
	aotCaches  *aotcache.Map
	compiler   ExternalCompiler
	sampler    *health.Sampler
	log        *zap.SugaredLogger
}

// New constructs a Processor wired to the shared registry, sequencer,
// AOT cache table and health sampler.
func New(reg *registry.Registry, seq *sequencer.Sequencer, caches *aotcache.Map, comp ExternalCompiler, sampler *health.Sampler) *Processor {
	return &Processor{
		registry:  reg,
		sequencer: seq,
		aotCaches: caches,
		compiler:  comp,
		sampler:   sampler,
		log:       logger.Named("compiler"),
	}
}

// Handle runs one request end to end and writes exactly one terminal
// reply (CompilationCode, AOTCache_serializedAOTMethod on an AOT cache
// hit, or CompilationFailure) to str, unless the connection itself
// failed first (spec.md §4.G, §4.A).
func (p *Processor) Handle(ctx context.Context, str *stream.Stream, sess *session.ClientSession, req *wire.CompilationRequest) error {
	state := StateQueued
	log := p.log.With(logger.FieldClientID, sess.ClientID, logger.FieldSeqNo, req.SeqNo)

	epochAtStart := sess.Cache.ClearEpoch()

	state = StateAwaitingOrder
	if err := p.sequencer.Admit(ctx, sess, req); err != nil {
		return p.fail(str, state, err, log)
	}

	sess.Gate.ReadLock()
	defer sess.Gate.ReadUnlock()

	if err := sess.Gate.CheckInterrupted(); err != nil {
		return p.fail(str, state, err, log)
	}

	state = StateReady
	sess.Cache.Reconcile(req)
	if req.IsCritical() {
		p.sequencer.MarkCriticalDone(sess, req.SeqNo)
	}

	if sess.Cache.ClearEpoch() != epochAtStart {
		if err := p.resync(str, sess); err != nil {
			return p.fail(str, state, err, log)
		}
	}

	sess.SeqMu.Lock()
	sess.NumActiveThreads++
	sess.SeqMu.Unlock()
	defer func() {
		sess.SeqMu.Lock()
		sess.NumActiveThreads--
		sess.SeqMu.Unlock()
	}()

	scratch := session.NewScratch()
	defer scratch.Reset()

	if req.UseAotCompilation && req.IsAotCacheLoad {
		state = StateServingAot
		sent, aotErr := p.serveFromAotCache(str, sess, req)
		if sent {
			if aotErr != nil {
				state = StateAborted
				log.Warnw("failed to write AOT cache hit reply", "error", aotErr)
				return aotErr
			}
			state = StateDone
			log.Debugw("compilation request served from AOT cache", logger.FieldState, state)
			return nil
		}
	}

	state = StateCompiling
	reply, err := p.compiler.Compile(ctx, req, scratch)
	if err != nil {
		return p.fail(str, state, err, log)
	}

	if req.UseAotCompilation && req.IsAotCacheStore {
		p.storeToAotCache(sess, req, reply)
	}

	state = StateReplying
	reply.Health = p.sampler.Tags()
	if werr := str.FinishCompilation(*reply); werr != nil {
		state = StateAborted
		log.Warnw("failed to write compilation reply", "error", werr)
		return werr
	}

	state = StateDone
	log.Debugw("compilation request completed", logger.FieldState, state)
	return nil
}

// resync requests a full session-init snapshot from the client after
// this session's caches were just observed cleared — either by the
// sequencer's timeout-driven recovery (§4.D) or the Unloads sentinel's
// full-clear path (§4.E) — and installs the answer in place of trusting
// the incremental delta already applied by Reconcile (spec.md §4.G
// step 5).
func (p *Processor) resync(str *stream.Stream, sess *session.ClientSession) error {
	reply, err := str.RequestFullResync(sess.ClientID)
	if err != nil {
		return err
	}
	sess.Cache.ApplyFullResync(reply.UnloadedAddressRanges, reply.CHTableMods)
	return nil
}

// resolveClassChain interns this session's AOT header and the class
// chain of the method being requested, so the load and store paths key
// their MethodKey identically (spec.md §4.H). The coordination core
// never inspects chain contents; the chain's identity is just the
// (header, class) pair, which is stable across repeated requests for
// the same class under the same cache.
func resolveClassChain(cache *aotcache.AotCache, sess *session.ClientSession, req *wire.CompilationRequest) (classChain, header aotcache.RecordKey) {
	header = cache.InternAotHeader(sess.VMInfo.AotHeaderName, sess.VMInfo.AotHeader)
	chainIdentity := fmt.Sprintf("%s:%d", sess.VMInfo.AotHeaderName, req.Method.Class)
	classChain = cache.InternClassChain(chainIdentity, []aotcache.RecordKey{header})
	return classChain, header
}

// serveFromAotCache attempts a cache hit against the session's bound
// AOT cache (spec.md §4.H "Lookup", §4.G SERVING_AOT). On a hit it
// computes the record closure the client doesn't already have and
// writes the distinguished AOTCacheSerializedAOTMethod reply directly,
// reporting sent=true so the caller never falls through to the
// external compiler (spec.md §8 scenario 5). A miss or unavailable
// cache reports sent=false so the caller compiles normally.
func (p *Processor) serveFromAotCache(str *stream.Stream, sess *session.ClientSession, req *wire.CompilationRequest) (sent bool, err error) {
	cacheIface := sess.BindAotCache(p.aotCaches.Bind)
	cache, ok := cacheIface.(*aotcache.AotCache)
	if !ok || cache == nil {
		return false, nil
	}

	classChain, header := resolveClassChain(cache, sess, req)
	key := aotcache.MethodKey{ClassChain: classChain, MethodIndex: req.Method.Index, OptLevel: req.Method.OptLevel, AotHeader: header}
	cached, ok := cache.FindMethod(key)
	if !ok {
		return false, nil
	}

	known := sess.Cache.KnownAotRecordIDs()
	knownTyped := make(map[aotcache.RecordType]map[aotcache.RecordID]struct{}, len(known))
	for recordType, ids := range known {
		typed := make(map[aotcache.RecordID]struct{}, len(ids))
		for id := range ids {
			typed[aotcache.RecordID(id)] = struct{}{}
		}
		knownTyped[aotcache.RecordType(recordType)] = typed
	}

	closure := cache.RecordClosure(cached.DefiningClassChain, knownTyped)
	newRecords := make(map[string][]byte, len(closure))
	for _, rec := range closure {
		newRecords[fmt.Sprintf("%s:%d", rec.Type, rec.ID)] = rec.Opaque
		sess.Cache.MarkAotRecordKnown(string(rec.Type), uint64(rec.ID))
	}

	reply := wire.AOTCacheSerializedAOTMethod{
		SerializedMethod: cached.SerializedMethod,
		NewRecords:       newRecords,
		Health:           p.sampler.Tags(),
	}
	if werr := str.FinishAotCacheHit(reply); werr != nil {
		return true, werr
	}
	return true, nil
}

// storeToAotCache persists a freshly compiled method, best-effort: a
// failure to store never fails the request that produced the method
// (spec.md §4.H "Store").
func (p *Processor) storeToAotCache(sess *session.ClientSession, req *wire.CompilationRequest, reply *wire.CompilationCode) {
	cacheIface := sess.BindAotCache(p.aotCaches.Bind)
	cache, ok := cacheIface.(*aotcache.AotCache)
	if !ok || cache == nil {
		return
	}
	classChain, header := resolveClassChain(cache, sess, req)
	key := aotcache.MethodKey{ClassChain: classChain, MethodIndex: req.Method.Index, OptLevel: req.Method.OptLevel, AotHeader: header}
	cache.StoreMethod(key, reply.Code)
}

// fail classifies err per spec.md §7's error taxonomy and writes the
// matching CompilationFailure reply.
func (p *Processor) fail(str *stream.Stream, state State, err error, log *zap.SugaredLogger) error {
	code := classify(err)
	tags := p.sampler.Tags()
	log.Infow("compilation request failed", logger.FieldState, state, logger.FieldError, err, logger.FieldErrorKind, code)

	if errors.Is(err, stream.ErrStreamFailure) || errors.Is(err, stream.ErrConnectionTerminate) {
		// The connection itself is unusable; don't try to write a reply.
		return err
	}
	return str.WriteError(code, &tags)
}

// classify maps an internal error to the wire status code the client
// is expected to react to (spec.md §7).
func classify(err error) wire.StatusCode {
	switch {
	case errors.Is(err, stream.ErrVersionIncompatible):
		return wire.StatusStreamVersionIncompatible
	case errors.Is(err, stream.ErrMessageTypeMismatch):
		return wire.StatusStreamMessageTypeMismatch
	case errors.Is(err, stream.ErrOutOfOrder):
		return wire.StatusStreamLostMessage
	default:
		return wire.StatusGenericFailure
	}
}

// DefaultCompileTimeout bounds how long one compilation may run before
// its context is cancelled by the caller (spec.md §1 "bounded work").
const DefaultCompileTimeout = 30 * time.Second
