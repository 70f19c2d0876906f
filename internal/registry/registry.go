// Package registry implements the process-wide session registry of
// spec.md §4.C: a clientId → *ClientSession map with age-based
// eviction, and the shared server-wide resources (the shared ROMClass
// cache handle) that come up on the first session and tear down on the
// last.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// SharedResources bundles process-wide collaborators initialized on the
// first session and shut down when the last one departs
// (spec.md §4.C, §9 "Global state").
type SharedResources interface {
	// Init is called exactly once, under the registry's monitor, when
	// the first session is created.
	Init()
	// Shutdown is called exactly once, under the registry's monitor,
	// when the last session is destroyed.
	Shutdown()
}

// Config controls eviction behavior: the eviction ages of
// config.RegistryConfig as durations, converted by the caller so this
// package does not depend on the config package.
type Config struct {
	IdleEviction       time.Duration
	IdleEvictionLowMem time.Duration
}

// MemoryPressureFunc reports whether the process is currently under
// memory pressure, in which case purgeOld uses the shorter eviction age
// (spec.md §4.C).
type MemoryPressureFunc func() bool

// Registry is the process-wide clientId -> session map.
type Registry struct {
	cfg     Config
	lowMem  MemoryPressureFunc
	shared  SharedResources
	log     *zap.SugaredLogger

	mu       sync.Mutex // "compilation monitor" in spec.md terms
	sessions map[wire.ClientID]*session.ClientSession
}

// New constructs an empty registry.
func New(cfg Config, shared SharedResources, lowMem MemoryPressureFunc) *Registry {
	return &Registry{
		cfg:      cfg,
		lowMem:   lowMem,
		shared:   shared,
		log:      logger.Named("registry"),
		sessions: make(map[wire.ClientID]*session.ClientSession),
	}
}

// FindOrCreate returns the session for clientId, creating it (with
// vmInfo, from the caller) if absent. Increments inUse. On first
// insertion into an empty registry, initializes shared resources
// (spec.md §4.C).
func (r *Registry) FindOrCreate(clientID wire.ClientID, seqNo wire.SeqNo, vmInfo session.VMInfo) (sess *session.ClientSession, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[clientID]; ok {
		s.IncInUse()
		s.UpdateLastAccess()
		return s, false
	}

	if len(r.sessions) == 0 && r.shared != nil {
		r.shared.Init()
	}

	s := session.New(clientID, seqNo, vmInfo)
	s.IncInUse()
	r.sessions[clientID] = s
	r.log.Infow("created client session", "client_id", clientID)
	return s, true
}

// Find returns an existing session, incrementing inUse and refreshing
// last-access, or nil if none exists.
func (r *Registry) Find(clientID wire.ClientID) *session.ClientSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return nil
	}
	s.IncInUse()
	s.UpdateLastAccess()
	return s
}

// Delete marks (or immediately destroys) a session. If forDeletion is
// true the session's markedForDeletion flag is set; actual destruction
// only happens once inUse reaches zero (spec.md §4.C).
func (r *Registry) Delete(clientID wire.ClientID, forDeletion bool) {
	r.mu.Lock()
	s, ok := r.sessions[clientID]
	r.mu.Unlock()
	if !ok {
		return
	}

	var destroyNow bool
	if forDeletion {
		destroyNow = s.MarkForDeletion()
	} else {
		destroyNow = s.InUse() == 0
	}
	if destroyNow {
		r.destroy(clientID)
	}
}

// ReleaseAfterRequest drops the reference taken by FindOrCreate or Find;
// serverd calls it when a connection is done with its session
// (spec.md §4.B "decInUse reaching zero triggers destruction via the
// registry").
func (r *Registry) ReleaseAfterRequest(s *session.ClientSession) {
	if s.DecInUse() {
		r.destroy(s.ClientID)
	}
}

func (r *Registry) destroy(clientID wire.ClientID) {
	r.mu.Lock()
	s, ok := r.sessions[clientID]
	delete(r.sessions, clientID)
	empty := len(r.sessions) == 0
	r.mu.Unlock()

	if ok {
		closeReason, lastErr := s.TeardownDiagnostics()
		r.log.Infow("destroyed client session",
			"client_id", clientID, "session_epoch", s.SessionEpoch,
			"close_reason", closeReason, "last_error", lastErr)
	} else {
		r.log.Infow("destroyed client session", "client_id", clientID)
	}

	if empty && r.shared != nil {
		r.shared.Shutdown()
	}
}

// purgeOld scans for sessions idle longer than the configured age
// (shorter under memory pressure) and evicts them. Never evicts an
// in-use session regardless of age (spec.md §4.C).
func (r *Registry) purgeOld() {
	age := r.cfg.IdleEviction
	if r.lowMem != nil && r.lowMem() {
		age = r.cfg.IdleEvictionLowMem
	}

	r.mu.Lock()
	var candidates []wire.ClientID
	for id, s := range r.sessions {
		if s.InUse() > 0 {
			continue
		}
		if s.IdleSince() > age {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	for _, id := range candidates {
		r.Delete(id, true)
	}
}

// PurgeLoop runs purgeOld on a ticker until ctx is cancelled, the same
// way this codebase runs its scheduled-job ticker as a dedicated
// goroutine off a time.Ticker.
func (r *Registry) PurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.purgeOld()
		}
	}
}

// Stats reports aggregate registry state, consumed by the health
// sampler for the thread-pressure tag (spec.md §4.I).
type Stats struct {
	SessionCount  int
	ActiveThreads int
}

// Stats returns a point-in-time snapshot.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{SessionCount: len(r.sessions)}
	for _, s := range r.sessions {
		s.SeqMu.Lock()
		stats.ActiveThreads += s.NumActiveThreads
		s.SeqMu.Unlock()
	}
	return stats
}
