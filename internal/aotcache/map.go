package aotcache

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// Map is the process-wide, name-interned table of AotCache instances
// (spec.md §4.H "one cache per AOT header name, shared across
// sessions that report the same header").
type Map struct {
	dir string
	log *zap.SugaredLogger

	mu     sync.Mutex
	caches map[string]*AotCache
}

// NewMap constructs an empty cache table. dir == "" disables
// persistence entirely; caches remain in-memory only.
func NewMap(dir string) *Map {
	return &Map{
		dir:    dir,
		log:    logger.Named("aotcache"),
		caches: make(map[string]*AotCache),
	}
}

// GetOrCreate returns the named cache, creating and loading it from
// disk on first use.
func (m *Map) GetOrCreate(name string) (*AotCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[name]; ok {
		return c, nil
	}
	c := newAotCache(name, m.dir)
	if err := c.LoadFromDisk(); err != nil {
		m.log.Warnw("failed to load AOT cache from disk, starting empty", "name", name, "error", err)
	}
	m.caches[name] = c
	return c, nil
}

// SaveAll persists every live cache, e.g. on graceful shutdown.
func (m *Map) SaveAll() {
	m.mu.Lock()
	caches := make([]*AotCache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	for _, c := range caches {
		if err := c.SaveToDisk(); err != nil {
			m.log.Warnw("failed to save AOT cache to disk", "name", c.name, "error", err)
		}
	}
}

// Bind is the session.ClientSession.BindAotCache callback: it resolves
// a session's VM-reported AOT header name to a shared *AotCache, or
// reports why the session can't use one (spec.md §4.B
// "GetOrCreateAotCache").
func (m *Map) Bind(vmInfo session.VMInfo) (cache interface{}, disabledReason string) {
	if vmInfo.AotHeaderName == "" {
		return nil, "client VM reported no AOT header; AOT cache unavailable for this session"
	}
	c, err := m.GetOrCreate(vmInfo.AotHeaderName)
	if err != nil {
		return nil, err.Error()
	}
	return c, ""
}
