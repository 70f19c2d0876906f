// Package health implements the resource-pressure sampler of
// spec.md §4.I: periodic memory and thread-pressure sampling that
// feeds the MemoryState/ThreadState tags attached to every server
// reply, and tightens its own refresh interval under pressure.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/eclipse-openj9/openj9-sub029/config"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// ActiveThreadsFunc reports the current process-wide active compile
// thread count, supplied by the registry (spec.md §4.I thread tag).
type ActiveThreadsFunc func() int

// ClientCountFunc reports the current number of live sessions, supplied
// by the registry (spec.md §4.I "low" memory threshold scales with the
// number of connected clients).
type ClientCountFunc func() int

// FreeMemoryFunc reports free physical memory in bytes. Production
// code defaults to wrapping gopsutil's mem.VirtualMemory; tests inject
// a stub to drive the threshold formula without touching the host.
type FreeMemoryFunc func() (uint64, error)

// Sampler periodically samples host memory and active-thread count and
// exposes the current wire.HealthTags snapshot lock-free.
type Sampler struct {
	cfg           config.HealthConfig
	activeThreads ActiveThreadsFunc
	numClients    ClientCountFunc
	freeMemory    FreeMemoryFunc
	log           *zap.SugaredLogger

	current atomic.Value // stores wire.HealthTags
}

// New constructs a Sampler with an initial Normal/Normal snapshot.
func New(cfg config.HealthConfig, activeThreads ActiveThreadsFunc, numClients ClientCountFunc) *Sampler {
	s := &Sampler{
		cfg:           cfg,
		activeThreads: activeThreads,
		numClients:    numClients,
		freeMemory:    defaultFreeMemory,
		log:           logger.Named("health"),
	}
	s.current.Store(wire.HealthTags{MemoryState: wire.MemoryNormal, ThreadState: wire.ThreadNormal})
	return s
}

func defaultFreeMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Tags returns the most recent sampled snapshot. Safe for concurrent
// use; never blocks on the sampling loop.
func (s *Sampler) Tags() wire.HealthTags {
	return s.current.Load().(wire.HealthTags)
}

// Run samples on a ticker until ctx is cancelled, tightening its own
// interval under pressure the way the reference VM's resource monitor
// self-adjusts (spec.md §4.I "faster refresh near the limits").
func (s *Sampler) Run(ctx context.Context) {
	interval := s.normalInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			tags := s.sample()
			s.current.Store(tags)

			interval = s.normalInterval()
			if tags.MemoryState != wire.MemoryNormal || tags.ThreadState != wire.ThreadNormal {
				interval = s.lowInterval()
			}
			timer.Reset(interval)
		}
	}
}

func (s *Sampler) normalInterval() time.Duration {
	ms := s.cfg.NormalRefreshMS
	if ms <= 0 {
		ms = 250
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Sampler) lowInterval() time.Duration {
	ms := s.cfg.LowRefreshMS
	if ms <= 0 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// sample reads host memory via the injected FreeMemoryFunc and buckets
// it alongside the active-thread count per spec.md §4.I's thresholds.
func (s *Sampler) sample() wire.HealthTags {
	tags := wire.HealthTags{MemoryState: wire.MemoryNormal, ThreadState: wire.ThreadNormal}

	free, err := s.freeMemory()
	if err != nil {
		s.log.Warnw("failed to sample host memory, assuming normal", "error", err)
		return tags
	}

	tags.MemoryState = s.memoryState(free)

	if s.activeThreads != nil {
		n := s.activeThreads()
		switch {
		case n >= s.cfg.ThreadsVeryHighWatermark:
			tags.ThreadState = wire.ThreadVeryHigh
		case n >= s.cfg.ThreadsHighWatermark:
			tags.ThreadState = wire.ThreadHigh
		default:
			tags.ThreadState = wire.ThreadNormal
		}
	}

	return tags
}

// memoryState applies spec.md §4.I's threshold formula:
//
//	veryLow = safeReserve + 4*scratchLowerBound
//	low     = safeReserve + (min(numClients,16) + 4)*scratchLowerBound
//
// numClients is clamped to [0,16] so an unbounded client count can't
// push the "low" threshold arbitrarily high.
func (s *Sampler) memoryState(free uint64) wire.MemoryState {
	numClients := 0
	if s.numClients != nil {
		numClients = s.numClients()
	}
	if numClients < 0 {
		numClients = 0
	}
	if numClients > 16 {
		numClients = 16
	}

	veryLow := s.cfg.SafeReserveBytes + 4*s.cfg.ScratchLowerBoundBytes
	low := s.cfg.SafeReserveBytes + int64(numClients+4)*s.cfg.ScratchLowerBoundBytes

	switch {
	case int64(free) < veryLow:
		return wire.MemoryVeryLow
	case int64(free) < low:
		return wire.MemoryLow
	default:
		return wire.MemoryNormal
	}
}
