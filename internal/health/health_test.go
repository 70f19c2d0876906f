package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eclipse-openj9/openj9-sub029/config"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestSampler_InitialTagsAreNormal(t *testing.T) {
	s := New(config.HealthConfig{}, nil, nil)
	tags := s.Tags()
	assert.Equal(t, wire.MemoryNormal, tags.MemoryState)
	assert.Equal(t, wire.ThreadNormal, tags.ThreadState)
}

func TestSampler_ThreadStateBucketsByActiveThreadCount(t *testing.T) {
	cfg := config.HealthConfig{
		ThreadsHighWatermark:     4,
		ThreadsVeryHighWatermark: 8,
		SafeReserveBytes:         0,
		ScratchLowerBoundBytes:   0,
	}
	active := 10
	s := New(cfg, func() int { return active }, nil)

	tags := s.sample()
	assert.Equal(t, wire.ThreadVeryHigh, tags.ThreadState)

	active = 5
	tags = s.sample()
	assert.Equal(t, wire.ThreadHigh, tags.ThreadState)

	active = 1
	tags = s.sample()
	assert.Equal(t, wire.ThreadNormal, tags.ThreadState)
}

func TestSampler_MemoryStateBucketsPerSpecFormula(t *testing.T) {
	cfg := config.HealthConfig{SafeReserveBytes: 100, ScratchLowerBoundBytes: 10}
	numClients := 20 // clamped to 16, so low = 100 + (16+4)*10 = 300
	s := New(cfg, nil, func() int { return numClients })

	s.freeMemory = func() (uint64, error) { return 139, nil } // < veryLow (140)
	assert.Equal(t, wire.MemoryVeryLow, s.sample().MemoryState)

	s.freeMemory = func() (uint64, error) { return 200, nil } // >= veryLow, < low (300)
	assert.Equal(t, wire.MemoryLow, s.sample().MemoryState)

	s.freeMemory = func() (uint64, error) { return 301, nil } // >= low
	assert.Equal(t, wire.MemoryNormal, s.sample().MemoryState)
}

func TestSampler_RunUpdatesTagsAndStopsOnContextCancel(t *testing.T) {
	cfg := config.HealthConfig{NormalRefreshMS: 5, LowRefreshMS: 5}
	s := New(cfg, func() int { return 0 }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
