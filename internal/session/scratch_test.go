package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestScratch_UnresolvedEntryExpiresAfterTTL(t *testing.T) {
	s := NewScratch()
	s.PutUnresolved(1, "tentative")

	v, ok := s.GetUnresolved(1)
	assert.True(t, ok)
	assert.Equal(t, "tentative", v)

	v, ok = s.GetUnresolved(1)
	assert.True(t, ok)
	assert.Equal(t, "tentative", v)

	_, ok = s.GetUnresolved(1)
	assert.False(t, ok, "entry should be evicted once its TTL is exhausted")
}

func TestScratch_GetMissingReturnsFalse(t *testing.T) {
	s := NewScratch()
	_, ok := s.GetUnresolved(wire.MethodHandle(42))
	assert.False(t, ok)
}

func TestScratch_ResetDropsAllEntries(t *testing.T) {
	s := NewScratch()
	s.PutUnresolved(1, "a")
	s.Reset()
	_, ok := s.GetUnresolved(1)
	assert.False(t, ok)
}
