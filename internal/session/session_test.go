package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestClientSession_DecInUseOnlyDestroysWhenMarkedAndUnreferenced(t *testing.T) {
	s := New(1, 0, VMInfo{})
	s.IncInUse()
	s.IncInUse()

	assert.False(t, s.DecInUse())
	assert.False(t, s.MarkForDeletion())
	assert.True(t, s.DecInUse())
}

func TestClientSession_MarkForDeletionDestroysImmediatelyIfUnreferenced(t *testing.T) {
	s := New(1, 0, VMInfo{})
	assert.True(t, s.MarkForDeletion())
}

func TestClientSession_BindAotCacheMaterializesOnce(t *testing.T) {
	s := New(1, 0, VMInfo{AotHeaderName: "h1"})

	calls := 0
	bind := func(vmInfo VMInfo) (interface{}, string) {
		calls++
		return "cache-handle", ""
	}

	got1 := s.BindAotCache(bind)
	got2 := s.BindAotCache(bind)

	assert.Equal(t, 1, calls)
	assert.Equal(t, got1, got2)
	assert.Empty(t, s.AotCacheDisabledReason())
}

func TestClientSession_ClearCachesResetsClassMap(t *testing.T) {
	s := New(1, 0, VMInfo{})
	s.Cache.PutRomClass(wire.ClassHandle(1), &ClassInfo{Signature: "A"})
	s.ClearCaches()
	assert.Nil(t, s.Cache.GetRomClass(wire.ClassHandle(1)))
}

func TestClientSession_SessionEpochDistinguishesRecreatedSessions(t *testing.T) {
	s1 := New(1, 0, VMInfo{})
	s2 := New(1, 0, VMInfo{})
	assert.NotEqual(t, s1.SessionEpoch, s2.SessionEpoch)
}

func TestClientSession_RecordTeardownSurfacesDiagnostics(t *testing.T) {
	s := New(1, 0, VMInfo{})
	reason, err := s.TeardownDiagnostics()
	assert.Empty(t, reason)
	assert.Nil(t, err)

	s.RecordTeardown("transport_error", assert.AnError)
	reason, err = s.TeardownDiagnostics()
	assert.Equal(t, "transport_error", reason)
	assert.ErrorIs(t, err, assert.AnError)
}
