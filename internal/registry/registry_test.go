package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/internal/session"
)

type fakeShared struct {
	inits, shutdowns int
}

func (f *fakeShared) Init()     { f.inits++ }
func (f *fakeShared) Shutdown() { f.shutdowns++ }

func TestRegistry_InitsSharedOnFirstSessionOnly(t *testing.T) {
	shared := &fakeShared{}
	r := New(Config{}, shared, nil)

	_, isNew1 := r.FindOrCreate(1, 0, session.VMInfo{})
	_, isNew2 := r.FindOrCreate(2, 0, session.VMInfo{})

	assert.True(t, isNew1)
	assert.True(t, isNew2)
	assert.Equal(t, 1, shared.inits)
}

func TestRegistry_ShutsDownSharedOnLastSessionDestroyed(t *testing.T) {
	shared := &fakeShared{}
	r := New(Config{}, shared, nil)

	sessA, _ := r.FindOrCreate(1, 0, session.VMInfo{})
	r.ReleaseAfterRequest(sessA) // drop the FindOrCreate reference
	r.Delete(1, true)

	assert.Equal(t, 1, shared.shutdowns)
}

func TestRegistry_FindIncrementsInUse(t *testing.T) {
	r := New(Config{}, nil, nil)
	r.FindOrCreate(1, 0, session.VMInfo{})

	s := r.Find(1)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.InUse()) // one from FindOrCreate, one from Find
}

func TestRegistry_PurgeOldSkipsInUseSessions(t *testing.T) {
	r := New(Config{IdleEviction: time.Millisecond}, nil, nil)
	r.FindOrCreate(1, 0, session.VMInfo{}) // inUse == 1, never released

	time.Sleep(5 * time.Millisecond)
	r.purgeOld()

	assert.NotNil(t, r.Find(1))
}

func TestRegistry_PurgeOldEvictsIdleUnreferencedSessions(t *testing.T) {
	r := New(Config{IdleEviction: time.Millisecond}, nil, nil)
	s, _ := r.FindOrCreate(1, 0, session.VMInfo{})
	r.ReleaseAfterRequest(s)

	time.Sleep(5 * time.Millisecond)
	r.purgeOld()

	assert.Nil(t, r.Find(1))
}

func TestRegistry_StatsSumsActiveThreadsAcrossSessions(t *testing.T) {
	r := New(Config{}, nil, nil)
	s1, _ := r.FindOrCreate(1, 0, session.VMInfo{})
	s2, _ := r.FindOrCreate(2, 0, session.VMInfo{})
	s1.NumActiveThreads = 2
	s2.NumActiveThreads = 3

	stats := r.Stats()
	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 5, stats.ActiveThreads)
}
