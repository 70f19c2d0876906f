package aotcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/internal/session"
)

func TestAotCache_InternIsIdempotentByIdentity(t *testing.T) {
	c := newAotCache("test", "")

	k1 := c.InternClassChain("chain-a", nil)
	k2 := c.InternClassChain("chain-a", nil)
	k3 := c.InternClassChain("chain-b", nil)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestAotCache_RecordClosureExcludesKnownRecords(t *testing.T) {
	c := newAotCache("test", "")

	header := c.InternAotHeader("header-1", []byte("h"))
	chain := c.InternClassChain("chain-1", []RecordKey{header})

	known := map[RecordType]map[RecordID]struct{}{
		RecordAotHeader: {header.ID: struct{}{}},
	}

	closure := c.RecordClosure(chain, known)
	require.Len(t, closure, 1)
	assert.Equal(t, RecordClassChain, closure[0].Type)
}

func TestAotCache_RecordClosureWithNoKnownRecordsWalksEverything(t *testing.T) {
	c := newAotCache("test", "")
	header := c.InternAotHeader("header-1", []byte("h"))
	chain := c.InternClassChain("chain-1", []RecordKey{header})

	closure := c.RecordClosure(chain, nil)
	assert.Len(t, closure, 2)
}

func TestAotCache_StoreAndFindMethod(t *testing.T) {
	c := newAotCache("test", "")
	key := MethodKey{MethodIndex: 3, OptLevel: "warm"}

	_, ok := c.FindMethod(key)
	assert.False(t, ok)

	c.StoreMethod(key, []byte("compiled"))
	got, ok := c.FindMethod(key)
	require.True(t, ok)
	assert.Equal(t, []byte("compiled"), got.SerializedMethod)
}

func TestAotCache_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := newAotCache("roundtrip", dir)

	key := MethodKey{MethodIndex: 1, OptLevel: "hot"}
	c.StoreMethod(key, []byte("payload"))
	c.InternAotHeader("header-1", []byte("h"))

	require.NoError(t, c.SaveToDisk())

	reloaded := newAotCache("roundtrip", dir)
	require.NoError(t, reloaded.LoadFromDisk())

	got, ok := reloaded.FindMethod(key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got.SerializedMethod)
}

func TestMap_GetOrCreateInternsByName(t *testing.T) {
	m := NewMap("")
	c1, err := m.GetOrCreate("vm-header-1")
	require.NoError(t, err)
	c2, err := m.GetOrCreate("vm-header-1")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestMap_BindReportsDisabledReasonWhenHeaderNameEmpty(t *testing.T) {
	m := NewMap("")
	cache, reason := m.Bind(session.VMInfo{})
	assert.Nil(t, cache)
	assert.NotEmpty(t, reason)
}

func TestMap_BindResolvesSharedCacheByHeaderName(t *testing.T) {
	m := NewMap("")
	cache, reason := m.Bind(session.VMInfo{AotHeaderName: "vm-header-1"})
	require.Empty(t, reason)
	require.NotNil(t, cache)

	again, _ := m.Bind(session.VMInfo{AotHeaderName: "vm-header-1"})
	assert.Same(t, cache, again)
}
