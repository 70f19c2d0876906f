package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestCache_UnloadPurgesSecondaryIndex(t *testing.T) {
	c := NewCache()
	c.PutRomClass(10, &ClassInfo{Signature: "Lfoo/Bar;", LoaderID: 1})
	c.PutClassBySignature(1, "Lfoo/Bar;", 10)

	h, ok := c.LookupClassBySignature(1, "Lfoo/Bar;")
	require.True(t, ok)
	assert.Equal(t, wire.ClassHandle(10), h)

	c.Reconcile(&wire.CompilationRequest{Unloads: []wire.ClassHandle{10}})

	_, ok = c.LookupClassBySignature(1, "Lfoo/Bar;")
	assert.False(t, ok)
	assert.True(t, c.IsUnloaded(10))
	assert.Nil(t, c.GetRomClass(10))
}

func TestCache_UnloadedClassesSentinelClearsEverything(t *testing.T) {
	c := NewCache()
	c.PutRomClass(1, &ClassInfo{Signature: "A"})
	c.PutRomClass(2, &ClassInfo{Signature: "B"})
	c.WellKnownClasses["java/lang/Object"] = 1

	c.Reconcile(&wire.CompilationRequest{Unloads: []wire.ClassHandle{wire.UnloadedClassesSentinel}})

	assert.Nil(t, c.GetRomClass(1))
	assert.Nil(t, c.GetRomClass(2))
	assert.Empty(t, c.WellKnownClasses)
}

func TestCache_IllegalFinalFieldModsFlagsClass(t *testing.T) {
	c := NewCache()
	c.PutRomClass(5, &ClassInfo{Signature: "C"})

	c.Reconcile(&wire.CompilationRequest{IllegalFinalFieldMods: []wire.ClassHandle{5}})

	assert.True(t, c.GetRomClass(5).HasIllegalFinalFieldModifications)
}

func TestCache_ReconcileAppliesCHTableDeltasAfterUnloads(t *testing.T) {
	c := NewCache()
	c.CHTable.ApplyDeltas([]wire.CHTableModification{
		{Class: 1, SuperClass: 2, SubClasses: []wire.ClassHandle{3}},
	}, nil)

	c.Reconcile(&wire.CompilationRequest{
		CHTableMods: []wire.CHTableModification{{Class: 4, SuperClass: 1}},
	})

	entry := c.CHTable.Lookup(4)
	require.NotNil(t, entry)
	assert.Equal(t, wire.ClassHandle(1), entry.SuperClass)
}
