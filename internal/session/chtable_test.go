package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

func TestCHTableMirror_ApplyDeltasIsIdempotent(t *testing.T) {
	m := NewCHTableMirror()
	mods := []wire.CHTableModification{
		{Class: 1, SuperClass: 0, SubClasses: []wire.ClassHandle{2, 3}},
		{Class: 2, SuperClass: 1},
	}

	m.ApplyDeltas(mods, nil)
	first := m.Lookup(1)
	m.ApplyDeltas(mods, nil)
	second := m.Lookup(1)

	assert.Equal(t, first.SubClasses, second.SubClasses)
	assert.Equal(t, 2, m.Len())
}

func TestCHTableMirror_RemoveDropsDanglingSubClassReferences(t *testing.T) {
	m := NewCHTableMirror()
	m.ApplyDeltas([]wire.CHTableModification{
		{Class: 1, SubClasses: []wire.ClassHandle{2}},
		{Class: 2, SuperClass: 1},
	}, nil)

	m.ApplyDeltas(nil, []wire.ClassHandle{2})

	assert.Nil(t, m.Lookup(2))
	parent := m.Lookup(1)
	require.NotNil(t, parent)
	_, stillThere := parent.SubClasses[2]
	assert.False(t, stillThere)
}

func TestCHTableMirror_LookupReturnsDefensiveCopy(t *testing.T) {
	m := NewCHTableMirror()
	m.ApplyDeltas([]wire.CHTableModification{{Class: 1, SubClasses: []wire.ClassHandle{2}}}, nil)

	got := m.Lookup(1)
	got.SubClasses[99] = struct{}{}

	fresh := m.Lookup(1)
	_, leaked := fresh.SubClasses[99]
	assert.False(t, leaked)
}
