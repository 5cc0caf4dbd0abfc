package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetMissingPathReturnsUndefined(t *testing.T) {
	m := NewMemory()
	v, ok := m.Get(Index{"a", "b"})
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestMemoryUpdateCreatesIntermediateObjects(t *testing.T) {
	m := NewMemory()
	err := m.Update(Index{"ping", "counter", "errors.net"}, func(current any) any {
		return 1.0
	})
	require.NoError(t, err)

	v, ok := m.Get(Index{"ping", "counter", "errors.net"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestMemoryUpdatePathCollisionOnNonObjectIntermediate(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Update(Index{"a"}, func(any) any { return "leaf" }))

	err := m.Update(Index{"a", "b"}, func(any) any { return 1 })
	assert.ErrorIs(t, err, ErrPathCollision)
}

func TestMemoryDeleteLeaf(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Update(Index{"a", "b"}, func(any) any { return 1 }))
	require.NoError(t, m.Delete(Index{"a", "b"}))

	_, ok := m.Get(Index{"a", "b"})
	assert.False(t, ok)
}

func TestMemoryDeleteRootErasesEverything(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Update(Index{"a"}, func(any) any { return 1 }))
	require.NoError(t, m.Delete(nil))

	_, ok := m.Get(nil)
	assert.False(t, ok)
}

func TestMemoryFactoryIsolatesRootKeys(t *testing.T) {
	factory := NewMemoryFactory()
	a := factory("userLifetimeMetrics")
	b := factory("pingLifetimeMetrics")
	require.NoError(t, a.Update(Index{"x"}, func(any) any { return 1 }))

	_, ok := b.Get(Index{"x"})
	assert.False(t, ok)
	assert.Same(t, a, factory("userLifetimeMetrics"))
}

func TestMemoryGetReturnsIndependentCopies(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Update(Index{"a"}, func(any) any {
		return map[string]any{"nested": 1}
	}))

	v, ok := m.Get(Index{"a"})
	require.True(t, ok)
	nested := v.(map[string]any)
	nested["nested"] = 999

	v2, _ := m.Get(Index{"a"})
	assert.Equal(t, 1, v2.(map[string]any)["nested"])
}
