package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, found, err := m.GetItem(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, found, "missing key should not be found")

	require.NoError(t, m.SetItem(ctx, "counter", []byte("42")))

	value, found, err := m.GetItem(ctx, "counter")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("42"), value)

	require.NoError(t, m.RemoveItem(ctx, "counter"))
	_, found, err = m.GetItem(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, found, "removed key should not be found")

	// Removing again is a no-op.
	require.NoError(t, m.RemoveItem(ctx, "counter"))
}

func TestMemoryCopySemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	input := []byte(`"dark"`)
	require.NoError(t, m.SetItem(ctx, "theme", input))
	input[1] = 'x'

	value, found, err := m.GetItem(ctx, "theme")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`"dark"`), value, "stored value should not alias the caller's slice")

	value[1] = 'y'
	again, _, err := m.GetItem(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"dark"`), again, "returned value should not alias the stored slice")
}

func TestMemoryKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetItem(ctx, "b", []byte("2")))
	require.NoError(t, m.SetItem(ctx, "a", []byte("1")))
	require.NoError(t, m.SetItem(ctx, "c", []byte("3")))

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
}
