package psevt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Pixels []uint16
}

func TestPutGetByType(t *testing.T) {
	evt := New()

	require.NoError(t, Put(evt, frame{Pixels: []uint16{1, 2}}))

	got, ok := Get[frame](evt)
	require.True(t, ok)
	assert.Equal(t, []uint16{1, 2}, got.Pixels)

	_, ok = Get[int](evt)
	assert.False(t, ok)
}

func TestPutDuplicateFails(t *testing.T) {
	evt := New()
	require.NoError(t, Put(evt, 42))
	assert.Error(t, Put(evt, 43))

	// a different src is a different slot
	require.NoError(t, Put(evt, 43, WithSrc("CxiDs1.0:Cspad.0")))

	v, ok := Get[int](evt)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	v, ok = Get[int](evt, WithSrc("CxiDs1.0:Cspad.0"))
	require.True(t, ok)
	assert.Equal(t, 43, v)
}

func TestReplaceAndRemove(t *testing.T) {
	evt := New()
	Replace(evt, "a", WithKey("tag"))
	Replace(evt, "b", WithKey("tag"))

	v, ok := Get[string](evt, WithKey("tag"))
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.True(t, Remove[string](evt, WithKey("tag")))
	assert.False(t, Remove[string](evt, WithKey("tag")))
	assert.False(t, Exists[string](evt, WithKey("tag")))
}

func TestSkipMarker(t *testing.T) {
	evt := New()
	assert.False(t, evt.SkipMarked())

	evt.MarkSkip()
	assert.True(t, evt.SkipMarked())

	// idempotent
	evt.MarkSkip()
	assert.True(t, evt.SkipMarked())
	assert.Equal(t, 1, evt.Len())
}

func TestKeysSorted(t *testing.T) {
	evt := New()
	require.NoError(t, Put(evt, 1, WithKey("z")))
	require.NoError(t, Put(evt, 2, WithKey("a")))
	require.NoError(t, Put(evt, "s"))

	keys := evt.Keys()
	require.Len(t, keys, 3)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1].String(), keys[i].String())
	}
}
