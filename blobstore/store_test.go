package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "10@0,0")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Has(ctx, "10@0,0")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "10@0,0", []byte("alpha")))
	require.NoError(t, s.Put(ctx, "9@-1,3", []byte("beta")))

	data, err := s.Load(ctx, "10@0,0")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), data)

	ok, err = s.Has(ctx, "9@-1,3")
	require.NoError(t, err)
	assert.True(t, ok)

	// Upsert replaces.
	require.NoError(t, s.Put(ctx, "10@0,0", []byte("gamma")))
	data, err = s.Load(ctx, "10@0,0")
	require.NoError(t, err)
	assert.Equal(t, []byte("gamma"), data)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10@0,0", "9@-1,3"}, keys)

	require.NoError(t, s.Delete(ctx, "10@0,0"))
	_, err = s.Load(ctx, "10@0,0")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, s.Delete(ctx, "10@0,0"))

	require.NoError(t, s.DeleteAll(ctx))
	keys, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data := []byte("hello")
	require.NoError(t, s.Put(ctx, "k", data))
	data[0] = 'X'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got[1] = 'Y'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)
}

func TestSpyStoreRecordsOps(t *testing.T) {
	spy := NewSpyStore(nil)
	ctx := context.Background()

	require.NoError(t, spy.Put(ctx, "10@0,0", []byte("abc")))
	_, err := spy.Load(ctx, "10@0,0")
	require.NoError(t, err)
	_, err = spy.Has(ctx, "10@0,0")
	require.NoError(t, err)
	require.NoError(t, spy.Delete(ctx, "10@0,0"))

	assert.Equal(t, 1, spy.CountKind("put"))
	assert.Equal(t, 1, spy.CountKind("load"))
	assert.Equal(t, 1, spy.CountKind("has"))
	assert.Equal(t, 1, spy.CountKind("delete"))

	ops := spy.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, Op{Kind: "put", Key: "10@0,0", Size: 3}, ops[0])

	spy.Reset()
	assert.Empty(t, spy.Ops())
}
