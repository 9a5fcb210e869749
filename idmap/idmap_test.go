package idmap

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIfAbsent(t *testing.T) {
	m := New()

	id0 := m.AddIfAbsent("plains", "stone")
	id1 := m.AddIfAbsent("plains", "dirt")
	id2 := m.AddIfAbsent("desert", "stone")

	assert.Equal(t, uint32(0), id0)
	assert.Equal(t, uint32(1), id1)
	assert.Equal(t, uint32(2), id2)
	assert.Equal(t, 3, m.Len())

	// Existing pairs return the original id.
	assert.Equal(t, id0, m.AddIfAbsent("plains", "stone"))
	assert.Equal(t, id1, m.AddIfAbsent("plains", "dirt"))
	assert.Equal(t, 3, m.Len())

	e, ok := m.Get(id2)
	require.True(t, ok)
	assert.Equal(t, Entry{Biome: "desert", Block: "stone"}, e)

	_, ok = m.Get(99)
	assert.False(t, ok)
}

func TestAddIfAbsentConcurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.AddIfAbsent("plains", "stone")
				m.AddIfAbsent("desert", "sand")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, m.Len())
}

func TestMergeAndRemap(t *testing.T) {
	target := New()
	target.AddIfAbsent("plains", "stone") // 0
	target.AddIfAbsent("plains", "dirt")  // 1

	src := New()
	src.AddIfAbsent("plains", "dirt")   // 0 -> target 1
	src.AddIfAbsent("desert", "sand")   // 1 -> new target 2
	src.AddIfAbsent("plains", "stone")  // 2 -> target 0
	src.AddIfAbsent("taiga", "granite") // 3 -> new target 3

	remap := target.MergeAndRemap(src)
	assert.Equal(t, []uint32{1, 2, 0, 3}, remap)
	assert.Equal(t, 4, target.Len())

	// Existing target ids are untouched.
	e, _ := target.Get(0)
	assert.Equal(t, Entry{Biome: "plains", Block: "stone"}, e)
	e, _ = target.Get(1)
	assert.Equal(t, Entry{Biome: "plains", Block: "dirt"}, e)
}

func TestMergeIntoSelfIsIdentity(t *testing.T) {
	m := New()
	m.AddIfAbsent("plains", "stone")
	m.AddIfAbsent("desert", "sand")
	m.AddIfAbsent("taiga", "spruce")

	remap := m.MergeAndRemap(m)
	assert.Equal(t, []uint32{0, 1, 2}, remap)
	assert.Equal(t, 3, m.Len())
}

func TestSerializationRoundTrip(t *testing.T) {
	m := New()
	m.AddIfAbsent("plains", "minecraft:stone")
	m.AddIfAbsent("desert", "minecraft:sand")
	m.AddIfAbsent("", "minecraft:air")

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	got, err := Read(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, m.Len(), got.Len())
	for id := uint32(0); int(id) < m.Len(); id++ {
		want, _ := m.Get(id)
		have, ok := got.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, have)
	}
}

func TestReadMalformedSeparator(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 0, 0}) // one entry
	buf.Write([]byte{5, 0})       // length 5
	buf.WriteString("abcde")      // no separator

	_, err := Read(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestReadTruncated(t *testing.T) {
	m := New()
	m.AddIfAbsent("plains", "stone")

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	data := buf.Bytes()
	_, err = Read(context.Background(), bytes.NewReader(data[:len(data)-2]))
	assert.Error(t, err)
}

func TestReadCancelled(t *testing.T) {
	m := New()
	m.AddIfAbsent("plains", "stone")
	m.AddIfAbsent("desert", "sand")

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Read(ctx, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
