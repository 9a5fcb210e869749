package lodgo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/lodgo/pos"
)

func TestDiskIndexCoversAncestors(t *testing.T) {
	ix := newDiskIndex(10)
	ix.add(pos.New(8, 5, 3))

	assert.True(t, ix.hasStored(pos.New(8, 5, 3)))
	assert.False(t, ix.hasStored(pos.New(8, 5, 4)))
	assert.False(t, ix.hasStored(pos.New(9, 2, 1)), "ancestors are covered, not stored")

	assert.True(t, ix.hasCoverage(pos.New(8, 5, 3)))
	assert.True(t, ix.hasCoverage(pos.New(9, 2, 1)))
	assert.True(t, ix.hasCoverage(pos.New(10, 1, 0)))
	assert.False(t, ix.hasCoverage(pos.New(9, 3, 1)))

	assert.Equal(t, 1, ix.len())
}

func TestDiskIndexRemoveKeepsCoverage(t *testing.T) {
	ix := newDiskIndex(10)
	ix.add(pos.New(8, 5, 3))
	ix.remove(pos.New(8, 5, 3))

	assert.False(t, ix.hasStored(pos.New(8, 5, 3)))
	assert.Zero(t, ix.len())

	// Stale coverage costs a wasted descent, never a missed branch.
	assert.True(t, ix.hasCoverage(pos.New(9, 2, 1)))
}

func TestDiskIndexNegativeCoordinates(t *testing.T) {
	ix := newDiskIndex(8)
	ix.add(pos.New(6, -1, -1))

	assert.True(t, ix.hasStored(pos.New(6, -1, -1)))
	assert.True(t, ix.hasCoverage(pos.New(7, -1, -1)))
	assert.True(t, ix.hasCoverage(pos.New(8, -1, -1)))
	assert.False(t, ix.hasCoverage(pos.New(7, 0, 0)))
}
