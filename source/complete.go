package source

import (
	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/idmap"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/pos"
)

// Complete is a fully populated section: every column slot holds data.
// It only changes through controlled updates and further sampling; the
// completeness guarantee never regresses.
type Complete struct {
	grid
}

// NewComplete returns a complete source with every column slot populated
// by the empty column (all air). Primarily useful in tests; production
// Complete sources are built through promotion.
func NewComplete(p pos.Pos) *Complete {
	c := &Complete{grid: newGrid(p)}
	c.populated = true
	return c
}

// promote builds a Complete source by copying all column data out of a
// fully filled grid. The identity map is shared: its ids are stable for
// the lifetime of the map, so both holders observe the same entries.
func promote(g *grid) *Complete {
	c := &Complete{grid: grid{
		pos:       g.pos,
		dataDetl:  g.dataDetl,
		genStep:   g.genStep,
		ids:       g.ids,
		columns:   g.cloneColumns(),
		populated: true,
	}}
	return c
}

func (c *Complete) IsComplete() bool { return true }

// IsEmpty always reports false: a complete section is authoritative even
// when every column happens to be air.
func (c *Complete) IsEmpty() bool { return false }

func (c *Complete) HasColumn(x, z int) bool {
	_ = c.columns[z*Width+x] // bounds-check like the other variants
	return true
}

func (c *Complete) Column(x, z int) column.Column {
	return c.column(x, z)
}

// Update folds fresher chunk data over the existing columns.
func (c *Complete) Update(u *ChunkUpdate) {
	c.applyChunk(u, func(int, int) {})
}

// SampleFrom overwrites the covered range with fresher data from a
// higher-resolution source.
func (c *Complete) SampleFrom(src DataSource) {
	c.applySource(src, func(int, int) {})
}

// TryPromote is a no-op on an already-complete source: promotion is
// one-way and absorbing.
func (c *Complete) TryPromote() DataSource { return c }

func (c *Complete) Clone() DataSource {
	return &Complete{grid: c.cloneGrid()}
}

func (c *Complete) Tag() uint8 {
	return persistence.TagComplete
}

// newCompleteForDecode builds an empty Complete shell the payload
// decoder fills in.
func newCompleteForDecode(p pos.Pos, step GenStep, ids *idmap.Map, cols []column.Column) *Complete {
	return &Complete{grid: grid{
		pos:       p,
		dataDetl:  p.Detail - SizeOffset,
		genStep:   step,
		ids:       ids,
		columns:   cols,
		populated: true,
	}}
}
