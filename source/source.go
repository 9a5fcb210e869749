// Package source implements the in-memory representations of per-column
// terrain data for one section position, at varying completeness
// guarantees, together with the one-way promotion to a complete source
// and the guarded binary payload serialization.
//
// Three variants exist:
//
//   - Complete: every column of the section grid is populated.
//   - HighDetailIncomplete: the section is divided into chunk-footprint
//     sparse units, each fully present or entirely absent. Used near
//     the finest detail levels where whole chunks arrive at once.
//   - LowDetailIncomplete: one flat grid with a per-column presence
//     bitset. Used at coarser levels where a single column condenses
//     more ground than a chunk covers.
//
// Promotion is monotonic: TryPromote on an incomplete source returns a
// new Complete source once every required slot is present, and a
// Complete source always returns itself.
package source

import (
	"fmt"

	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/idmap"
	"github.com/hupe1980/lodgo/pos"
)

const (
	// SizeOffset is the fixed difference between a section's detail
	// level and the detail level of its columns. Every section spans
	// a 2^SizeOffset by 2^SizeOffset column grid.
	SizeOffset = 6

	// Width is the section side length in columns (2^SizeOffset).
	Width = 1 << SizeOffset

	// ChunkDetail is the detail level of a native chunk region: chunks
	// are ChunkWidth level-0 cells across.
	ChunkDetail = 4

	// ChunkWidth is the native chunk side length in level-0 cells.
	ChunkWidth = 1 << ChunkDetail

	// HighDetailThreshold is the highest section detail level served by
	// the sparse-unit variant. Above it a single chunk no longer fills
	// a whole sparse unit worth of columns.
	HighDetailThreshold = SizeOffset + ChunkDetail
)

// GenStep records how far world generation has progressed for the data
// in a source. The zero value means no generation has happened.
type GenStep uint8

const (
	GenStepEmpty GenStep = iota
	GenStepBiomes
	GenStepNoise
	GenStepSurface
	GenStepFeatures
	GenStepLight
)

// ChunkUpdate is one freshly observed chunk-sized grid of columns at the
// native detail level, as supplied by the raw terrain collaborator.
// Columns reference ids in the update's own identity map.
type ChunkUpdate struct {
	Pos     pos.Pos // detail ChunkDetail
	GenStep GenStep
	IDMap   *idmap.Map
	Columns [ChunkWidth * ChunkWidth]column.Column
}

// Column returns the update's column at chunk-local (x, z).
func (u *ChunkUpdate) Column(x, z int) column.Column {
	return u.Columns[z*ChunkWidth+x]
}

// SetColumn sets the update's column at chunk-local (x, z).
func (u *ChunkUpdate) SetColumn(x, z int, c column.Column) {
	u.Columns[z*ChunkWidth+x] = c
}

// DataSource is the capability shared by all variants. The provider and
// the cache entry only ever speak this interface.
type DataSource interface {
	// SectionPos returns the section position the source covers.
	SectionPos() pos.Pos
	// DataDetail returns the detail level of individual columns,
	// always SectionPos().Detail - SizeOffset.
	DataDetail() uint8
	// GenStep returns the weakest generation step among the data
	// folded in so far, or GenStepEmpty when nothing is present.
	GenStep() GenStep
	// IsComplete reports whether every required column slot is filled.
	IsComplete() bool
	// IsEmpty reports whether no column data is present at all.
	IsEmpty() bool
	// IDMap returns the source's identity map.
	IDMap() *idmap.Map
	// HasColumn reports whether the column at grid (x, z) is present.
	HasColumn(x, z int) bool
	// Column returns the column at grid (x, z), nil when absent.
	Column(x, z int) column.Column
	// Update folds one chunk update into the source, downsampling to
	// the source's column detail. The chunk must lie inside the
	// section; routing it elsewhere is a programming error.
	Update(u *ChunkUpdate)
	// SampleFrom copies column data out of a higher-resolution source
	// covering part of this section.
	SampleFrom(src DataSource)
	// TryPromote returns a Complete source if every required slot is
	// now present, otherwise the receiver unchanged.
	TryPromote() DataSource
	// Clone returns an independent deep copy. The identity map is
	// shared: its ids are stable for the lifetime of the map.
	Clone() DataSource
	// Tag returns the persistence data-type tag of the variant.
	Tag() uint8
}

// NewIncomplete returns the empty incomplete variant appropriate for the
// section's detail level: sparse units up to HighDetailThreshold, a flat
// presence grid above it.
func NewIncomplete(p pos.Pos) DataSource {
	if p.Detail < SizeOffset {
		panic(fmt.Sprintf("source: section detail %d below size offset", p.Detail))
	}
	if p.Detail <= HighDetailThreshold {
		return NewHighDetailIncomplete(p)
	}
	return NewLowDetailIncomplete(p)
}

// grid holds the state shared by every variant.
type grid struct {
	pos       pos.Pos
	dataDetl  uint8
	genStep   GenStep
	ids       *idmap.Map
	columns   []column.Column // Width*Width, row-major by z
	populated bool            // any data folded in yet
}

func newGrid(p pos.Pos) grid {
	if p.Detail < SizeOffset {
		panic(fmt.Sprintf("source: section detail %d below size offset", p.Detail))
	}
	return grid{
		pos:      p,
		dataDetl: p.Detail - SizeOffset,
		ids:      idmap.New(),
		columns:  make([]column.Column, Width*Width),
	}
}

func (g *grid) SectionPos() pos.Pos { return g.pos }
func (g *grid) DataDetail() uint8   { return g.dataDetl }
func (g *grid) GenStep() GenStep    { return g.genStep }
func (g *grid) IDMap() *idmap.Map   { return g.ids }

func (g *grid) column(x, z int) column.Column {
	return g.columns[z*Width+x]
}

func (g *grid) setColumn(x, z int, c column.Column) {
	g.columns[z*Width+x] = c
}

// cornerX/cornerZ are the section's level-0 north-west corner.
func (g *grid) cornerX() int32 { return g.pos.CornerBlockX() }
func (g *grid) cornerZ() int32 { return g.pos.CornerBlockZ() }

// mergeGenStep folds the generation step of newly contributed data. The
// source tracks the weakest step so callers never overestimate how far
// generation has progressed anywhere in the section.
func (g *grid) mergeGenStep(step GenStep) {
	if !g.populated {
		g.genStep = step
		g.populated = true
		return
	}
	if step < g.genStep {
		g.genStep = step
	}
}

// applyChunk copies the representative columns of one chunk update into
// the grid, invoking mark for every written grid cell. When the grid's
// column detail is coarser than the native level, each grid column takes
// the chunk column at its own north-west corner.
func (g *grid) applyChunk(u *ChunkUpdate, mark func(x, z int)) {
	secPos := u.Pos.ConvertDetail(g.pos.Detail)
	if secPos != g.pos {
		panic(fmt.Sprintf("source: chunk %v routed to section %v", u.Pos, g.pos))
	}

	remap := g.ids.MergeAndRemap(u.IDMap)
	td := g.dataDetl
	chunkX := u.Pos.CornerBlockX()
	chunkZ := u.Pos.CornerBlockZ()

	// Grid columns whose region intersects the chunk footprint.
	iMin := int((chunkX - g.cornerX()) >> td)
	jMin := int((chunkZ - g.cornerZ()) >> td)
	span := ChunkWidth >> td
	if span == 0 {
		span = 1
	}

	for j := jMin; j < jMin+span; j++ {
		for i := iMin; i < iMin+span; i++ {
			// Representative policy: the grid column takes the chunk
			// column at the grid column's own north-west corner.
			wx := g.cornerX() + int32(i)<<td
			wz := g.cornerZ() + int32(j)<<td
			cx := int(wx - chunkX)
			cz := int(wz - chunkZ)
			if cx < 0 || cx >= ChunkWidth || cz < 0 || cz >= ChunkWidth {
				continue
			}
			g.setColumn(i, j, u.Column(cx, cz).Remap(remap))
			mark(i, j)
		}
	}
	g.mergeGenStep(u.GenStep)
}

// applySource copies the representative columns of a higher-resolution
// source into the grid, invoking mark for every written cell. Columns
// missing from src are skipped.
func (g *grid) applySource(src DataSource, mark func(x, z int)) {
	sp := src.SectionPos()
	if !g.pos.Contains(sp) {
		panic(fmt.Sprintf("source: sampling %v into non-containing section %v", sp, g.pos))
	}
	if src.DataDetail() > g.dataDetl {
		panic(fmt.Sprintf("source: sampling coarser detail %d into finer %d", src.DataDetail(), g.dataDetl))
	}

	remap := g.ids.MergeAndRemap(src.IDMap())
	std := src.DataDetail()
	td := g.dataDetl
	srcX := sp.CornerBlockX()
	srcZ := sp.CornerBlockZ()
	srcBlocks := sp.Width()

	iMin := int((srcX - g.cornerX()) >> td)
	jMin := int((srcZ - g.cornerZ()) >> td)
	span := int(srcBlocks >> td)
	if span == 0 {
		span = 1
	}

	contributed := false
	for j := jMin; j < jMin+span; j++ {
		for i := iMin; i < iMin+span; i++ {
			wx := g.cornerX() + int32(i)<<td
			wz := g.cornerZ() + int32(j)<<td
			if wx < srcX || wx >= srcX+srcBlocks || wz < srcZ || wz >= srcZ+srcBlocks {
				continue
			}
			sx := int((wx - srcX) >> std)
			sz := int((wz - srcZ) >> std)
			if !src.HasColumn(sx, sz) {
				continue
			}
			g.setColumn(i, j, src.Column(sx, sz).Remap(remap))
			mark(i, j)
			contributed = true
		}
	}
	if contributed {
		g.mergeGenStep(src.GenStep())
	}
}

// cloneGrid returns a deep copy of the grid. Columns are copied; the
// identity map is shared because it is append-only and internally
// synchronized.
func (g *grid) cloneGrid() grid {
	return grid{
		pos:       g.pos,
		dataDetl:  g.dataDetl,
		genStep:   g.genStep,
		ids:       g.ids,
		columns:   g.cloneColumns(),
		populated: g.populated,
	}
}

// cloneColumns returns a deep copy of the column grid.
func (g *grid) cloneColumns() []column.Column {
	out := make([]column.Column, len(g.columns))
	for i, c := range g.columns {
		out[i] = c.Clone()
	}
	return out
}
