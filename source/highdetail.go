package source

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/pos"
)

// HighDetailIncomplete tracks presence at sparse-unit granularity: the
// section is divided into chunk-footprint units, and a unit is only
// visible once every one of its columns has been filled. A single chunk
// update fills exactly one unit.
type HighDetailIncomplete struct {
	grid
	unitsPerSide int
	colsPerUnit  int
	fill         *bitset.BitSet // per-column fill bits, unit-gated on read
}

// NewHighDetailIncomplete returns an empty sparse source for p. The
// section detail must not exceed HighDetailThreshold.
func NewHighDetailIncomplete(p pos.Pos) *HighDetailIncomplete {
	if p.Detail > HighDetailThreshold {
		panic("source: section detail too coarse for sparse units")
	}
	unitsPerSide := 1 << (p.Detail - ChunkDetail)
	return &HighDetailIncomplete{
		grid:         newGrid(p),
		unitsPerSide: unitsPerSide,
		colsPerUnit:  Width / unitsPerSide,
		fill:         bitset.New(Width * Width),
	}
}

// UnitCount returns the number of sparse units in the section.
func (s *HighDetailIncomplete) UnitCount() int {
	return s.unitsPerSide * s.unitsPerSide
}

// unitOf returns the unit index containing grid column (x, z).
func (s *HighDetailIncomplete) unitOf(x, z int) int {
	return (z/s.colsPerUnit)*s.unitsPerSide + x/s.colsPerUnit
}

// unitPresent reports whether every column of the unit is filled.
func (s *HighDetailIncomplete) unitPresent(unit int) bool {
	ux := (unit % s.unitsPerSide) * s.colsPerUnit
	uz := (unit / s.unitsPerSide) * s.colsPerUnit
	for z := uz; z < uz+s.colsPerUnit; z++ {
		for x := ux; x < ux+s.colsPerUnit; x++ {
			if !s.fill.Test(uint(z*Width + x)) {
				return false
			}
		}
	}
	return true
}

func (s *HighDetailIncomplete) IsComplete() bool {
	return s.fill.Count() == Width*Width
}

func (s *HighDetailIncomplete) IsEmpty() bool {
	for unit := 0; unit < s.UnitCount(); unit++ {
		if s.unitPresent(unit) {
			return false
		}
	}
	return true
}

func (s *HighDetailIncomplete) HasColumn(x, z int) bool {
	return s.unitPresent(s.unitOf(x, z))
}

func (s *HighDetailIncomplete) Column(x, z int) column.Column {
	if !s.HasColumn(x, z) {
		return nil
	}
	return s.column(x, z)
}

func (s *HighDetailIncomplete) Update(u *ChunkUpdate) {
	s.applyChunk(u, func(x, z int) {
		s.fill.Set(uint(z*Width + x))
	})
}

func (s *HighDetailIncomplete) SampleFrom(src DataSource) {
	s.applySource(src, func(x, z int) {
		s.fill.Set(uint(z*Width + x))
	})
}

// TryPromote returns a Complete copy once every unit is present.
func (s *HighDetailIncomplete) TryPromote() DataSource {
	if !s.IsComplete() {
		return s
	}
	return promote(&s.grid)
}

func (s *HighDetailIncomplete) Clone() DataSource {
	return &HighDetailIncomplete{
		grid:         s.cloneGrid(),
		unitsPerSide: s.unitsPerSide,
		colsPerUnit:  s.colsPerUnit,
		fill:         s.fill.Clone(),
	}
}

func (s *HighDetailIncomplete) Tag() uint8 {
	return persistence.TagHighDetailPartial
}

// presentUnits returns the unit-level presence bitset used on disk.
func (s *HighDetailIncomplete) presentUnits() *bitset.BitSet {
	units := bitset.New(uint(s.UnitCount()))
	for unit := 0; unit < s.UnitCount(); unit++ {
		if s.unitPresent(unit) {
			units.Set(uint(unit))
		}
	}
	return units
}

// markUnit fills every column bit of one unit. Used by the decoder.
func (s *HighDetailIncomplete) markUnit(unit int) {
	ux := (unit % s.unitsPerSide) * s.colsPerUnit
	uz := (unit / s.unitsPerSide) * s.colsPerUnit
	for z := uz; z < uz+s.colsPerUnit; z++ {
		for x := ux; x < ux+s.colsPerUnit; x++ {
			s.fill.Set(uint(z*Width + x))
		}
	}
}
