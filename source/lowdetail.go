package source

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/pos"
)

// LowDetailIncomplete is one flat column grid with a per-column presence
// bitset. Used at coarse detail levels where individual columns condense
// more ground than a chunk covers, so presence arrives column by column.
type LowDetailIncomplete struct {
	grid
	presence *bitset.BitSet // Width*Width bits
}

// NewLowDetailIncomplete returns an empty flat source for p.
func NewLowDetailIncomplete(p pos.Pos) *LowDetailIncomplete {
	return &LowDetailIncomplete{
		grid:     newGrid(p),
		presence: bitset.New(Width * Width),
	}
}

func (s *LowDetailIncomplete) IsComplete() bool {
	return s.presence.Count() == Width*Width
}

func (s *LowDetailIncomplete) IsEmpty() bool {
	return s.presence.Count() == 0
}

func (s *LowDetailIncomplete) HasColumn(x, z int) bool {
	return s.presence.Test(uint(z*Width + x))
}

func (s *LowDetailIncomplete) Column(x, z int) column.Column {
	if !s.HasColumn(x, z) {
		return nil
	}
	return s.column(x, z)
}

func (s *LowDetailIncomplete) Update(u *ChunkUpdate) {
	s.applyChunk(u, func(x, z int) {
		s.presence.Set(uint(z*Width + x))
	})
}

func (s *LowDetailIncomplete) SampleFrom(src DataSource) {
	s.applySource(src, func(x, z int) {
		s.presence.Set(uint(z*Width + x))
	})
}

// TryPromote returns a Complete copy once every column is present.
func (s *LowDetailIncomplete) TryPromote() DataSource {
	if !s.IsComplete() {
		return s
	}
	return promote(&s.grid)
}

func (s *LowDetailIncomplete) Clone() DataSource {
	return &LowDetailIncomplete{
		grid:     s.cloneGrid(),
		presence: s.presence.Clone(),
	}
}

func (s *LowDetailIncomplete) Tag() uint8 {
	return persistence.TagLowDetailPartial
}
