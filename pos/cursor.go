package pos

// Cursor iterates the descendant positions of a parent region at a fixed
// finer detail level, row by row from the north-west corner. It exists so
// bulk scans do not allocate one Pos per step; the current position is
// mutated in place.
type Cursor struct {
	detail uint8
	minX   int32
	minZ   int32
	width  int32
	i      int32
}

// NewCursor returns a cursor over all positions at the given detail level
// inside parent. Panics if detail is coarser than parent's.
func NewCursor(parent Pos, detail uint8) *Cursor {
	if detail > parent.Detail {
		panic("pos: cursor detail coarser than parent")
	}
	anchor := parent.ConvertDetail(detail)
	return &Cursor{
		detail: detail,
		minX:   anchor.X,
		minZ:   anchor.Z,
		width:  1 << (parent.Detail - detail),
		i:      -1,
	}
}

// Next advances the cursor. It returns false once the scan is exhausted.
func (c *Cursor) Next() bool {
	c.i++
	return c.i < c.width*c.width
}

// Pos returns the current position. Only valid after Next returned true.
func (c *Cursor) Pos() Pos {
	return Pos{
		Detail: c.detail,
		X:      c.minX + c.i%c.width,
		Z:      c.minZ + c.i/c.width,
	}
}

// Reset rewinds the cursor to before the first position.
func (c *Cursor) Reset() {
	c.i = -1
}
