// Package pos implements the quad-tree section position used to address
// square terrain regions at varying detail levels.
//
// A position is (detail, x, z) where the region's side length in level-0
// grid units is 2^detail. Detail 0 is the finest level. Positions are
// immutable values; all navigation math is pure integer arithmetic.
//
// Cursor is part of the public surface for hosts: callers that feed
// chunk updates or sample whole regions iterate the descendants of a
// section with it rather than deriving child coordinates by hand.
package pos

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction identifies one of the four cardinal neighbors of a position.
type Direction uint8

const (
	North Direction = iota // -z
	South                  // +z
	East                   // +x
	West                   // -x
)

// ChildCount is the quad-tree branching factor. Fixed; the engine does not
// support other branching factors.
const ChildCount = 4

// MaxDetail is the highest representable detail level. Detail is stored in
// a byte on disk; positions above this are rejected at parse time.
const MaxDetail = 63

// Pos addresses a square region of the world grid.
type Pos struct {
	Detail uint8
	X      int32
	Z      int32
}

// New returns the position (detail, x, z).
func New(detail uint8, x, z int32) Pos {
	return Pos{Detail: detail, X: x, Z: z}
}

// FromBlock returns the position at the given detail level whose region
// covers the level-0 grid cell (bx, bz).
func FromBlock(detail uint8, bx, bz int32) Pos {
	return Pos{Detail: detail, X: bx >> detail, Z: bz >> detail}
}

// Width returns the region side length in level-0 grid units.
func (p Pos) Width() int32 {
	return 1 << p.Detail
}

// CornerBlockX returns the level-0 x coordinate of the region's
// north-west corner (minimum x, minimum z).
func (p Pos) CornerBlockX() int32 {
	return p.X << p.Detail
}

// CornerBlockZ returns the level-0 z coordinate of the region's
// north-west corner.
func (p Pos) CornerBlockZ() int32 {
	return p.Z << p.Detail
}

// CenterBlockX returns the level-0 x coordinate of the region center.
func (p Pos) CenterBlockX() int32 {
	return p.CornerBlockX() + p.Width()/2
}

// CenterBlockZ returns the level-0 z coordinate of the region center.
func (p Pos) CenterBlockZ() int32 {
	return p.CornerBlockZ() + p.Width()/2
}

// Contains reports whether other's region lies fully inside p's region.
// A position contains itself. A finer region is contained iff scaling its
// coordinates up to p's detail yields p's coordinates.
func (p Pos) Contains(other Pos) bool {
	if other.Detail > p.Detail {
		return false
	}
	shift := p.Detail - other.Detail
	return other.X>>shift == p.X && other.Z>>shift == p.Z
}

// Overlaps reports whether the two regions' bounding boxes intersect,
// at any pair of detail levels. Equivalent to containment in one
// direction or the other for aligned power-of-two regions.
func (p Pos) Overlaps(other Pos) bool {
	if other.Detail > p.Detail {
		return other.Contains(p)
	}
	return p.Contains(other)
}

// Parent returns the position one detail level up that contains p.
// Arithmetic shift keeps negative coordinates on the correct side of
// the origin.
func (p Pos) Parent() Pos {
	return Pos{Detail: p.Detail + 1, X: p.X >> 1, Z: p.Z >> 1}
}

// Child returns the child at index 0..3. Children are ordered
// NW, SW, NE, SE: bit 1 selects +x, bit 0 selects +z.
// Panics if p is at detail 0 or the index is out of range; both are
// programming errors.
func (p Pos) Child(index int) Pos {
	if index < 0 || index >= ChildCount {
		panic(fmt.Sprintf("pos: child index %d out of range", index))
	}
	if p.Detail == 0 {
		panic("pos: detail 0 position has no children")
	}
	return Pos{
		Detail: p.Detail - 1,
		X:      p.X*2 + int32(index>>1),
		Z:      p.Z*2 + int32(index&1),
	}
}

// ChildIndex returns the index i such that p.Parent().Child(i) == p.
func (p Pos) ChildIndex() int {
	return int((p.X&1)<<1 | (p.Z & 1))
}

// ConvertDetail rescales p to the given detail level. Converting to a
// coarser level shifts the anchor to the containing region; converting
// to a finer level anchors at the north-west corner, which always
// divides evenly for power-of-two regions.
func (p Pos) ConvertDetail(detail uint8) Pos {
	if detail == p.Detail {
		return p
	}
	if detail > p.Detail {
		shift := detail - p.Detail
		return Pos{Detail: detail, X: p.X >> shift, Z: p.Z >> shift}
	}
	shift := p.Detail - detail
	return Pos{Detail: detail, X: p.X << shift, Z: p.Z << shift}
}

// Adjacent returns the same-detail neighbor in the given direction.
func (p Pos) Adjacent(dir Direction) Pos {
	switch dir {
	case North:
		return Pos{Detail: p.Detail, X: p.X, Z: p.Z - 1}
	case South:
		return Pos{Detail: p.Detail, X: p.X, Z: p.Z + 1}
	case East:
		return Pos{Detail: p.Detail, X: p.X + 1, Z: p.Z}
	case West:
		return Pos{Detail: p.Detail, X: p.X - 1, Z: p.Z}
	default:
		panic(fmt.Sprintf("pos: invalid direction %d", dir))
	}
}

// Key returns the canonical storage key for p, e.g. "10@-3,7".
func (p Pos) Key() string {
	return strconv.Itoa(int(p.Detail)) + "@" +
		strconv.FormatInt(int64(p.X), 10) + "," +
		strconv.FormatInt(int64(p.Z), 10)
}

// String implements fmt.Stringer.
func (p Pos) String() string {
	return p.Key()
}

// ParseKey parses a key produced by Key.
func ParseKey(key string) (Pos, error) {
	at := strings.IndexByte(key, '@')
	comma := strings.IndexByte(key, ',')
	if at <= 0 || comma <= at {
		return Pos{}, fmt.Errorf("pos: malformed key %q", key)
	}
	detail, err := strconv.ParseUint(key[:at], 10, 8)
	if err != nil || detail > MaxDetail {
		return Pos{}, fmt.Errorf("pos: malformed detail in key %q", key)
	}
	x, err := strconv.ParseInt(key[at+1:comma], 10, 32)
	if err != nil {
		return Pos{}, fmt.Errorf("pos: malformed x in key %q", key)
	}
	z, err := strconv.ParseInt(key[comma+1:], 10, 32)
	if err != nil {
		return Pos{}, fmt.Errorf("pos: malformed z in key %q", key)
	}
	return Pos{Detail: uint8(detail), X: int32(x), Z: int32(z)}, nil
}

// PackedKey returns a 64-bit key unique among positions sharing a detail
// level, suitable for bitmap membership indexes.
func (p Pos) PackedKey() uint64 {
	return uint64(uint32(p.X))<<32 | uint64(uint32(p.Z))
}
