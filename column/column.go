// Package column defines the packed 64-bit datapoint format used for
// terrain columns. A column is a stack of vertical spans at one (x, z)
// grid cell; each span records a mapped block/biome id, its vertical
// extent and its light values.
package column

// DataPoint packs one vertical span into 64 bits:
//
//	bits  0..3   block light (0..15)
//	bits  4..7   sky light (0..15)
//	bits  8..19  minY, offset from the world floor (0..4095)
//	bits 20..31  height of the span (0..4095)
//	bits 32..63  id into the section's identity map
//
// The zero value is the canonical empty datapoint.
type DataPoint uint64

// Empty is the canonical absent datapoint.
const Empty DataPoint = 0

const (
	blockLightShift = 0
	skyLightShift   = 4
	minYShift       = 8
	heightShift     = 20
	idShift         = 32

	lightMask  = 0xF
	heightMask = 0xFFF

	// MaxHeight is the largest representable span height and minY.
	MaxHeight = heightMask
)

// Pack builds a datapoint from its components. Values outside their field
// ranges are truncated.
func Pack(id uint32, minY, height uint16, skyLight, blockLight uint8) DataPoint {
	return DataPoint(uint64(blockLight&lightMask)<<blockLightShift |
		uint64(skyLight&lightMask)<<skyLightShift |
		uint64(minY&heightMask)<<minYShift |
		uint64(height&heightMask)<<heightShift |
		uint64(id)<<idShift)
}

// ID returns the identity-map id of the span.
func (d DataPoint) ID() uint32 {
	return uint32(d >> idShift)
}

// MinY returns the span's bottom offset from the world floor.
func (d DataPoint) MinY() uint16 {
	return uint16(d>>minYShift) & heightMask
}

// Height returns the span's vertical extent.
func (d DataPoint) Height() uint16 {
	return uint16(d>>heightShift) & heightMask
}

// SkyLight returns the sky light value at the span's top face.
func (d DataPoint) SkyLight() uint8 {
	return uint8(d>>skyLightShift) & lightMask
}

// BlockLight returns the block light value at the span's top face.
func (d DataPoint) BlockLight() uint8 {
	return uint8(d>>blockLightShift) & lightMask
}

// IsEmpty reports whether d is the absent datapoint.
func (d DataPoint) IsEmpty() bool {
	return d == Empty
}

// WithID returns d with the id field replaced. Used when remapping a
// column through a merged identity map.
func (d DataPoint) WithID(id uint32) DataPoint {
	return d&^(DataPoint(0xFFFFFFFF)<<idShift) | DataPoint(id)<<idShift
}

// Column is the span stack of one grid cell, ordered top-down
// (descending minY). A nil or empty column means no data.
type Column []DataPoint

// IsSorted reports whether the spans are in canonical top-down order.
func (c Column) IsSorted() bool {
	for i := 1; i < len(c); i++ {
		if c[i].MinY() > c[i-1].MinY() {
			return false
		}
	}
	return true
}

// Remap returns a copy of c with every id translated through remap,
// where remap[oldID] = newID. Datapoints with ids outside remap are
// returned unchanged; the caller guarantees the map covers the source
// identity map that produced c.
func (c Column) Remap(remap []uint32) Column {
	if len(c) == 0 {
		return nil
	}
	out := make(Column, len(c))
	for i, d := range c {
		id := d.ID()
		if int(id) < len(remap) {
			d = d.WithID(remap[id])
		}
		out[i] = d
	}
	return out
}

// Clone returns a copy of c.
func (c Column) Clone() Column {
	if len(c) == 0 {
		return nil
	}
	out := make(Column, len(c))
	copy(out, c)
	return out
}
