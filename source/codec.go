package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/idmap"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/pos"
)

// Payload layout, bracketed by guard sentinels:
//
//	dataWidth u16, genStep u8, complete u8
//	presenceLen u32, presence bitset bytes
//	GuardData
//	per present unit: column count u16
//	per present unit: column datapoints u64
//	GuardOptional
//	identity map
//	GuardEnd
//
// For the flat variants a "unit" is one column; for the sparse variant a
// unit is one chunk footprint and its columns follow in row-major order.

// EncodePayload serializes a source's payload section. The caller wraps
// it in a summary record via persistence.EncodeRecord.
func EncodePayload(ds DataSource) ([]byte, error) {
	var buf bytes.Buffer

	complete := uint8(0)
	if ds.IsComplete() {
		complete = 1
	}
	header := []any{uint16(Width), uint8(ds.GenStep()), complete}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	presence, cols := presentLayout(ds)
	pb, err := presence.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(pb))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(pb); err != nil {
		return nil, err
	}
	if err := persistence.WriteGuard(&buf, persistence.GuardData); err != nil {
		return nil, err
	}

	for _, idx := range cols {
		c := ds.Column(idx%Width, idx/Width)
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(c))); err != nil {
			return nil, err
		}
	}
	for _, idx := range cols {
		c := ds.Column(idx%Width, idx/Width)
		for _, d := range c {
			if err := binary.Write(&buf, binary.LittleEndian, uint64(d)); err != nil {
				return nil, err
			}
		}
	}
	if err := persistence.WriteGuard(&buf, persistence.GuardOptional); err != nil {
		return nil, err
	}

	if _, err := ds.IDMap().WriteTo(&buf); err != nil {
		return nil, err
	}
	if err := persistence.WriteGuard(&buf, persistence.GuardEnd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// presentLayout returns the on-disk presence bitset and the ordered grid
// column indices backing it.
func presentLayout(ds DataSource) (*bitset.BitSet, []int) {
	switch s := ds.(type) {
	case *HighDetailIncomplete:
		units := s.presentUnits()
		var cols []int
		for unit, ok := units.NextSet(0); ok; unit, ok = units.NextSet(unit + 1) {
			cols = append(cols, unitColumns(s, int(unit))...)
		}
		return units, cols
	default:
		presence := bitset.New(Width * Width)
		var cols []int
		for idx := 0; idx < Width*Width; idx++ {
			if ds.HasColumn(idx%Width, idx/Width) {
				presence.Set(uint(idx))
				cols = append(cols, idx)
			}
		}
		return presence, cols
	}
}

// unitColumns lists the grid column indices of one sparse unit in
// row-major order.
func unitColumns(s *HighDetailIncomplete, unit int) []int {
	ux := (unit % s.unitsPerSide) * s.colsPerUnit
	uz := (unit / s.unitsPerSide) * s.colsPerUnit
	cols := make([]int, 0, s.colsPerUnit*s.colsPerUnit)
	for z := uz; z < uz+s.colsPerUnit; z++ {
		for x := ux; x < ux+s.colsPerUnit; x++ {
			cols = append(cols, z*Width+x)
		}
	}
	return cols
}

// Decode reconstructs a source from a decoded record. The position comes
// from the storage key; a summary whose detail level disagrees with it
// is treated as corruption. Cancellation aborts the decode with the
// context error so shutdown is never mistaken for a damaged record.
func Decode(ctx context.Context, sum persistence.Summary, p pos.Pos, payload []byte) (DataSource, error) {
	if sum.Detail != p.Detail {
		return nil, fmt.Errorf("%w: summary detail %d for position %v", persistence.ErrGuardMismatch, sum.Detail, p)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := bytes.NewReader(payload)
	var (
		dataWidth uint16
		genStep   uint8
		complete  uint8
	)
	for _, v := range []any{&dataWidth, &genStep, &complete} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("source: reading payload header: %w", err)
		}
	}
	if dataWidth != Width {
		return nil, fmt.Errorf("%w: payload data width %d", persistence.ErrGuardMismatch, dataWidth)
	}

	var presenceLen uint32
	if err := binary.Read(r, binary.LittleEndian, &presenceLen); err != nil {
		return nil, fmt.Errorf("source: reading presence length: %w", err)
	}
	pb := make([]byte, presenceLen)
	if _, err := io.ReadFull(r, pb); err != nil {
		return nil, fmt.Errorf("source: reading presence bitset: %w", err)
	}
	presence := bitset.New(0)
	if err := presence.UnmarshalBinary(pb); err != nil {
		return nil, fmt.Errorf("source: unmarshaling presence bitset: %w", err)
	}
	if err := persistence.ReadGuard(r, persistence.GuardData); err != nil {
		return nil, err
	}

	// Rebuild the shell and the ordered column index list the writer used.
	var (
		shell DataSource
		cols  []int
	)
	switch sum.DataType {
	case persistence.TagHighDetailPartial:
		s := NewHighDetailIncomplete(p)
		for unit, ok := presence.NextSet(0); ok; unit, ok = presence.NextSet(unit + 1) {
			if int(unit) >= s.UnitCount() {
				return nil, fmt.Errorf("%w: unit %d out of range", persistence.ErrGuardMismatch, unit)
			}
			cols = append(cols, unitColumns(s, int(unit))...)
			s.markUnit(int(unit))
		}
		shell = s
	case persistence.TagLowDetailPartial, persistence.TagComplete:
		s := NewLowDetailIncomplete(p)
		for idx, ok := presence.NextSet(0); ok; idx, ok = presence.NextSet(idx + 1) {
			if int(idx) >= Width*Width {
				return nil, fmt.Errorf("%w: column %d out of range", persistence.ErrGuardMismatch, idx)
			}
			cols = append(cols, int(idx))
			s.presence.Set(idx)
		}
		shell = s
	default:
		return nil, fmt.Errorf("%w: %d", persistence.ErrInvalidTag, sum.DataType)
	}

	counts := make([]uint16, len(cols))
	for i := range counts {
		if err := binary.Read(r, binary.LittleEndian, &counts[i]); err != nil {
			return nil, fmt.Errorf("source: reading column lengths: %w", err)
		}
	}
	g := gridOf(shell)
	for i, idx := range cols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := make(column.Column, counts[i])
		for j := range c {
			var d uint64
			if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
				return nil, fmt.Errorf("source: reading column data: %w", err)
			}
			c[j] = column.DataPoint(d)
		}
		g.columns[idx] = c
	}
	if err := persistence.ReadGuard(r, persistence.GuardOptional); err != nil {
		return nil, err
	}

	ids, err := idmap.Read(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := persistence.ReadGuard(r, persistence.GuardEnd); err != nil {
		return nil, err
	}

	g.ids = ids
	g.genStep = GenStep(genStep)
	g.populated = len(cols) > 0

	if sum.DataType == persistence.TagComplete || complete == 1 {
		if !shell.IsComplete() {
			return nil, fmt.Errorf("%w: record marked complete with missing columns", persistence.ErrGuardMismatch)
		}
		return shell.TryPromote(), nil
	}
	return shell, nil
}

// gridOf exposes the embedded grid of any variant.
func gridOf(ds DataSource) *grid {
	switch s := ds.(type) {
	case *Complete:
		return &s.grid
	case *HighDetailIncomplete:
		return &s.grid
	case *LowDetailIncomplete:
		return &s.grid
	default:
		panic(fmt.Sprintf("source: unknown variant %T", ds))
	}
}
