// Package persistence defines the durable binary format for serialized
// terrain sections: the summary record stored ahead of every payload,
// the guard sentinels bracketing payload sections, CRC32 checksums and
// payload compression codecs.
package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies lodgo section records (ASCII "LOD0").
	MagicNumber = 0x4C4F4430
	// FormatVersion is the current record format version.
	FormatVersion = 0x0001

	// Guard sentinels bracket payload sections so a reader detects
	// writer/reader drift early instead of silently misparsing.
	GuardData     = 0x5FA1BEEF // after the presence bitset
	GuardOptional = 0xA5C9E1F2 // after the column data
	GuardEnd      = 0x035FDA1E // after the identity map
)

// Data-type tags identify the serialized source variant.
const (
	TagComplete          uint8 = 1
	TagHighDetailPartial uint8 = 2
	TagLowDetailPartial  uint8 = 3
)

var (
	ErrInvalidMagic     = errors.New("persistence: invalid magic number")
	ErrInvalidVersion   = errors.New("persistence: unsupported format version")
	ErrInvalidTag       = errors.New("persistence: unknown data type tag")
	ErrGuardMismatch    = errors.New("persistence: guard sentinel mismatch")
	ErrChecksumMismatch = errors.New("persistence: checksum mismatch")
)

// Summary is the fixed-size record stored ahead of every payload.
// The checksum covers the compressed payload bytes.
type Summary struct {
	Magic       uint32
	Version     uint16
	DataType    uint8
	Compression uint8
	Detail      uint8
	GenStep     uint8
	Pad         uint16
	DataVersion uint32
	Checksum    uint32
	PayloadLen  uint32
	RawLen      uint32
}

// SummarySize is the encoded size of a Summary in bytes.
const SummarySize = 28

// Encode writes the summary in little-endian layout, stamping the
// current magic and version.
func (s Summary) Encode(w io.Writer) error {
	s.Magic = MagicNumber
	s.Version = FormatVersion
	return binary.Write(w, binary.LittleEndian, s)
}

// DecodeSummary reads and validates a summary record.
func DecodeSummary(r io.Reader) (Summary, error) {
	var s Summary
	if err := binary.Read(r, binary.LittleEndian, &s); err != nil {
		return Summary{}, fmt.Errorf("persistence: reading summary: %w", err)
	}
	if s.Magic != MagicNumber {
		return Summary{}, fmt.Errorf("%w: 0x%08X", ErrInvalidMagic, s.Magic)
	}
	if s.Version != FormatVersion {
		return Summary{}, fmt.Errorf("%w: 0x%04X", ErrInvalidVersion, s.Version)
	}
	switch s.DataType {
	case TagComplete, TagHighDetailPartial, TagLowDetailPartial:
	default:
		return Summary{}, fmt.Errorf("%w: %d", ErrInvalidTag, s.DataType)
	}
	return s, nil
}

// WriteGuard writes one guard sentinel.
func WriteGuard(w io.Writer, guard uint32) error {
	return binary.Write(w, binary.LittleEndian, guard)
}

// ReadGuard reads one sentinel and fails fast on a mismatch.
func ReadGuard(r io.Reader, want uint32) error {
	var got uint32
	if err := binary.Read(r, binary.LittleEndian, &got); err != nil {
		return fmt.Errorf("persistence: reading guard: %w", err)
	}
	if got != want {
		return fmt.Errorf("%w: want 0x%08X, got 0x%08X", ErrGuardMismatch, want, got)
	}
	return nil
}

// EncodeRecord assembles a full on-disk record: summary followed by the
// compressed payload, with the summary's checksum, length and compression
// fields filled in.
func EncodeRecord(s Summary, payload []byte, c Compressor) ([]byte, error) {
	compressed, err := c.Compress(payload)
	if errors.Is(err, errIncompressible) || (err == nil && len(compressed) >= len(payload)) {
		c = NoneCompressor{}
		compressed, err = c.Compress(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: compressing payload: %w", err)
	}
	s.Compression = c.Tag()
	s.Checksum = Checksum(compressed)
	s.PayloadLen = uint32(len(compressed))
	s.RawLen = uint32(len(payload))

	var buf bytes.Buffer
	buf.Grow(SummarySize + len(compressed))
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	if _, err := buf.Write(compressed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord validates and splits a record produced by EncodeRecord,
// returning the summary and the decompressed payload.
func DecodeRecord(record []byte) (Summary, []byte, error) {
	if len(record) < SummarySize {
		return Summary{}, nil, fmt.Errorf("persistence: record truncated at %d bytes", len(record))
	}
	s, err := DecodeSummary(bytes.NewReader(record))
	if err != nil {
		return Summary{}, nil, err
	}
	compressed := record[SummarySize:]
	if uint32(len(compressed)) != s.PayloadLen {
		return Summary{}, nil, fmt.Errorf("persistence: payload length %d does not match summary %d",
			len(compressed), s.PayloadLen)
	}
	if got := Checksum(compressed); got != s.Checksum {
		return Summary{}, nil, fmt.Errorf("%w: want 0x%08X, got 0x%08X", ErrChecksumMismatch, s.Checksum, got)
	}
	c, err := CompressorFor(s.Compression)
	if err != nil {
		return Summary{}, nil, err
	}
	payload, err := c.Decompress(compressed, int(s.RawLen))
	if err != nil {
		return Summary{}, nil, fmt.Errorf("persistence: decompressing payload: %w", err)
	}
	return s, payload, nil
}

// IsCorrupt reports whether err indicates a damaged or drifted record,
// as opposed to a transient failure or cancellation. Corrupt records are
// deleted and rebuilt from scratch by the caller.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrInvalidMagic) ||
		errors.Is(err, ErrInvalidVersion) ||
		errors.Is(err, ErrInvalidTag) ||
		errors.Is(err, ErrGuardMismatch) ||
		errors.Is(err, ErrChecksumMismatch)
}
