package persistence

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repetitivePayload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 7)
	}
	return out
}

func TestRecordRoundTrip(t *testing.T) {
	payload := repetitivePayload(4096)

	for _, c := range []Compressor{NoneCompressor{}, LZ4Compressor{}, ZstdCompressor{}} {
		s := Summary{
			DataType:    TagLowDetailPartial,
			Detail:      10,
			GenStep:     3,
			DataVersion: 7,
		}
		record, err := EncodeRecord(s, payload, c)
		require.NoError(t, err)

		got, raw, err := DecodeRecord(record)
		require.NoError(t, err)
		assert.Equal(t, payload, raw)
		assert.Equal(t, uint8(10), got.Detail)
		assert.Equal(t, uint8(3), got.GenStep)
		assert.Equal(t, uint32(7), got.DataVersion)
		assert.Equal(t, TagLowDetailPartial, got.DataType)
	}
}

func TestCompressedRecordIsSmaller(t *testing.T) {
	payload := repetitivePayload(1 << 16)

	record, err := EncodeRecord(Summary{DataType: TagComplete}, payload, LZ4Compressor{})
	require.NoError(t, err)
	assert.Less(t, len(record), len(payload))
}

func TestIncompressiblePayloadFallsBack(t *testing.T) {
	// High-entropy payload the block codec cannot shrink.
	payload := make([]byte, 512)
	state := uint32(0x9E3779B9)
	for i := range payload {
		state = state*1664525 + 1013904223
		payload[i] = byte(state >> 24)
	}

	record, err := EncodeRecord(Summary{DataType: TagComplete}, payload, LZ4Compressor{})
	require.NoError(t, err)

	s, raw, err := DecodeRecord(record)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, s.Compression)
	assert.Equal(t, payload, raw)
}

func TestDecodeRecordChecksumMismatch(t *testing.T) {
	record, err := EncodeRecord(Summary{DataType: TagComplete}, repetitivePayload(256), NoneCompressor{})
	require.NoError(t, err)

	record[len(record)-1] ^= 0xFF
	_, _, err = DecodeRecord(record)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.True(t, IsCorrupt(err))
}

func TestDecodeRecordBadMagic(t *testing.T) {
	record, err := EncodeRecord(Summary{DataType: TagComplete}, repetitivePayload(64), NoneCompressor{})
	require.NoError(t, err)

	record[0] ^= 0xFF
	_, _, err = DecodeRecord(record)
	assert.ErrorIs(t, err, ErrInvalidMagic)
	assert.True(t, IsCorrupt(err))
}

func TestDecodeRecordTruncated(t *testing.T) {
	_, _, err := DecodeRecord([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestGuards(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGuard(&buf, GuardData))
	require.NoError(t, WriteGuard(&buf, GuardOptional))

	require.NoError(t, ReadGuard(&buf, GuardData))
	err := ReadGuard(&buf, GuardEnd)
	assert.ErrorIs(t, err, ErrGuardMismatch)
	assert.True(t, IsCorrupt(err))
}

func TestChecksumDetectsBitFlip(t *testing.T) {
	data := repetitivePayload(1000)
	sum := Checksum(data)

	data[512] ^= 0x01
	assert.NotEqual(t, sum, Checksum(data))
}
