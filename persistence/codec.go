package persistence

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// errIncompressible signals that a codec could not shrink the input;
// EncodeRecord falls back to storing the payload verbatim.
var errIncompressible = fmt.Errorf("persistence: payload is incompressible")

// Compression tags stored in the summary record.
const (
	CompressionNone uint8 = 0
	CompressionLZ4  uint8 = 1
	CompressionZstd uint8 = 2
)

// Compressor compresses section payloads before they reach the store.
// Terrain columns are highly repetitive, so even the fast codecs cut
// payloads substantially.
type Compressor interface {
	Tag() uint8
	Compress(src []byte) ([]byte, error)
	// Decompress expands src into a buffer of rawLen bytes.
	Decompress(src []byte, rawLen int) ([]byte, error)
}

// CompressorFor returns the codec for a summary compression tag.
func CompressorFor(tag uint8) (Compressor, error) {
	switch tag {
	case CompressionNone:
		return NoneCompressor{}, nil
	case CompressionLZ4:
		return LZ4Compressor{}, nil
	case CompressionZstd:
		return ZstdCompressor{}, nil
	default:
		return nil, fmt.Errorf("persistence: unknown compression tag %d", tag)
	}
}

// NoneCompressor stores payloads verbatim.
type NoneCompressor struct{}

func (NoneCompressor) Tag() uint8 { return CompressionNone }

func (NoneCompressor) Compress(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (NoneCompressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	if len(src) != rawLen {
		return nil, fmt.Errorf("persistence: raw payload length %d does not match summary %d", len(src), rawLen)
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// LZ4Compressor is the default payload codec.
type LZ4Compressor struct{}

func (LZ4Compressor) Tag() uint8 { return CompressionLZ4 }

func (LZ4Compressor) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible input; the caller falls back to the verbatim codec.
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (LZ4Compressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// ZstdCompressor trades a little speed for a better ratio; selectable
// per provider option.
type ZstdCompressor struct{}

var (
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1))
)

func (ZstdCompressor) Tag() uint8 { return CompressionZstd }

func (ZstdCompressor) Compress(src []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, nil), nil
}

func (ZstdCompressor) Decompress(src []byte, rawLen int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, rawLen))
	if err != nil {
		return nil, err
	}
	return out, nil
}
