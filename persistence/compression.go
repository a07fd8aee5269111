package persistence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm applied to the payload.
type CompressionType uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone CompressionType = 0
	// CompressionLZ4 indicates LZ4 block compression (fast).
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD indicates ZSTD compression (better ratio).
	CompressionZSTD CompressionType = 2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	// Output is capped at the destination capacity, the declared size.
	dec, _ := zstd.NewReader(nil, zstd.WithDecodeAllCapLimit(true))
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compress returns the stored form of payload and the compression actually
// used. Payloads that do not shrink are stored uncompressed.
func compress(payload []byte, ct CompressionType) ([]byte, CompressionType, error) {
	if ct == CompressionNone || len(payload) == 0 {
		return payload, CompressionNone, nil
	}

	var out []byte
	switch ct {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return payload, CompressionNone, nil // Incompressible
		}
		out = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		out = enc.EncodeAll(payload, nil)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidCompression, ct)
	}

	if len(out) >= len(payload) {
		return payload, CompressionNone, nil
	}
	return out, ct, nil
}

// decompress reverses compress. size is the expected uncompressed length.
func decompress(stored []byte, ct CompressionType, size uint64) ([]byte, error) {
	switch ct {
	case CompressionNone:
		if uint64(len(stored)) != size {
			return nil, errors.New("stored size mismatch")
		}
		return stored, nil

	case CompressionLZ4:
		result := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, result)
		if err != nil {
			return nil, err
		}
		if uint64(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return result, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}
		if uint64(len(decoded)) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompression, ct)
	}
}
