package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies model files (ASCII: "PPF0").
	MagicNumber = 0x50504630
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000

	// HeaderSize is the encoded size of FileHeader.
	HeaderSize = 64
)

var (
	// ErrCorruptData is wrapped by every decoding failure.
	ErrCorruptData = errors.New("corrupt model data")

	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrInvalidCompression = errors.New("unsupported compression")
	ErrTruncated          = errors.New("truncated data")
)

// FileHeader is the 64-byte header at the start of every model file.
type FileHeader struct {
	Magic              uint32 // 0x50504630 ("PPF0")
	Version            uint32 // File format version
	Compression        CompressionType
	Flags              uint8
	Padding1           [2]byte
	PointCount         uint64 // Model points
	KeyCount           uint64 // Distinct hash keys
	EntryCount         uint64 // Total hash entries
	PayloadLength      uint64 // Stored payload bytes
	UncompressedLength uint64 // Payload bytes after decompression
	Checksum           uint32 // CRC32C of the stored payload
	Reserved           [8]byte
}

// ChecksumMismatchError is returned when checksum verification fails.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// Unwrap reports the mismatch as corrupt data.
func (e *ChecksumMismatchError) Unwrap() error { return ErrCorruptData }

// IsChecksumMismatch returns true if err is a checksum mismatch error.
func IsChecksumMismatch(err error) bool {
	var cm *ChecksumMismatchError
	return errors.As(err, &cm)
}

func corrupt(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrCorruptData, cause, fmt.Sprintf(format, args...))
}
