// Package persistence implements the binary format of trained models.
//
// A model file is a 64-byte little-endian header followed by the payload:
//
//	Header    magic "PPF0", version, compression, counts, lengths, CRC32C
//	Payload   model id, quantization parameters, points, buckets
//
// The payload may be compressed with LZ4 or ZSTD. The checksum covers the
// stored (possibly compressed) payload. Buckets are written in ascending key
// order, so encoding the same model twice yields identical bytes.
//
// Decoding validates everything it reads and returns an error wrapping
// ErrCorruptData for any inconsistency; it never returns a partial model.
package persistence
