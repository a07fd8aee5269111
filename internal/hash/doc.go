// Package hash provides the CRC32-Castagnoli checksum used by model files.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(payload)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(payload)
//	checksum := h.Sum32()
package hash
