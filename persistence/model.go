package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/hupe1980/surfmatch/hashtable"
	"github.com/hupe1980/surfmatch/internal/hash"
	"github.com/hupe1980/surfmatch/pointcloud"
)

const (
	prefixSize      = 16 + 8 + 4 + 4 + 8 + 8
	pointSize       = pointcloud.RecordSize * 8
	bucketHeadSize  = 8 + 4
	entrySize       = 4 + 4
	maxExpandFactor = 1024
)

// ModelParams are the quantization and sampling parameters of a model.
type ModelParams struct {
	DistanceStep     float64
	AngleBins        uint32
	RelativeSampling float64
	Diameter         float64
}

// ModelData is the decoded content of a model file.
type ModelData struct {
	ID      uuid.UUID
	Params  ModelParams
	Points  []float64 // flat (x,y,z,nx,ny,nz) records
	Buckets map[uint64][]hashtable.Entry
}

// sortedKeys returns the keys of non-empty buckets in ascending order.
func (m *ModelData) sortedKeys() []uint64 {
	keys := make([]uint64, 0, len(m.Buckets))
	for k, b := range m.Buckets {
		if len(b) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Encode writes m to w and returns the number of bytes written.
func Encode(w io.Writer, m *ModelData, ct CompressionType) (int64, error) {
	if len(m.Points)%pointcloud.RecordSize != 0 {
		return 0, fmt.Errorf("persistence: point records length %d is not a multiple of %d", len(m.Points), pointcloud.RecordSize)
	}
	sorted := m.sortedKeys()
	points := uint64(len(m.Points) / pointcloud.RecordSize)
	keys := uint64(len(sorted))
	var entries uint64
	for _, k := range sorted {
		entries += uint64(len(m.Buckets[k]))
	}

	payload := bytes.NewBuffer(make([]byte, 0, payloadSize(points, keys, entries)))

	payload.Write(m.ID[:])
	writeUint64(payload, math.Float64bits(m.Params.DistanceStep))
	writeUint32(payload, m.Params.AngleBins)
	writeUint32(payload, 0)
	writeUint64(payload, math.Float64bits(m.Params.RelativeSampling))
	writeUint64(payload, math.Float64bits(m.Params.Diameter))
	for _, v := range m.Points {
		writeUint64(payload, math.Float64bits(v))
	}

	for _, k := range sorted {
		b := m.Buckets[k]
		writeUint64(payload, k)
		writeUint32(payload, uint32(len(b)))
		for _, e := range b {
			writeUint32(payload, e.Ref)
			writeUint32(payload, math.Float32bits(e.Alpha))
		}
	}

	stored, used, err := compress(payload.Bytes(), ct)
	if err != nil {
		return 0, err
	}

	header := FileHeader{
		Magic:              MagicNumber,
		Version:            Version,
		Compression:        used,
		PointCount:         points,
		KeyCount:           keys,
		EntryCount:         entries,
		PayloadLength:      uint64(len(stored)),
		UncompressedLength: uint64(payload.Len()),
		Checksum:           hash.CRC32C(stored),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return 0, err
	}
	n, err := w.Write(stored)
	return int64(HeaderSize + n), err
}

// Decode reads a model from r.
func Decode(r io.Reader) (*ModelData, error) {
	return decodeStream(r, -1)
}

// DecodeSized is Decode for a blob of size bytes. A header claiming more
// payload than the blob holds is rejected before the payload is read.
func DecodeSized(r io.Reader, size int64) (*ModelData, error) {
	return decodeStream(r, size)
}

func decodeStream(r io.Reader, size int64) (*ModelData, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, corrupt(ErrTruncated, "header: %v", err)
	}
	if err := validateHeader(&header); err != nil {
		return nil, err
	}
	if size >= 0 && header.PayloadLength > uint64(max(size-HeaderSize, 0)) {
		return nil, corrupt(ErrTruncated, "payload length %d exceeds blob of %d bytes", header.PayloadLength, size)
	}

	// The header is not checksummed: buffer what arrives instead of
	// allocating PayloadLength up front.
	var stored bytes.Buffer
	n, err := stored.ReadFrom(io.LimitReader(r, int64(header.PayloadLength)))
	if err != nil {
		return nil, corrupt(ErrTruncated, "payload: %v", err)
	}
	if uint64(n) != header.PayloadLength {
		return nil, corrupt(ErrTruncated, "payload has %d of %d bytes", n, header.PayloadLength)
	}
	return decodePayload(&header, stored.Bytes())
}

// DecodeBytes decodes a model held in memory, such as a mapped file. The
// result does not alias data.
func DecodeBytes(data []byte) (*ModelData, error) {
	if len(data) < HeaderSize {
		return nil, corrupt(ErrTruncated, "%d bytes", len(data))
	}
	var header FileHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, corrupt(ErrTruncated, "header: %v", err)
	}
	if err := validateHeader(&header); err != nil {
		return nil, err
	}
	rest := data[HeaderSize:]
	if uint64(len(rest)) < header.PayloadLength {
		return nil, corrupt(ErrTruncated, "payload has %d of %d bytes", len(rest), header.PayloadLength)
	}
	return decodePayload(&header, rest[:header.PayloadLength])
}

func validateHeader(h *FileHeader) error {
	if h.Magic != MagicNumber {
		return corrupt(ErrInvalidMagic, "got 0x%08x", h.Magic)
	}
	if h.Version != Version {
		return corrupt(ErrInvalidVersion, "got 0x%08x", h.Version)
	}
	if h.Compression > CompressionZSTD {
		return corrupt(ErrInvalidCompression, "%s", h.Compression)
	}
	want, ok := checkedPayloadSize(h.PointCount, h.KeyCount, h.EntryCount)
	if !ok || want != h.UncompressedLength {
		return corrupt(ErrTruncated, "payload length %d does not match counts", h.UncompressedLength)
	}
	if h.PayloadLength > h.UncompressedLength || (h.UncompressedLength-min(h.UncompressedLength, HeaderSize))/maxExpandFactor > h.PayloadLength {
		return corrupt(ErrTruncated, "stored length %d", h.PayloadLength)
	}
	return nil
}

func decodePayload(h *FileHeader, stored []byte) (*ModelData, error) {
	if sum := hash.CRC32C(stored); sum != h.Checksum {
		return nil, &ChecksumMismatchError{Expected: h.Checksum, Actual: sum}
	}
	payload, err := decompress(stored, h.Compression, h.UncompressedLength)
	if err != nil {
		return nil, corrupt(ErrInvalidCompression, "%v", err)
	}

	rd := payloadReader{buf: payload}
	m := &ModelData{}
	copy(m.ID[:], rd.bytes(16))
	m.Params.DistanceStep = math.Float64frombits(rd.uint64())
	m.Params.AngleBins = rd.uint32()
	_ = rd.uint32()
	m.Params.RelativeSampling = math.Float64frombits(rd.uint64())
	m.Params.Diameter = math.Float64frombits(rd.uint64())

	m.Points = make([]float64, h.PointCount*pointcloud.RecordSize)
	for i := range m.Points {
		m.Points[i] = math.Float64frombits(rd.uint64())
	}

	m.Buckets = make(map[uint64][]hashtable.Entry, h.KeyCount)
	var (
		entries uint64
		prev    uint64
	)
	for i := uint64(0); i < h.KeyCount; i++ {
		key := rd.uint64()
		if i > 0 && key <= prev {
			return nil, corrupt(ErrCorruptData, "bucket keys not ascending at %d", i)
		}
		prev = key
		count := uint64(rd.uint32())
		entries += count
		if count == 0 || entries > h.EntryCount || rd.remaining() < count*entrySize {
			return nil, corrupt(ErrTruncated, "bucket %d count %d", i, count)
		}
		b := make([]hashtable.Entry, count)
		for j := range b {
			b[j] = hashtable.Entry{Ref: rd.uint32(), Alpha: math.Float32frombits(rd.uint32())}
			if uint64(b[j].Ref) >= h.PointCount {
				return nil, corrupt(ErrCorruptData, "reference %d out of range", b[j].Ref)
			}
		}
		m.Buckets[key] = b
	}
	if rd.err || entries != h.EntryCount || rd.remaining() != 0 {
		return nil, corrupt(ErrTruncated, "payload does not match header counts")
	}
	return m, nil
}

func payloadSize(points, keys, entries uint64) uint64 {
	return prefixSize + points*pointSize + keys*bucketHeadSize + entries*entrySize
}

func checkedPayloadSize(points, keys, entries uint64) (uint64, bool) {
	const limit = math.MaxUint64 / 64
	if points > limit/pointSize || keys > limit/bucketHeadSize || entries > limit/entrySize {
		return 0, false
	}
	return payloadSize(points, keys, entries), true
}

func writeUint64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func writeUint32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

// payloadReader reads little-endian values and records overruns instead of
// panicking.
type payloadReader struct {
	buf []byte
	off uint64
	err bool
}

func (r *payloadReader) remaining() uint64 { return uint64(len(r.buf)) - r.off }

func (r *payloadReader) bytes(n uint64) []byte {
	if r.remaining() < n {
		r.err = true
		r.off = uint64(len(r.buf))
		return make([]byte, n)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *payloadReader) uint64() uint64 { return binary.LittleEndian.Uint64(r.bytes(8)) }

func (r *payloadReader) uint32() uint32 { return binary.LittleEndian.Uint32(r.bytes(4)) }
