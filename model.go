package surfmatch

import (
	"bytes"
	"context"
	"io"
	"math"
	"time"

	"github.com/hupe1980/surfmatch/catalog"
	"github.com/hupe1980/surfmatch/hashtable"
	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/pointcloud"
)

// DefaultCompression is the payload compression of serialized models.
const DefaultCompression = persistence.CompressionLZ4

// Data exports the model in its serializable form. The returned buckets
// share memory with the model and must not be modified.
func (m *Model) Data() (*persistence.ModelData, error) {
	if !m.Trained() {
		return nil, ErrUntrainedModel
	}
	buckets := make(map[uint64][]hashtable.Entry, m.table.Len())
	for _, k := range m.table.Keys() {
		buckets[k] = m.table.Lookup(k)
	}
	return &persistence.ModelData{
		ID: m.id,
		Params: persistence.ModelParams{
			DistanceStep:     m.params.DistanceStep,
			AngleBins:        uint32(m.params.AngleBins),
			RelativeSampling: m.params.RelativeSamplingDistance,
			Diameter:         m.params.Diameter,
		},
		Points:  m.points.Records(),
		Buckets: buckets,
	}, nil
}

// FromData rebuilds a model from decoded data. Inconsistent data is
// rejected with ErrCorruptModelData.
func FromData(d *persistence.ModelData) (*Model, error) {
	if d == nil {
		return nil, corruptModel("no model data")
	}
	params := ModelParams{
		DistanceStep:             d.Params.DistanceStep,
		AngleBins:                int(d.Params.AngleBins),
		RelativeSamplingDistance: d.Params.RelativeSampling,
		Diameter:                 d.Params.Diameter,
	}
	if err := params.quantization().Validate(); err != nil {
		return nil, &CorruptModelError{cause: err}
	}
	if !(params.Diameter > 0) || math.IsInf(params.Diameter, 0) {
		return nil, corruptModel("diameter %v", params.Diameter)
	}
	if !(params.RelativeSamplingDistance > 0 && params.RelativeSamplingDistance <= 1) {
		return nil, corruptModel("relative sampling distance %v", params.RelativeSamplingDistance)
	}

	points, err := pointcloud.FromRecords(d.Points)
	if err != nil {
		return nil, &CorruptModelError{cause: err}
	}
	if points.Len() == 0 {
		return nil, corruptModel("no model points")
	}

	table := hashtable.FromBuckets(d.Buckets)
	if table.MaxRef() >= points.Len() {
		return nil, corruptModel("reference %d out of range for %d points", table.MaxRef(), points.Len())
	}
	return newModel(d.ID, params, points, table), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It replaces the
// content of m and keeps its logger and metrics collector. On error m is
// left unchanged.
//
// UnmarshalBinary must not run concurrently with Match or any other use of
// the same Model value.
func (m *Model) UnmarshalBinary(data []byte) error {
	start := time.Now()
	decoded, err := decodeModel(data)
	m.collector().RecordLoad(time.Since(start), err)
	if err != nil {
		return err
	}
	if m.logger != nil {
		decoded.compression, decoded.logger, decoded.metrics = m.compression, m.logger, m.metrics
	}
	*m = *decoded
	return nil
}

// WriteTo implements io.WriterTo.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	start := time.Now()
	data, err := m.Data()
	if err != nil {
		return 0, err
	}
	n, err := persistence.Encode(w, data, m.compression)
	m.collector().RecordSave(n, time.Since(start), err)
	return n, err
}

// ReadModel decodes a model written by WriteTo.
func ReadModel(r io.Reader, opts ...TrainOption) (*Model, error) {
	o := applyTrainOptions(opts)
	start := time.Now()
	d, err := persistence.Decode(r)
	var m *Model
	if err == nil {
		m, err = FromData(d)
	}
	err = translateError(err, "")
	o.MetricsCollector.RecordLoad(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return m.withOptions(o), nil
}

// Save writes the model to filename atomically.
func (m *Model) Save(ctx context.Context, filename string) error {
	data, err := m.Data()
	if err == nil {
		start := time.Now()
		var n int64
		n, err = persistence.SaveModel(filename, data, m.compression)
		m.collector().RecordSave(n, time.Since(start), err)
	}
	m.log().LogSave(ctx, filename, err)
	return err
}

// Load maps filename and decodes the model stored in it.
//
// Example:
//
//	model, err := surfmatch.Load(ctx, "part.ppf", surfmatch.WithLogger(logger))
func Load(ctx context.Context, filename string, opts ...TrainOption) (*Model, error) {
	o := applyTrainOptions(opts)
	start := time.Now()
	d, err := persistence.LoadModel(filename)
	var m *Model
	if err == nil {
		m, err = FromData(d)
	}
	err = translateError(err, "")
	o.MetricsCollector.RecordLoad(time.Since(start), err)
	modelLogger(o.Logger, m).LogLoad(ctx, filename, err)
	if err != nil {
		return nil, err
	}
	return m.withOptions(o), nil
}

// Publish stores the model in c under name and makes it the current version.
func (m *Model) Publish(ctx context.Context, c *catalog.Catalog, name string) (catalog.Entry, error) {
	data, err := m.Data()
	if err != nil {
		return catalog.Entry{}, err
	}
	start := time.Now()
	entry, err := c.Publish(ctx, name, data)
	m.collector().RecordSave(entry.Size, time.Since(start), err)
	m.log().LogSave(ctx, name, err)
	return entry, err
}

// Fetch loads the current version of the model published under name.
func Fetch(ctx context.Context, c *catalog.Catalog, name string, opts ...TrainOption) (*Model, catalog.Entry, error) {
	o := applyTrainOptions(opts)
	start := time.Now()
	d, entry, err := c.Fetch(ctx, name)
	var m *Model
	if err == nil {
		m, err = FromData(d)
	}
	err = translateError(err, "")
	o.MetricsCollector.RecordLoad(time.Since(start), err)
	modelLogger(o.Logger, m).LogLoad(ctx, name, err)
	if err != nil {
		return nil, entry, err
	}
	return m.withOptions(o), entry, nil
}

func (m *Model) withOptions(o TrainOptions) *Model {
	m.compression = o.Compression
	m.logger = o.Logger
	m.metrics = o.MetricsCollector
	return m
}

func decodeModel(data []byte) (*Model, error) {
	d, err := persistence.DecodeBytes(data)
	if err != nil {
		return nil, translateError(err, "")
	}
	return FromData(d)
}
