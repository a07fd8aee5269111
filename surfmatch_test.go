package surfmatch_test

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch"
	"github.com/hupe1980/surfmatch/blobstore"
	"github.com/hupe1980/surfmatch/catalog"
	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/resource"
	"github.com/hupe1980/surfmatch/testutil"
)

const rel = 0.05

func trainField(t *testing.T, opts ...surfmatch.TrainOption) (*surfmatch.Model, *pointcloud.PointSet) {
	t.Helper()
	field := testutil.HeightField(20, 3)
	model, err := surfmatch.Train(context.Background(), field, rel, opts...)
	require.NoError(t, err)
	return model, field
}

func TestTrain(t *testing.T) {
	model, field := trainField(t)

	p := model.Params()
	assert.InDelta(t, field.Diameter(), p.Diameter, 1e-12)
	assert.InDelta(t, rel*p.Diameter, p.DistanceStep, 1e-12)
	assert.Equal(t, 30, p.AngleBins)
	assert.Equal(t, rel, p.RelativeSamplingDistance)

	n := model.Points().Len()
	assert.Greater(t, n, 10)
	assert.Less(t, n, field.Len())
	assert.Equal(t, n*(n-1), model.NumEntries())
	assert.Greater(t, model.NumKeys(), 0)
	assert.True(t, model.Trained())
	assert.NotEqual(t, uuid.Nil, model.ID())
}

func TestMatchSelf(t *testing.T) {
	model, field := trainField(t)

	results, err := surfmatch.Match(context.Background(), model, field, rel, 0.5, 0.5, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	rot, trans := testutil.PoseError(pose.Identity(), top.Pose)
	assert.Less(t, rot, model.Params().AngleStep())
	assert.Less(t, trans, 2*model.Params().DistanceStep)
	assert.Greater(t, top.Score, 0.9)
}

func TestMatchRecoversTransform(t *testing.T) {
	model, field := trainField(t)
	g := testutil.NewRNG(7).Pose(math.Pi, 5)
	scene := surfmatch.Transform(g, field)

	results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 0.3, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	rot, trans := testutil.PoseError(g, results[0].Pose)
	assert.Less(t, rot, 2*model.Params().AngleStep())
	assert.Less(t, trans, 3*model.Params().DistanceStep)

	// The matrix form maps model points like the pose does.
	moved, err := surfmatch.TransformMatrix(results[0].Matrix(), model.Points())
	require.NoError(t, err)
	want := surfmatch.Transform(results[0].Pose, model.Points())
	for i := 0; i < moved.Len(); i++ {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(want.At(i).Position, moved.At(i).Position)), 1e-6)
	}
}

func TestMatchCube(t *testing.T) {
	cube := testutil.CubeCorners(2)
	model, err := surfmatch.Train(context.Background(), cube, 0.03)
	require.NoError(t, err)
	require.Equal(t, 8, model.Points().Len())

	g := pose.FromAxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	g.Translation = r3.Vec{X: 10}
	scene := surfmatch.Transform(g, cube)

	// Every cell of the 24 cube symmetries ties, so keep all peaks.
	results, err := surfmatch.Match(context.Background(), model, scene, 0.03, 1, 0.5, 30,
		surfmatch.WithPeakRule(0.9, 64, 3))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 30)

	found := false
	for _, r := range results {
		rot, trans := testutil.PoseError(g, r.Pose)
		if rot < 0.1 && trans < 0.1 && r.Score > 0.8 {
			found = true
		}
	}
	assert.True(t, found, "no pose near a quarter turn about z at (10, 0, 0)")
}

func TestMatchOrderingAndLimit(t *testing.T) {
	model, field := trainField(t)
	g := testutil.NewRNG(11).Pose(math.Pi, 2)
	scene := surfmatch.Transform(g, field)

	all, err := surfmatch.Match(context.Background(), model, scene, rel, 1, 0, 20)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.LessOrEqual(t, len(all), 20)
	assert.True(t, sort.SliceIsSorted(all, func(i, j int) bool { return all[i].Score > all[j].Score }))
	for _, r := range all {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	two, err := surfmatch.Match(context.Background(), model, scene, rel, 1, 0, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(two), 2)
	require.NotEmpty(t, two)
	assert.Equal(t, all[0], two[0])
}

func TestMatchMinScoreAboveBest(t *testing.T) {
	model, field := trainField(t)
	scene := testutil.NewRNG(3).Jitter(field, 0.05)

	results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 1, 5,
		surfmatch.WithScoreDistance(0.01))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchEmptyScene(t *testing.T) {
	model, _ := trainField(t)
	empty, err := pointcloud.New(nil)
	require.NoError(t, err)

	_, err = surfmatch.Match(context.Background(), model, empty, rel, 0.5, 0.5, 1)
	assert.ErrorIs(t, err, surfmatch.ErrInvalidInput)
	var ie *surfmatch.InvalidInputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "scene", ie.Field)

	_, err = surfmatch.Match(context.Background(), model, nil, rel, 0.5, 0.5, 1)
	assert.ErrorIs(t, err, surfmatch.ErrInvalidInput)

	// A single point is a valid scene without a match.
	single, err := pointcloud.New([]pointcloud.Point{{Normal: r3.Vec{Z: 1}}})
	require.NoError(t, err)
	results, err := surfmatch.Match(context.Background(), model, single, rel, 0.5, 0.5, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchDeterministicAcrossWorkers(t *testing.T) {
	model, field := trainField(t)
	scene := surfmatch.Transform(testutil.NewRNG(5).Pose(math.Pi, 3), testutil.NewRNG(6).Jitter(field, 0.01))

	want, err := surfmatch.Match(context.Background(), model, scene, rel, 0.3, 0.2, 5,
		surfmatch.WithWorkers(1), surfmatch.WithSeed(42))
	require.NoError(t, err)
	require.NotEmpty(t, want)

	for _, w := range []int{2, 8} {
		got, err := surfmatch.Match(context.Background(), model, scene, rel, 0.3, 0.2, 5,
			surfmatch.WithWorkers(w), surfmatch.WithSeed(42))
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", w)
	}
}

func TestTrainDeterministicAcrossWorkers(t *testing.T) {
	field := testutil.HeightField(16, 3)
	var want *persistence.ModelData
	for _, w := range []int{1, 3, 8} {
		model, err := surfmatch.Train(context.Background(), field, rel, surfmatch.WithWorkers(w))
		require.NoError(t, err)
		data, err := model.Data()
		require.NoError(t, err)
		if want == nil {
			want = data
			continue
		}
		assert.Equal(t, want.Points, data.Points, "workers=%d", w)
		assert.Equal(t, want.Buckets, data.Buckets, "workers=%d", w)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	model, field := trainField(t)
	scene := surfmatch.Transform(testutil.NewRNG(9).Pose(math.Pi, 4), field)
	opts := []surfmatch.MatchOption{surfmatch.WithWorkers(2), surfmatch.WithSeed(1)}

	want, err := surfmatch.Match(ctx, model, scene, rel, 0.5, 0.3, 3, opts...)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	check := func(t *testing.T, loaded *surfmatch.Model) {
		t.Helper()
		assert.Equal(t, model.ID(), loaded.ID())
		assert.Equal(t, model.Params(), loaded.Params())
		assert.Equal(t, model.NumEntries(), loaded.NumEntries())
		got, err := surfmatch.Match(ctx, loaded, scene, rel, 0.5, 0.3, 3, opts...)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	t.Run("Binary", func(t *testing.T) {
		data, err := model.MarshalBinary()
		require.NoError(t, err)
		var loaded surfmatch.Model
		require.NoError(t, loaded.UnmarshalBinary(data))
		check(t, &loaded)
	})

	t.Run("Stream", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := model.WriteTo(&buf)
		require.NoError(t, err)
		assert.Equal(t, int64(buf.Len()), n)
		loaded, err := surfmatch.ReadModel(&buf)
		require.NoError(t, err)
		check(t, loaded)
	})

	t.Run("File", func(t *testing.T) {
		for _, ct := range []persistence.CompressionType{
			persistence.CompressionNone,
			persistence.CompressionLZ4,
			persistence.CompressionZSTD,
		} {
			t.Run(ct.String(), func(t *testing.T) {
				m, err := surfmatch.ReadModel(mustMarshal(t, model), surfmatch.WithCompression(ct))
				require.NoError(t, err)
				path := filepath.Join(t.TempDir(), "model.ppf")
				require.NoError(t, m.Save(ctx, path))
				loaded, err := surfmatch.Load(ctx, path)
				require.NoError(t, err)
				check(t, loaded)
			})
		}
	})

	t.Run("Catalog", func(t *testing.T) {
		cat := catalog.New(blobstore.NewMemoryStore())
		entry, err := model.Publish(ctx, cat, "field")
		require.NoError(t, err)
		assert.Equal(t, model.ID(), entry.ModelID)

		loaded, got, err := surfmatch.Fetch(ctx, cat, "field")
		require.NoError(t, err)
		assert.Equal(t, entry.Version, got.Version)
		check(t, loaded)
	})
}

func mustMarshal(t *testing.T, m *surfmatch.Model) *bytes.Reader {
	t.Helper()
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestCorruptModelData(t *testing.T) {
	model, _ := trainField(t)
	data, err := model.MarshalBinary()
	require.NoError(t, err)

	for name, corrupt := range map[string][]byte{
		"Empty":     nil,
		"Truncated": data[:len(data)/2],
		"Magic":     append([]byte{'X'}, data[1:]...),
		"Payload": func() []byte {
			b := bytes.Clone(data)
			b[len(b)-1] ^= 0xff
			return b
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			var m surfmatch.Model
			err := m.UnmarshalBinary(corrupt)
			assert.ErrorIs(t, err, surfmatch.ErrCorruptModelData)
			assert.False(t, m.Trained())

			_, err = surfmatch.ReadModel(bytes.NewReader(corrupt))
			assert.ErrorIs(t, err, surfmatch.ErrCorruptModelData)
		})
	}
}

func TestCorruptModelDataReason(t *testing.T) {
	model, _ := trainField(t)
	data, err := model.MarshalBinary()
	require.NoError(t, err)

	payload := bytes.Clone(data)
	payload[len(payload)-1] ^= 0xff

	var m surfmatch.Model
	err = m.UnmarshalBinary(payload)
	var cerr *surfmatch.CorruptModelError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "checksum mismatch", cerr.Reason)
	assert.Contains(t, err.Error(), "checksum mismatch")

	err = m.UnmarshalBinary(data[:len(data)/2])
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, cerr.Reason)
}

func TestUnmarshalCorruptKeepsModel(t *testing.T) {
	ctx := context.Background()
	model, field := trainField(t)
	id := model.ID()
	data, err := model.MarshalBinary()
	require.NoError(t, err)

	before, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	corrupt := bytes.Clone(data)
	corrupt[len(corrupt)-1] ^= 0xff
	require.ErrorIs(t, model.UnmarshalBinary(corrupt), surfmatch.ErrCorruptModelData)
	require.ErrorIs(t, model.UnmarshalBinary(data[:len(data)/2]), surfmatch.ErrCorruptModelData)

	assert.True(t, model.Trained())
	assert.Equal(t, id, model.ID())
	after, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFromDataRejectsInconsistentData(t *testing.T) {
	model, _ := trainField(t)

	for name, mutate := range map[string]func(d *persistence.ModelData){
		"AngleBins":  func(d *persistence.ModelData) { d.Params.AngleBins = 1 },
		"Diameter":   func(d *persistence.ModelData) { d.Params.Diameter = 0 },
		"Sampling":   func(d *persistence.ModelData) { d.Params.RelativeSampling = 2 },
		"Records":    func(d *persistence.ModelData) { d.Points = d.Points[:len(d.Points)-1] },
		"NoPoints":   func(d *persistence.ModelData) { d.Points = nil },
		"BadNormal":  func(d *persistence.ModelData) { d.Points[3], d.Points[4], d.Points[5] = 0, 0, 0 },
		"OutOfRange": func(d *persistence.ModelData) { d.Points = d.Points[:6] },
	} {
		t.Run(name, func(t *testing.T) {
			data, err := model.Data()
			require.NoError(t, err)
			data.Points = append([]float64(nil), data.Points...)
			mutate(data)
			_, err = surfmatch.FromData(data)
			assert.ErrorIs(t, err, surfmatch.ErrCorruptModelData)
		})
	}
}

func TestInputErrors(t *testing.T) {
	ctx := context.Background()
	model, field := trainField(t)

	coincident, err := pointcloud.New([]pointcloud.Point{
		{Position: r3.Vec{X: 1}, Normal: r3.Vec{Z: 1}},
		{Position: r3.Vec{X: 1}, Normal: r3.Vec{Y: 1}},
	})
	require.NoError(t, err)
	empty, err := pointcloud.New(nil)
	require.NoError(t, err)

	t.Run("Train", func(t *testing.T) {
		for name, train := range map[string]func() error{
			"Nil":        func() error { _, err := surfmatch.Train(ctx, nil, rel); return err },
			"Empty":      func() error { _, err := surfmatch.Train(ctx, empty, rel); return err },
			"Coincident": func() error { _, err := surfmatch.Train(ctx, coincident, rel); return err },
			"ZeroRel":    func() error { _, err := surfmatch.Train(ctx, field, 0); return err },
			"LargeRel":   func() error { _, err := surfmatch.Train(ctx, field, 1.5); return err },
			"NaNRel":     func() error { _, err := surfmatch.Train(ctx, field, math.NaN()); return err },
			"AngleBins": func() error {
				_, err := surfmatch.Train(ctx, field, rel, surfmatch.WithAngleBins(2))
				return err
			},
			"MaxPairs": func() error {
				_, err := surfmatch.Train(ctx, field, rel, surfmatch.WithMaxPairsPerPoint(-1))
				return err
			},
		} {
			t.Run(name, func(t *testing.T) {
				assert.ErrorIs(t, train(), surfmatch.ErrInvalidInput)
			})
		}
	})

	t.Run("Match", func(t *testing.T) {
		for name, match := range map[string]func() error{
			"Rel":       func() error { _, err := surfmatch.Match(ctx, model, field, 0, 0.5, 0.5, 1); return err },
			"Fraction":  func() error { _, err := surfmatch.Match(ctx, model, field, rel, 0, 0.5, 1); return err },
			"Fraction2": func() error { _, err := surfmatch.Match(ctx, model, field, rel, 1.1, 0.5, 1); return err },
			"MinScore":  func() error { _, err := surfmatch.Match(ctx, model, field, rel, 0.5, 1.5, 1); return err },
			"NumMatch":  func() error { _, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 0); return err },
			"PeakRule": func() error {
				_, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1, surfmatch.WithPeakRule(2, 1, 1))
				return err
			},
			"Tolerance": func() error {
				_, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1, surfmatch.WithClusterTolerance(0, 1))
				return err
			},
			"Overlap": func() error {
				_, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1, surfmatch.WithMaxSceneOverlap(2))
				return err
			},
		} {
			t.Run(name, func(t *testing.T) {
				assert.ErrorIs(t, match(), surfmatch.ErrInvalidInput)
			})
		}
	})

	t.Run("FieldName", func(t *testing.T) {
		_, err := surfmatch.Match(ctx, model, field, rel, 0, 0.5, 1)
		var ie *surfmatch.InvalidInputError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "key_point_fraction", ie.Field)
	})

	t.Run("Untrained", func(t *testing.T) {
		_, err := surfmatch.Match(ctx, nil, field, rel, 0.5, 0.5, 1)
		assert.ErrorIs(t, err, surfmatch.ErrUntrainedModel)

		var zero surfmatch.Model
		_, err = surfmatch.Match(ctx, &zero, field, rel, 0.5, 0.5, 1)
		assert.ErrorIs(t, err, surfmatch.ErrUntrainedModel)

		_, err = zero.MarshalBinary()
		assert.ErrorIs(t, err, surfmatch.ErrUntrainedModel)
	})

	t.Run("Matrix", func(t *testing.T) {
		m := pose.Identity().Matrix()
		m[0] = 2
		_, err := surfmatch.TransformMatrix(m, field)
		assert.ErrorIs(t, err, surfmatch.ErrInvalidInput)
	})
}

func TestCanceled(t *testing.T) {
	model, field := trainField(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := surfmatch.Train(ctx, field, rel)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MaxWorkers: 2})
	model, field := trainField(t, surfmatch.WithResourceController(rc))

	results, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 1, surfmatch.WithResourceController(rc))
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Zero(t, rc.MemoryUsage())

	// All slots are returned.
	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got, err := rc.AcquireWorkers(tctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	rc.ReleaseWorkers(got)

	tight := resource.NewController(resource.Config{MemoryLimitBytes: 1024})
	_, err = surfmatch.Train(ctx, field, rel, surfmatch.WithResourceController(tight))
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &surfmatch.BasicMetricsCollector{}
	model, field := trainField(t, surfmatch.WithMetricsCollector(metrics))

	_, err := surfmatch.Match(ctx, model, field, rel, 0.5, 0.5, 2, surfmatch.WithMetricsCollector(metrics))
	require.NoError(t, err)
	_, err = surfmatch.Match(ctx, model, field, rel, 0, 0.5, 2, surfmatch.WithMetricsCollector(metrics))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "m.ppf")
	require.NoError(t, model.Save(ctx, path))
	_, err = surfmatch.Load(ctx, path, surfmatch.WithMetricsCollector(metrics))
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.TrainCount)
	assert.Equal(t, int64(model.Points().Len()), stats.TrainPoints)
	assert.Equal(t, int64(2), stats.MatchCount)
	assert.Equal(t, int64(1), stats.MatchErrors)
	assert.Positive(t, stats.MatchResults)
	assert.Equal(t, int64(1), stats.SaveCount)
	assert.Positive(t, stats.SaveBytes)
	assert.Equal(t, int64(1), stats.LoadCount)
	assert.Zero(t, stats.LoadErrors)
}
