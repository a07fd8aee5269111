package hashtable

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/ppf"
)

var params = ppf.Params{DistanceStep: 0.1, AngleBins: ppf.DefaultAngleBins}

func randomSet(t *testing.T, n int) *pointcloud.PointSet {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(n)))
	points := make([]pointcloud.Point, n)
	for i := range points {
		normal := r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
		points[i] = pointcloud.Point{
			Position: r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()},
			Normal:   normal,
		}
	}
	ps, err := pointcloud.New(points)
	require.NoError(t, err)
	return ps
}

func exported(tbl *Table) map[uint64][]Entry {
	out := make(map[uint64][]Entry, tbl.Len())
	for _, k := range tbl.Keys() {
		out[k] = tbl.Lookup(k)
	}
	return out
}

func TestBuildAllPairs(t *testing.T) {
	ps := randomSet(t, 40)

	tbl, stats, err := Build(context.Background(), ps, params, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 40*39, stats.Pairs)
	assert.Zero(t, stats.Degenerate)
	assert.Equal(t, 40*39, tbl.NumEntries())
	assert.Equal(t, 39, tbl.MaxRef())

	// Every pair is found under its own key.
	for i := 0; i < ps.Len(); i++ {
		for j := 0; j < ps.Len(); j++ {
			if i == j {
				continue
			}
			f, ok := ppf.Compute(ps.At(i), ps.At(j), params)
			require.True(t, ok)
			assert.Contains(t, tbl.Lookup(f.Key()), Entry{Ref: uint32(i), Alpha: float32(f.Alpha)})
		}
	}
}

func TestBuildDeterministicAcrossWorkers(t *testing.T) {
	ps := randomSet(t, 60)

	base, _, err := Build(context.Background(), ps, params, Options{Workers: 1, MaxPairsPerPoint: 10, Seed: 3})
	require.NoError(t, err)

	for _, w := range []int{2, 7, 0} {
		other, _, err := Build(context.Background(), ps, params, Options{Workers: w, MaxPairsPerPoint: 10, Seed: 3})
		require.NoError(t, err)
		if diff := cmp.Diff(exported(base), exported(other)); diff != "" {
			t.Fatalf("workers=%d: buckets differ (-want +got):\n%s", w, diff)
		}
	}
}

func TestBuildSubsample(t *testing.T) {
	ps := randomSet(t, 50)

	tbl, stats, err := Build(context.Background(), ps, params, Options{MaxPairsPerPoint: 5, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 50*5, stats.Pairs)
	assert.Equal(t, 50*5, tbl.NumEntries())

	other, _, err := Build(context.Background(), ps, params, Options{MaxPairsPerPoint: 5, Seed: 2})
	require.NoError(t, err)
	assert.NotEqual(t, exported(tbl), exported(other))
}

func TestBuildSkipsDegeneratePairs(t *testing.T) {
	p := pointcloud.Point{Position: r3.Vec{X: 1}, Normal: r3.Vec{Z: 1}}
	q := pointcloud.Point{Position: r3.Vec{Y: 1}, Normal: r3.Vec{Z: 1}}
	ps, err := pointcloud.New([]pointcloud.Point{p, p, q})
	require.NoError(t, err)

	tbl, stats, err := Build(context.Background(), ps, params, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Degenerate)
	assert.Equal(t, 4, tbl.NumEntries())
}

func TestBuildInvalidParams(t *testing.T) {
	_, _, err := Build(context.Background(), randomSet(t, 3), ppf.Params{}, Options{})
	assert.ErrorIs(t, err, ppf.ErrInvalidParams)
}

func TestBuildCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Build(ctx, randomSet(t, 20), params, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromBuckets(t *testing.T) {
	tbl, _, err := Build(context.Background(), randomSet(t, 20), params, Options{})
	require.NoError(t, err)

	clone := FromBuckets(exported(tbl))
	assert.Equal(t, tbl.Len(), clone.Len())
	assert.Equal(t, tbl.NumEntries(), clone.NumEntries())
	assert.Equal(t, tbl.Keys(), clone.Keys())
}

func TestEmptyTable(t *testing.T) {
	tbl := FromBuckets(map[uint64][]Entry{})
	assert.Zero(t, tbl.Len())
	assert.Empty(t, tbl.Keys())
	assert.Equal(t, -1, tbl.MaxRef())
	assert.Nil(t, tbl.Lookup(42))
}
