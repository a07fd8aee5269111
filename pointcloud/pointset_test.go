package pointcloud

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var up = r3.Vec{Z: 1}

func gridPoints(n int, spacing float64) []Point {
	points := make([]Point, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			points = append(points, Point{
				Position: r3.Vec{X: float64(i) * spacing, Y: float64(j) * spacing},
				Normal:   up,
			})
		}
	}
	return points
}

func TestNew(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		ps, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, ps.Len())
		assert.Equal(t, 0.0, ps.Diameter())
	})

	t.Run("RenormalizesNearUnitNormals", func(t *testing.T) {
		ps, err := New([]Point{{Normal: r3.Vec{Z: 1.0005}}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r3.Norm(ps.At(0).Normal), 1e-12)
	})

	t.Run("RejectsZeroNormal", func(t *testing.T) {
		_, err := New([]Point{{Normal: up}, {}})
		require.ErrorIs(t, err, ErrInvalidPoint)

		var ipe *InvalidPointError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, 1, ipe.Index)
	})

	t.Run("RejectsNonUnitNormal", func(t *testing.T) {
		_, err := New([]Point{{Normal: r3.Vec{X: 2}}})
		assert.ErrorIs(t, err, ErrInvalidPoint)
	})

	t.Run("RejectsNaN", func(t *testing.T) {
		_, err := New([]Point{{Position: r3.Vec{X: math.NaN()}, Normal: up}})
		assert.ErrorIs(t, err, ErrInvalidPoint)
	})

	t.Run("CopiesInput", func(t *testing.T) {
		in := []Point{{Normal: up}}
		ps, err := New(in)
		require.NoError(t, err)
		in[0].Position.X = 42
		assert.Equal(t, 0.0, ps.At(0).Position.X)
	})
}

func TestBoundsAndDiameter(t *testing.T) {
	ps, err := New(gridPoints(4, 1))
	require.NoError(t, err)

	lo, hi := ps.Bounds()
	assert.Equal(t, r3.Vec{}, lo)
	assert.Equal(t, r3.Vec{X: 3, Y: 3}, hi)
	assert.InDelta(t, 3*math.Sqrt2, ps.Diameter(), 1e-12)
	assert.Equal(t, r3.Vec{X: 1.5, Y: 1.5}, ps.Centroid())
}

func TestNearest(t *testing.T) {
	ps, err := New(gridPoints(10, 1))
	require.NoError(t, err)

	idx, d, ok := ps.Nearest(r3.Vec{X: 3.1, Y: 4.2, Z: 0})
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 3, Y: 4}, ps.At(idx).Position)
	assert.InDelta(t, math.Hypot(0.1, 0.2), d, 1e-12)

	empty, err := New(nil)
	require.NoError(t, err)
	_, _, ok = empty.Nearest(r3.Vec{})
	assert.False(t, ok)
}

func TestRadius(t *testing.T) {
	ps, err := New(gridPoints(10, 1))
	require.NoError(t, err)

	q := r3.Vec{X: 5, Y: 5}
	got := ps.Radius(q, 1.0)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}

	// Brute force agreement.
	for _, r := range []float64{0.5, 1.5, 2.3} {
		var want []int
		for i := 0; i < ps.Len(); i++ {
			if r3.Norm(r3.Sub(ps.At(i).Position, q)) <= r {
				want = append(want, i)
			}
		}
		assert.Equal(t, want, ps.Radius(q, r), "radius %v", r)
	}

	assert.True(t, ps.Within(r3.Vec{X: 0.2}, 0.25))
	assert.False(t, ps.Within(r3.Vec{X: 0.5, Y: 0.5, Z: 3}, 1))
}

func TestRecords(t *testing.T) {
	records := []float64{
		1, 2, 3, 0, 0, 1,
		4, 5, 6, 1, 0, 0,
	}
	ps, err := FromRecords(records)
	require.NoError(t, err)
	require.Equal(t, 2, ps.Len())
	assert.Equal(t, records, ps.Records())

	_, err = FromRecords(records[:5])
	assert.ErrorIs(t, err, ErrInvalidPoint)

	// Normalized normals survive a second pass bit for bit.
	skew, err := New([]Point{{Normal: r3.Vec{X: 0.3, Y: -0.7, Z: 0.648}}})
	require.NoError(t, err)
	again, err := FromRecords(skew.Records())
	require.NoError(t, err)
	assert.Equal(t, skew.Records(), again.Records())
}

func TestOrientTowards(t *testing.T) {
	ps, err := New([]Point{
		{Position: r3.Vec{}, Normal: r3.Vec{Z: -1}},
		{Position: r3.Vec{X: 1}, Normal: r3.Vec{Z: 1}},
	})
	require.NoError(t, err)

	oriented := ps.OrientTowards(r3.Vec{Z: 10})
	assert.Equal(t, r3.Vec{Z: 1}, oriented.At(0).Normal)
	assert.Equal(t, r3.Vec{Z: 1}, oriented.At(1).Normal)
	// The source set is untouched.
	assert.Equal(t, r3.Vec{Z: -1}, ps.At(0).Normal)
}
