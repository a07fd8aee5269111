package testutil

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// UnitVec returns a uniformly distributed unit vector.
func (r *RNG) UnitVec() r3.Vec {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		v := r3.Vec{X: r.rand.NormFloat64(), Y: r.rand.NormFloat64(), Z: r.rand.NormFloat64()}
		if n := r3.Norm(v); n > 1e-6 {
			return r3.Scale(1/n, v)
		}
	}
}

// Pose returns a random rigid transform with a rotation angle up to
// maxAngle and translation components in [-maxShift, maxShift).
func (r *RNG) Pose(maxAngle, maxShift float64) pose.Transform {
	axis := r.UnitVec()
	angle := r.Float64() * maxAngle
	t := pose.FromAxisAngle(axis, angle)
	t.Translation = r3.Vec{
		X: (2*r.Float64() - 1) * maxShift,
		Y: (2*r.Float64() - 1) * maxShift,
		Z: (2*r.Float64() - 1) * maxShift,
	}
	return t
}

// Shuffle returns a shuffled copy of ps.
func (r *RNG) Shuffle(ps *pointcloud.PointSet) *pointcloud.PointSet {
	r.mu.Lock()
	perm := r.rand.Perm(ps.Len())
	r.mu.Unlock()
	return ps.Subset(perm)
}

// Jitter displaces every position by up to noise along each axis. Normals
// are kept.
func (r *RNG) Jitter(ps *pointcloud.PointSet, noise float64) *pointcloud.PointSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ps.Map(func(p pointcloud.Point) pointcloud.Point {
		p.Position = r3.Add(p.Position, r3.Vec{
			X: (2*r.rand.Float64() - 1) * noise,
			Y: (2*r.rand.Float64() - 1) * noise,
			Z: (2*r.rand.Float64() - 1) * noise,
		})
		return p
	})
}

// CubeCorners returns the 8 corners of an axis-aligned cube with edge side
// centred at the origin. Normals point outward along the diagonals.
func CubeCorners(side float64) *pointcloud.PointSet {
	h := side / 2
	points := make([]pointcloud.Point, 0, 8)
	for _, x := range []float64{-h, h} {
		for _, y := range []float64{-h, h} {
			for _, z := range []float64{-h, h} {
				c := r3.Vec{X: x, Y: y, Z: z}
				points = append(points, pointcloud.Point{Position: c, Normal: r3.Unit(c)})
			}
		}
	}
	return must(pointcloud.New(points))
}

// HeightField samples z = 0.3 sin(1.3x) + 0.2 cos(2.1y+0.5) + 0.1xy on an
// n x n grid over [-extent/2, extent/2]^2 with analytic upward normals. The
// surface has no rotational symmetry.
func HeightField(n int, extent float64) *pointcloud.PointSet {
	points := make([]pointcloud.Point, 0, n*n)
	step := extent / float64(n-1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := -extent/2 + float64(i)*step
			y := -extent/2 + float64(j)*step
			z := 0.3*math.Sin(1.3*x) + 0.2*math.Cos(2.1*y+0.5) + 0.1*x*y
			fx := 0.39*math.Cos(1.3*x) + 0.1*y
			fy := -0.42*math.Sin(2.1*y+0.5) + 0.1*x
			points = append(points, pointcloud.Point{
				Position: r3.Vec{X: x, Y: y, Z: z},
				Normal:   r3.Unit(r3.Vec{X: -fx, Y: -fy, Z: 1}),
			})
		}
	}
	return must(pointcloud.New(points))
}

// Sphere returns n points on a Fibonacci sphere of the given radius with
// outward normals.
func Sphere(n int, radius float64) *pointcloud.PointSet {
	golden := math.Pi * (3 - math.Sqrt(5))
	points := make([]pointcloud.Point, n)
	for i := range points {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		u := r3.Vec{X: r * math.Cos(theta), Y: y, Z: r * math.Sin(theta)}
		points[i] = pointcloud.Point{Position: r3.Scale(radius, u), Normal: u}
	}
	return must(pointcloud.New(points))
}

// Concat joins point sets in order.
func Concat(sets ...*pointcloud.PointSet) *pointcloud.PointSet {
	var points []pointcloud.Point
	for _, s := range sets {
		points = append(points, s.Points()...)
	}
	return must(pointcloud.New(points))
}

// PoseError returns the geodesic rotation error in radians and the
// translation error between want and got.
func PoseError(want, got pose.Transform) (rotation, translation float64) {
	return pose.RotationAngle(want.Rotation, got.Rotation),
		r3.Norm(r3.Sub(want.Translation, got.Translation))
}

func must(ps *pointcloud.PointSet, err error) *pointcloud.PointSet {
	if err != nil {
		panic(err)
	}
	return ps
}
