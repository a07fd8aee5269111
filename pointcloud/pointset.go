package pointcloud

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// NormalTolerance is the maximum deviation of a normal's length from 1 that
// is accepted (and then renormalized) by New.
const NormalTolerance = 1e-3

// unitEpsilon bounds the length error of a normal that is left as is.
const unitEpsilon = 1e-12

// Point is an oriented 3D point.
type Point struct {
	Position r3.Vec
	Normal   r3.Vec
}

// PointSet is an ordered, immutable collection of oriented points.
type PointSet struct {
	points []Point
	min    r3.Vec
	max    r3.Vec

	treeOnce sync.Once
	tree     *kdtree.Tree
}

// New validates and copies points into a new PointSet.
//
// Every position must be finite and every normal must be finite and unit
// length within NormalTolerance. Accepted normals are renormalized unless
// they are unit length to rounding, so points read back from Records are
// unchanged. An empty slice yields an empty PointSet.
func New(points []Point) (*PointSet, error) {
	owned := make([]Point, len(points))
	for i, p := range points {
		if !finite(p.Position) {
			return nil, &InvalidPointError{Index: i, Reason: "position is not finite"}
		}
		if !finite(p.Normal) {
			return nil, &InvalidPointError{Index: i, Reason: "normal is not finite"}
		}
		n := r3.Norm(p.Normal)
		if n == 0 {
			return nil, &InvalidPointError{Index: i, Reason: "normal is zero"}
		}
		if math.Abs(n-1) > NormalTolerance {
			return nil, &InvalidPointError{Index: i, Reason: "normal is not unit length"}
		}
		normal := p.Normal
		if math.Abs(n-1) > unitEpsilon {
			normal = r3.Scale(1/n, normal)
		}
		owned[i] = Point{Position: p.Position, Normal: normal}
	}
	return newTrusted(owned), nil
}

// newTrusted wraps points that are already validated. The slice is owned by
// the returned PointSet.
func newTrusted(points []Point) *PointSet {
	ps := &PointSet{points: points}
	if len(points) > 0 {
		ps.min = points[0].Position
		ps.max = points[0].Position
		for _, p := range points[1:] {
			ps.min = r3.Vec{X: math.Min(ps.min.X, p.Position.X), Y: math.Min(ps.min.Y, p.Position.Y), Z: math.Min(ps.min.Z, p.Position.Z)}
			ps.max = r3.Vec{X: math.Max(ps.max.X, p.Position.X), Y: math.Max(ps.max.Y, p.Position.Y), Z: math.Max(ps.max.Z, p.Position.Z)}
		}
	}
	return ps
}

// Len returns the number of points.
func (ps *PointSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.points)
}

// At returns the i-th point.
func (ps *PointSet) At(i int) Point { return ps.points[i] }

// Points returns a copy of all points.
func (ps *PointSet) Points() []Point {
	out := make([]Point, len(ps.points))
	copy(out, ps.points)
	return out
}

// Bounds returns the axis-aligned bounding box. It is the zero box for an
// empty set.
func (ps *PointSet) Bounds() (lo, hi r3.Vec) { return ps.min, ps.max }

// Diameter returns the length of the bounding box diagonal.
func (ps *PointSet) Diameter() float64 {
	if ps.Len() == 0 {
		return 0
	}
	return r3.Norm(r3.Sub(ps.max, ps.min))
}

// Centroid returns the mean position.
func (ps *PointSet) Centroid() r3.Vec {
	var c r3.Vec
	if ps.Len() == 0 {
		return c
	}
	for _, p := range ps.points {
		c = r3.Add(c, p.Position)
	}
	return r3.Scale(1/float64(len(ps.points)), c)
}

// Map returns a new PointSet with fn applied to every point. fn must keep
// normals unit length.
func (ps *PointSet) Map(fn func(Point) Point) *PointSet {
	out := make([]Point, len(ps.points))
	for i, p := range ps.points {
		out[i] = fn(p)
	}
	return newTrusted(out)
}

// Subset returns a new PointSet holding the points at the given indices.
func (ps *PointSet) Subset(indices []int) *PointSet {
	out := make([]Point, len(indices))
	for i, idx := range indices {
		out[i] = ps.points[idx]
	}
	return newTrusted(out)
}

// OrientTowards returns a copy whose normals all face viewpoint. Normals
// pointing away from the viewpoint are flipped.
func (ps *PointSet) OrientTowards(viewpoint r3.Vec) *PointSet {
	return ps.Map(func(p Point) Point {
		if r3.Dot(p.Normal, r3.Sub(viewpoint, p.Position)) < 0 {
			p.Normal = r3.Scale(-1, p.Normal)
		}
		return p
	})
}

func finite(v r3.Vec) bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
