package pointcloud

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Nearest returns the index of the point closest to q and its distance.
// ok is false for an empty set.
func (ps *PointSet) Nearest(q r3.Vec) (index int, distance float64, ok bool) {
	tree := ps.kdTree()
	if tree == nil {
		return 0, math.Inf(1), false
	}
	c, d2 := tree.Nearest(kdPoint{pos: q, idx: -1})
	p, isPoint := c.(kdPoint)
	if !isPoint {
		return 0, math.Inf(1), false
	}
	return p.idx, math.Sqrt(d2), true
}

// Radius returns the indices of all points within distance r of q, sorted
// ascending.
func (ps *PointSet) Radius(q r3.Vec, r float64) []int {
	tree := ps.kdTree()
	if tree == nil || r < 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	tree.NearestSet(keep, kdPoint{pos: q, idx: -1})

	indices := make([]int, 0, keep.Heap.Len())
	for _, c := range keep.Heap {
		// The keeper is seeded with a sentinel that carries no Comparable.
		p, isPoint := c.Comparable.(kdPoint)
		if !isPoint {
			continue
		}
		indices = append(indices, p.idx)
	}
	sort.Ints(indices)
	return indices
}

// Within reports whether any point lies within distance r of q.
func (ps *PointSet) Within(q r3.Vec, r float64) bool {
	_, d, ok := ps.Nearest(q)
	return ok && d <= r
}

func (ps *PointSet) kdTree() *kdtree.Tree {
	if ps.Len() == 0 {
		return nil
	}
	ps.treeOnce.Do(func() {
		pts := make(kdPoints, len(ps.points))
		for i, p := range ps.points {
			pts[i] = kdPoint{pos: p.Position, idx: i}
		}
		ps.tree = kdtree.New(pts, false)
	})
	return ps.tree
}

// kdPoint satisfies kdtree.Comparable and remembers its index in the set.
type kdPoint struct {
	pos r3.Vec
	idx int
}

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	return coord(p.pos, d) - coord(q.pos, d)
}

func (p kdPoint) Dims() int { return 3 }

// Distance returns the squared euclidean distance, as kdtree expects.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	return r3.Norm2(r3.Sub(p.pos, q.pos))
}

// kdPoints satisfies kdtree.Interface.
type kdPoints []kdPoint

func (ps kdPoints) Index(i int) kdtree.Comparable { return ps[i] }

func (ps kdPoints) Len() int { return len(ps) }

func (ps kdPoints) Slice(start, end int) kdtree.Interface { return ps[start:end] }

func (ps kdPoints) Pivot(d kdtree.Dim) int {
	return kdPlane{kdPoints: ps, Dim: d}.Pivot()
}

// kdPlane sorts points along a single dimension for median selection.
type kdPlane struct {
	kdtree.Dim
	kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return coord(p.kdPoints[i].pos, p.Dim) < coord(p.kdPoints[j].pos, p.Dim)
}

func (p kdPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}

func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}

func coord(v r3.Vec, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	default:
		panic("pointcloud: illegal dimension")
	}
}
