package sampling

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
)

// ErrInvalidDistance is returned for a non-positive or out-of-range sampling
// distance.
var ErrInvalidDistance = errors.New("invalid sampling distance")

// Distance converts a relative sampling distance into an absolute one.
// rel must lie in (0, 1] and diameter must be positive.
func Distance(diameter, rel float64) (float64, error) {
	if !(rel > 0 && rel <= 1) {
		return 0, fmt.Errorf("%w: relative distance %v not in (0, 1]", ErrInvalidDistance, rel)
	}
	if !(diameter > 0) || math.IsInf(diameter, 0) {
		return 0, fmt.Errorf("%w: diameter %v must be positive", ErrInvalidDistance, diameter)
	}
	return diameter * rel, nil
}

type cellKey struct {
	x, y, z int64
}

func (k cellKey) less(o cellKey) bool {
	if k.x != o.x {
		return k.x < o.x
	}
	if k.y != o.y {
		return k.y < o.y
	}
	return k.z < o.z
}

type voxel struct {
	key     cellKey
	sum     r3.Vec
	members []int
}

// Downsample keeps one representative per occupied grid cell of size d.
//
// The representative is the member nearest to the cell's centroid, ties
// broken by the lexicographically smallest position. Representatives are
// then visited in cell order and dropped when an accepted point lies closer
// than d, so no two output points are closer than d. The result does not
// depend on input order.
func Downsample(ps *pointcloud.PointSet, d float64) (*pointcloud.PointSet, error) {
	if !(d > 0) || math.IsInf(d, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDistance, d)
	}
	if ps.Len() == 0 {
		return ps.Subset(nil), nil
	}

	cells := make(map[cellKey]*voxel)
	for i := 0; i < ps.Len(); i++ {
		p := ps.At(i).Position
		k := keyOf(p, d)
		v, ok := cells[k]
		if !ok {
			v = &voxel{key: k}
			cells[k] = v
		}
		v.sum = r3.Add(v.sum, p)
		v.members = append(v.members, i)
	}

	voxels := make([]*voxel, 0, len(cells))
	for _, v := range cells {
		voxels = append(voxels, v)
	}
	sort.Slice(voxels, func(i, j int) bool { return voxels[i].key.less(voxels[j].key) })

	accepted := make(map[cellKey][]r3.Vec, len(voxels))
	indices := make([]int, 0, len(voxels))
	for _, v := range voxels {
		idx := representative(ps, v)
		p := ps.At(idx).Position
		if tooClose(accepted, p, d) {
			continue
		}
		k := keyOf(p, d)
		accepted[k] = append(accepted[k], p)
		indices = append(indices, idx)
	}
	return ps.Subset(indices), nil
}

func representative(ps *pointcloud.PointSet, v *voxel) int {
	centroid := r3.Scale(1/float64(len(v.members)), v.sum)
	best := v.members[0]
	bestD := r3.Norm2(r3.Sub(ps.At(best).Position, centroid))
	for _, idx := range v.members[1:] {
		p := ps.At(idx).Position
		dist := r3.Norm2(r3.Sub(p, centroid))
		if dist < bestD || (dist == bestD && lexLess(p, ps.At(best).Position)) {
			best, bestD = idx, dist
		}
	}
	return best
}

// tooClose scans the 27 cells around p. Cells have edge d, so every point
// closer than d lies in one of them.
func tooClose(accepted map[cellKey][]r3.Vec, p r3.Vec, d float64) bool {
	k := keyOf(p, d)
	d2 := d * d
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, q := range accepted[cellKey{k.x + dx, k.y + dy, k.z + dz}] {
					if r3.Norm2(r3.Sub(p, q)) < d2 {
						return true
					}
				}
			}
		}
	}
	return false
}

func keyOf(p r3.Vec, d float64) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X / d)),
		y: int64(math.Floor(p.Y / d)),
		z: int64(math.Floor(p.Z / d)),
	}
}

func lexLess(a, b r3.Vec) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
