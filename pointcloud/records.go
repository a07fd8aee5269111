package pointcloud

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// RecordSize is the number of float64 values per point in a flat record
// slice: x, y, z, nx, ny, nz.
const RecordSize = 6

// FromRecords builds a PointSet from flat (x,y,z,nx,ny,nz) records.
func FromRecords(records []float64) (*PointSet, error) {
	if len(records)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: record slice length %d is not a multiple of %d", ErrInvalidPoint, len(records), RecordSize)
	}
	points := make([]Point, len(records)/RecordSize)
	for i := range points {
		r := records[i*RecordSize : (i+1)*RecordSize]
		points[i] = Point{
			Position: r3.Vec{X: r[0], Y: r[1], Z: r[2]},
			Normal:   r3.Vec{X: r[3], Y: r[4], Z: r[5]},
		}
	}
	return New(points)
}

// Records flattens the set into (x,y,z,nx,ny,nz) records.
func (ps *PointSet) Records() []float64 {
	out := make([]float64, 0, ps.Len()*RecordSize)
	for _, p := range ps.points {
		out = append(out,
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Normal.X, p.Normal.Y, p.Normal.Z,
		)
	}
	return out
}
