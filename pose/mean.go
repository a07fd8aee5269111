package pose

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
)

// Mean returns the weighted mean of transforms.
//
// Quaternions are flipped into the hemisphere of the first one before they
// are summed and renormalized, since q and -q encode the same rotation.
// Translations are averaged arithmetically. A nil weights slice means equal
// weights. Mean of an empty slice is the identity.
func Mean(transforms []Transform, weights []float64) Transform {
	if len(transforms) == 0 {
		return Identity()
	}
	ref := transforms[0].Rotation

	var (
		sumQ quat.Number
		sumT r3.Vec
		sumW float64
	)
	for i, t := range transforms {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		q := t.Rotation
		if dot(q, ref) < 0 {
			q = quat.Scale(-1, q)
		}
		sumQ = quat.Add(sumQ, quat.Scale(w, q))
		sumT = r3.Add(sumT, r3.Scale(w, t.Translation))
		sumW += w
	}
	if sumW <= 0 {
		return transforms[0]
	}
	return Transform{
		Rotation:    normalize(sumQ),
		Translation: r3.Scale(1/sumW, sumT),
	}
}

// ApplyToPointSet maps every position through t and rotates every normal.
func ApplyToPointSet(t Transform, ps *pointcloud.PointSet) *pointcloud.PointSet {
	return ps.Map(func(p pointcloud.Point) pointcloud.Point {
		return pointcloud.Point{
			Position: t.Apply(p.Position),
			Normal:   r3.Unit(t.Rotate(p.Normal)),
		}
	})
}
