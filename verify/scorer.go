package verify

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
)

// Scorer measures how well a pose places the model onto the scene. It is
// safe for concurrent use.
type Scorer struct {
	model         *pointcloud.PointSet
	scene         *pointcloud.PointSet
	scoreDistance float64
	cosNormal     float64 // cos(NormalAngle), or -2 when disabled
}

// NewScorer returns a scorer of model poses against scene.
func NewScorer(model, scene *pointcloud.PointSet, scoreDistance, normalAngle float64) *Scorer {
	cosNormal := -2.0
	if normalAngle > 0 {
		cosNormal = math.Cos(normalAngle)
	}
	return &Scorer{model: model, scene: scene, scoreDistance: scoreDistance, cosNormal: cosNormal}
}

// Score returns the explained fraction of model points and the set of scene
// indices that explain them.
func (s *Scorer) Score(t pose.Transform) (float64, *roaring.Bitmap) {
	explained := roaring.New()
	n := s.model.Len()
	if n == 0 {
		return 0, explained
	}
	hits := 0
	for i := 0; i < n; i++ {
		p := s.model.At(i)
		q := t.Apply(p.Position)
		idx, d, ok := s.scene.Nearest(q)
		if !ok || d > s.scoreDistance {
			continue
		}
		if s.cosNormal > -2 && r3.Dot(t.Rotate(p.Normal), s.scene.At(idx).Normal) < s.cosNormal {
			continue
		}
		hits++
		explained.Add(uint32(idx))
	}
	return float64(hits) / float64(n), explained
}

// Refine runs up to iterations rounds of point-to-point ICP starting at t.
// Correspondences farther than maxDistance are ignored. Refinement stops
// early when fewer than three correspondences remain.
func (s *Scorer) Refine(t pose.Transform, iterations int, maxDistance float64) pose.Transform {
	for it := 0; it < iterations; it++ {
		var src, dst []r3.Vec
		for i := 0; i < s.model.Len(); i++ {
			q := t.Apply(s.model.At(i).Position)
			idx, d, ok := s.scene.Nearest(q)
			if !ok || d > maxDistance {
				continue
			}
			src = append(src, q)
			dst = append(dst, s.scene.At(idx).Position)
		}
		if len(src) < 3 {
			return t
		}
		delta, ok := kabsch(src, dst)
		if !ok {
			return t
		}
		t = t.Compose(delta)
	}
	return t
}

// kabsch returns the rigid transform minimizing sum |R*src+t - dst|^2.
func kabsch(src, dst []r3.Vec) (pose.Transform, bool) {
	var cs, cd r3.Vec
	for i := range src {
		cs = r3.Add(cs, src[i])
		cd = r3.Add(cd, dst[i])
	}
	inv := 1 / float64(len(src))
	cs, cd = r3.Scale(inv, cs), r3.Scale(inv, cd)

	h := mat.NewDense(3, 3, nil)
	for i := range src {
		a := r3.Sub(src[i], cs)
		b := r3.Sub(dst[i], cd)
		av := [3]float64{a.X, a.Y, a.Z}
		bv := [3]float64{b.X, b.Y, b.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+av[r]*bv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return pose.Transform{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V * diag(1, 1, det(V*U^T)) * U^T
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := mat.NewDiagDense(3, []float64{1, 1, math.Copysign(1, mat.Det(&vut))})
	var vd, rot mat.Dense
	vd.Mul(&v, d)
	rot.Mul(&vd, u.T())

	var m [16]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r*4+c] = rot.At(r, c)
		}
	}
	m[15] = 1
	rc := r3.Vec{
		X: m[0]*cs.X + m[1]*cs.Y + m[2]*cs.Z,
		Y: m[4]*cs.X + m[5]*cs.Y + m[6]*cs.Z,
		Z: m[8]*cs.X + m[9]*cs.Y + m[10]*cs.Z,
	}
	tr := r3.Sub(cd, rc)
	m[3], m[7], m[11] = tr.X, tr.Y, tr.Z

	out, err := pose.FromMatrix(m)
	if err != nil {
		return pose.Transform{}, false
	}
	return out, true
}
