package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidTransform is returned when a matrix is not a proper rigid transform.
var ErrInvalidTransform = errors.New("invalid rigid transform")

// MatrixTolerance bounds the deviation from orthonormality accepted by FromMatrix.
const MatrixTolerance = 1e-6

// Transform is a rigid transform. Rotation is always a unit quaternion.
type Transform struct {
	Rotation    quat.Number
	Translation r3.Vec
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: quat.Number{Real: 1}}
}

// FromAxisAngle returns a pure rotation of angle radians about axis.
func FromAxisAngle(axis r3.Vec, angle float64) Transform {
	return Transform{Rotation: AxisAngle(axis, angle)}
}

// AxisAngle returns the unit quaternion rotating angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(angle/2) / n
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Rotate rotates v by the transform's rotation.
func (t Transform) Rotate(v r3.Vec) r3.Vec {
	return rotate(t.Rotation, v)
}

// Apply maps p: R*p + t.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(rotate(t.Rotation, p), t.Translation)
}

// Compose returns the transform that applies t first and then next.
func (t Transform) Compose(next Transform) Transform {
	return Transform{
		Rotation:    normalize(quat.Mul(next.Rotation, t.Rotation)),
		Translation: next.Apply(t.Translation),
	}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() Transform {
	inv := quat.Conj(t.Rotation)
	return Transform{
		Rotation:    inv,
		Translation: r3.Scale(-1, rotate(inv, t.Translation)),
	}
}

// Matrix returns the row-major 4x4 homogeneous matrix.
func (t Transform) Matrix() [16]float64 {
	q := t.Rotation
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [16]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), t.Translation.X,
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), t.Translation.Y,
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), t.Translation.Z,
		0, 0, 0, 1,
	}
}

// FromMatrix converts a row-major 4x4 matrix. The upper 3x3 block must be
// orthonormal with determinant 1 and the last row must be 0 0 0 1.
func FromMatrix(m [16]float64) (Transform, error) {
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Transform{}, fmt.Errorf("%w: element %d is not finite", ErrInvalidTransform, i)
		}
	}
	if m[12] != 0 || m[13] != 0 || m[14] != 0 || m[15] != 1 {
		return Transform{}, fmt.Errorf("%w: last row must be 0 0 0 1", ErrInvalidTransform)
	}
	rows := [3]r3.Vec{
		{X: m[0], Y: m[1], Z: m[2]},
		{X: m[4], Y: m[5], Z: m[6]},
		{X: m[8], Y: m[9], Z: m[10]},
	}
	for i := range rows {
		for j := i; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(r3.Dot(rows[i], rows[j])-want) > MatrixTolerance {
				return Transform{}, fmt.Errorf("%w: rotation block is not orthonormal", ErrInvalidTransform)
			}
		}
	}
	if det := r3.Dot(rows[0], r3.Cross(rows[1], rows[2])); math.Abs(det-1) > MatrixTolerance {
		return Transform{}, fmt.Errorf("%w: determinant %g", ErrInvalidTransform, det)
	}

	return Transform{
		Rotation:    quatFromRotation(m),
		Translation: r3.Vec{X: m[3], Y: m[7], Z: m[11]},
	}, nil
}

// RotationAngle returns the geodesic angle in [0, pi] between two rotations.
func RotationAngle(a, b quat.Number) float64 {
	d := math.Abs(dot(a, b))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

func (t Transform) String() string {
	return fmt.Sprintf("pose{q=(%.6f %.6f %.6f %.6f) t=(%.6f %.6f %.6f)}",
		t.Rotation.Real, t.Rotation.Imag, t.Rotation.Jmag, t.Rotation.Kmag,
		t.Translation.X, t.Translation.Y, t.Translation.Z)
}

// quatFromRotation uses Shepperd's method on the upper 3x3 block.
func quatFromRotation(m [16]float64) quat.Number {
	m00, m01, m02 := m[0], m[1], m[2]
	m10, m11, m12 := m[4], m[5], m[6]
	m20, m21, m22 := m[8], m[9], m[10]

	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return normalize(q)
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	u := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	t := r3.Scale(2, r3.Cross(u, v))
	return r3.Add(r3.Add(v, r3.Scale(q.Real, t)), r3.Cross(u, t))
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}
