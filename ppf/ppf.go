package ppf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
)

// DefaultAngleBins is the number of angle bins over a full turn.
const DefaultAngleBins = 30

// Epsilon is the smallest pair distance that is hashed.
const Epsilon = 1e-9

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid quantization parameters")

// Params are the quantization parameters shared by training and matching.
type Params struct {
	DistanceStep float64
	AngleBins    int
}

// AngleStep returns 2*pi / AngleBins.
func (p Params) AngleStep() float64 {
	return 2 * math.Pi / float64(p.AngleBins)
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if !(p.DistanceStep > 0) || math.IsInf(p.DistanceStep, 0) {
		return fmt.Errorf("%w: distance step %v", ErrInvalidParams, p.DistanceStep)
	}
	if p.AngleBins < 4 || p.AngleBins > math.MaxUint16 {
		return fmt.Errorf("%w: angle bins %d", ErrInvalidParams, p.AngleBins)
	}
	return nil
}

// maxAngleBucket is the bucket that covers pi.
func (p Params) maxAngleBucket() int {
	return (p.AngleBins+1)/2 - 1
}

// Descriptor is a quantized point pair feature.
type Descriptor struct {
	Distance uint16
	N1D      uint16
	N2D      uint16
	N1N2     uint16
}

// Key packs the descriptor into a hash key.
func (d Descriptor) Key() uint64 {
	return uint64(d.Distance)<<48 | uint64(d.N1D)<<32 | uint64(d.N2D)<<16 | uint64(d.N1N2)
}

// DescriptorFromKey reverses Key.
func DescriptorFromKey(k uint64) Descriptor {
	return Descriptor{
		Distance: uint16(k >> 48),
		N1D:      uint16(k >> 32),
		N2D:      uint16(k >> 16),
		N1N2:     uint16(k),
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("ppf(%d,%d,%d,%d)", d.Distance, d.N1D, d.N2D, d.N1N2)
}

// Feature is a descriptor plus the alignment angle of the pair.
type Feature struct {
	Descriptor
	Alpha float64
}

// Compute returns the feature of the ordered pair (p1, p2). ok is false when
// the points nearly coincide.
func Compute(p1, p2 pointcloud.Point, params Params) (Feature, bool) {
	return ComputeInFrame(Frame(p1), p1, p2, params)
}

// ComputeInFrame is Compute with the local frame of p1 precomputed.
func ComputeInFrame(frame pose.Transform, p1, p2 pointcloud.Point, params Params) (Feature, bool) {
	d := r3.Sub(p2.Position, p1.Position)
	dist := r3.Norm(d)
	if dist < Epsilon {
		return Feature{}, false
	}

	step := params.AngleStep()
	maxBucket := params.maxAngleBucket()
	return Feature{
		Descriptor: Descriptor{
			Distance: quantize(dist, params.DistanceStep, math.MaxUint16),
			N1D:      quantize(Angle(p1.Normal, d), step, maxBucket),
			N2D:      quantize(Angle(p2.Normal, d), step, maxBucket),
			N1N2:     quantize(Angle(p1.Normal, p2.Normal), step, maxBucket),
		},
		Alpha: Alpha(frame, p2.Position),
	}, true
}

// Frame returns the local frame of p: the rigid transform moving p to the
// origin and rotating its normal onto +x.
func Frame(p pointcloud.Point) pose.Transform {
	x := r3.Vec{X: 1}
	n := p.Normal

	var rot pose.Transform
	axis := r3.Cross(n, x)
	if s := r3.Norm(axis); s < 1e-12 {
		if n.X < 0 {
			rot = pose.FromAxisAngle(r3.Vec{Y: 1}, math.Pi)
		} else {
			rot = pose.Identity()
		}
	} else {
		rot = pose.FromAxisAngle(axis, math.Atan2(s, r3.Dot(n, x)))
	}
	rot.Translation = r3.Scale(-1, rot.Rotate(p.Position))
	return rot
}

// Alpha returns atan2(-z, y) of q mapped into frame. The result lies in
// [-pi, pi].
func Alpha(frame pose.Transform, q r3.Vec) float64 {
	v := frame.Apply(q)
	return math.Atan2(-v.Z, v.Y)
}

// Angle returns the angle between a and b in [0, pi].
func Angle(a, b r3.Vec) float64 {
	return math.Atan2(r3.Norm(r3.Cross(a, b)), r3.Dot(a, b))
}

// Wrap maps an angle into [-pi, pi).
func Wrap(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func quantize(v, step float64, maxBucket int) uint16 {
	b := int(math.Floor(v / step))
	if b > maxBucket {
		b = maxBucket
	}
	if b < 0 {
		b = 0
	}
	return uint16(b)
}

// Align returns the pose mapping model space into scene space given the local
// frames of a model and a scene reference point and the rotation alpha about
// +x between them: scene^-1 * Rx(alpha) * model.
func Align(model, scene pose.Transform, alpha float64) pose.Transform {
	return model.Compose(pose.FromAxisAngle(r3.Vec{X: 1}, alpha)).Compose(scene.Inverse())
}
