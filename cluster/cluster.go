package cluster

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pose"
)

// ErrInvalidTolerance is returned for non-positive tolerances.
var ErrInvalidTolerance = errors.New("invalid cluster tolerance")

// Hypothesis is a weighted pose.
type Hypothesis struct {
	Pose   pose.Transform
	Weight float64
}

// Cluster is a group of hypotheses represented by their weighted mean pose.
type Cluster struct {
	Pose    pose.Transform
	Weight  float64 // sum of member weights
	Members int
	Seed    int // input index of the seeding hypothesis
}

// Config holds the proximity tolerances.
type Config struct {
	DistanceTolerance float64
	AngleTolerance    float64

	// Centre is the model point whose mapped positions are compared, usually
	// the model centroid.
	Centre r3.Vec
}

// Validate checks the tolerances.
func (c Config) Validate() error {
	if !(c.DistanceTolerance > 0) {
		return fmt.Errorf("%w: distance %v", ErrInvalidTolerance, c.DistanceTolerance)
	}
	if !(c.AngleTolerance > 0) {
		return fmt.Errorf("%w: angle %v", ErrInvalidTolerance, c.AngleTolerance)
	}
	return nil
}

// Close reports whether a and b are within tolerance of each other.
func (c Config) Close(a, b pose.Transform) bool {
	if r3.Norm(r3.Sub(a.Apply(c.Centre), b.Apply(c.Centre))) > c.DistanceTolerance {
		return false
	}
	return pose.RotationAngle(a.Rotation, b.Rotation) <= c.AngleTolerance
}

// Group clusters hyps. The result is ordered by descending weight; clusters
// of equal weight keep seed order.
func Group(hyps []Hypothesis, cfg Config) ([]Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	order := make([]int, len(hyps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return hyps[order[i]].Weight > hyps[order[j]].Weight
	})

	assigned := make([]bool, len(hyps))
	var (
		out     []Cluster
		poses   []pose.Transform
		weights []float64
	)
	for oi, seed := range order {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		seedPose := hyps[seed].Pose

		poses = append(poses[:0], seedPose)
		weights = append(weights[:0], hyps[seed].Weight)
		for _, idx := range order[oi+1:] {
			if assigned[idx] || !cfg.Close(seedPose, hyps[idx].Pose) {
				continue
			}
			assigned[idx] = true
			poses = append(poses, hyps[idx].Pose)
			weights = append(weights, hyps[idx].Weight)
		}

		var total float64
		for _, w := range weights {
			total += w
		}
		out = append(out, Cluster{
			Pose:    pose.Mean(poses, weights),
			Weight:  total,
			Members: len(poses),
			Seed:    seed,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}
