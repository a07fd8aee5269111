package surfmatch_bench_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/hupe1980/surfmatch"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/testutil"
)

func formatCount(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%dk", n/1000)
	}
	return fmt.Sprintf("%d", n)
}

func formatFraction(f float64) string {
	return fmt.Sprintf("%g", f)
}

func trainField(b *testing.B, n int, rel float64) (*surfmatch.Model, *pointcloud.PointSet) {
	b.Helper()
	field := testutil.HeightField(n, 3)
	model, err := surfmatch.Train(context.Background(), field, rel)
	if err != nil {
		b.Fatal(err)
	}
	return model, field
}

type scene struct {
	points *pointcloud.PointSet
	truth  pose.Transform
}

// scenes places object at random poses next to a distractor sphere.
func scenes(object *pointcloud.PointSet, count int, seed int64) []scene {
	rng := testutil.NewRNG(seed)
	out := make([]scene, count)
	for i := range out {
		truth := rng.Pose(math.Pi, 3)
		out[i] = scene{
			points: testutil.Concat(surfmatch.Transform(truth, object), testutil.Sphere(150, 1.5)),
			truth:  truth,
		}
	}
	return out
}

// found reports whether a result lies within the pose tolerances of truth.
func found(results []surfmatch.Result, truth pose.Transform, maxRotation, maxTranslation float64) bool {
	for _, r := range results {
		rot, trans := testutil.PoseError(truth, r.Pose)
		if rot <= maxRotation && trans <= maxTranslation {
			return true
		}
	}
	return false
}
