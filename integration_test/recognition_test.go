package integration_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/surfmatch"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/testutil"
)

const rel = 0.05

func train(t *testing.T) (*surfmatch.Model, *pointcloud.PointSet) {
	t.Helper()
	field := testutil.HeightField(20, 3)
	model, err := surfmatch.Train(context.Background(), field, rel)
	require.NoError(t, err)
	return model, field
}

func located(model *surfmatch.Model, results []surfmatch.Result, truth pose.Transform) bool {
	for _, r := range results {
		rot, trans := testutil.PoseError(truth, r.Pose)
		if rot < 2*model.Params().AngleStep() && trans < 3*model.Params().DistanceStep {
			return true
		}
	}
	return false
}

func TestRecognitionInClutter(t *testing.T) {
	model, field := train(t)
	rng := testutil.NewRNG(11)

	const trials = 8
	var hits int
	for i := 0; i < trials; i++ {
		truth := rng.Pose(math.Pi, 4)
		scene := testutil.Concat(
			surfmatch.Transform(truth, field),
			testutil.Sphere(300, 2),
		)

		results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 0.3, 3)
		require.NoError(t, err)
		for j := 1; j < len(results); j++ {
			assert.GreaterOrEqual(t, results[j-1].Score, results[j].Score)
		}
		if located(model, results, truth) {
			hits++
		}
	}
	assert.GreaterOrEqual(t, hits, trials-2, "found the object in %d of %d scenes", hits, trials)
}

func TestRecognitionWithNoise(t *testing.T) {
	model, field := train(t)
	rng := testutil.NewRNG(12)
	truth := rng.Pose(math.Pi, 2)
	scene := rng.Jitter(surfmatch.Transform(truth, field), 0.2*model.Params().DistanceStep)

	results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 0.2, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, located(model, results, truth))
}

func TestTwoInstances(t *testing.T) {
	model, field := train(t)

	first := pose.FromAxisAngle(r3Z, math.Pi/3)
	second := pose.FromAxisAngle(r3X, math.Pi/2)
	second.Translation.X = 12

	scene := testutil.Concat(
		surfmatch.Transform(first, field),
		surfmatch.Transform(second, field),
	)

	results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 0.3, 5)
	require.NoError(t, err)
	assert.True(t, located(model, results, first), "first instance")
	assert.True(t, located(model, results, second), "second instance")
}

func TestObjectAbsent(t *testing.T) {
	model, _ := train(t)
	scene := testutil.Sphere(400, 2)

	results, err := surfmatch.Match(context.Background(), model, scene, rel, 0.5, 0.8, 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.8)
	}
}
