package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/pose"
)

var cfg = Config{DistanceTolerance: 0.1, AngleTolerance: 0.1}

func at(x, angle float64) pose.Transform {
	t := pose.FromAxisAngle(r3.Vec{Z: 1}, angle)
	t.Translation = r3.Vec{X: x}
	return t
}

func TestGroup(t *testing.T) {
	hyps := []Hypothesis{
		{Pose: at(0, 0), Weight: 3},
		{Pose: at(5, 1), Weight: 10},
		{Pose: at(0.05, 0.02), Weight: 1},
		{Pose: at(5.02, 1.03), Weight: 4},
		{Pose: at(0, 2), Weight: 2},
	}

	clusters, err := Group(hyps, cfg)
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	assert.Equal(t, 14.0, clusters[0].Weight)
	assert.Equal(t, 2, clusters[0].Members)
	assert.Equal(t, 1, clusters[0].Seed)
	assert.InDelta(t, (5*10+5.02*4)/14.0, clusters[0].Pose.Translation.X, 1e-12)
	wantAngle := (1*10 + 1.03*4) / 14.0
	assert.InDelta(t, 0, pose.RotationAngle(pose.AxisAngle(r3.Vec{Z: 1}, wantAngle), clusters[0].Pose.Rotation), 1e-3)

	assert.Equal(t, 4.0, clusters[1].Weight)
	assert.Equal(t, 0, clusters[1].Seed)

	assert.Equal(t, 2.0, clusters[2].Weight)
	assert.Equal(t, 1, clusters[2].Members)
}

func TestGroupTieKeepsGenerationOrder(t *testing.T) {
	hyps := []Hypothesis{
		{Pose: at(0, 0), Weight: 5},
		{Pose: at(0.08, 0), Weight: 5},
		{Pose: at(0.16, 0), Weight: 5},
	}

	clusters, err := Group(hyps, cfg)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	// The first hypothesis seeds and absorbs the second; the third is too far
	// from the seed.
	assert.Equal(t, 0, clusters[0].Seed)
	assert.Equal(t, 2, clusters[0].Members)
	assert.Equal(t, 2, clusters[1].Seed)
}

func TestGroupRotationTolerance(t *testing.T) {
	hyps := []Hypothesis{
		{Pose: at(0, 0), Weight: 2},
		{Pose: at(0, 0.2), Weight: 1},
	}
	clusters, err := Group(hyps, cfg)
	require.NoError(t, err)
	assert.Len(t, clusters, 2)
}

func TestGroupUsesCentre(t *testing.T) {
	// Equal rotations differing by 0.05 rad about a far centre move it by
	// about 0.5, so the poses do not merge.
	far := Config{DistanceTolerance: 0.1, AngleTolerance: 0.1, Centre: r3.Vec{X: 10}}
	hyps := []Hypothesis{
		{Pose: at(0, 0), Weight: 2},
		{Pose: at(0, 0.05), Weight: 1},
	}
	clusters, err := Group(hyps, far)
	require.NoError(t, err)
	assert.Len(t, clusters, 2)

	clusters, err = Group(hyps, cfg)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)
}

func TestGroupQuaternionSigns(t *testing.T) {
	a := at(0, 0.5)
	b := a
	b.Rotation.Real, b.Rotation.Kmag = -b.Rotation.Real, -b.Rotation.Kmag

	clusters, err := Group([]Hypothesis{{Pose: a, Weight: 1}, {Pose: b, Weight: 1}}, cfg)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 0, pose.RotationAngle(a.Rotation, clusters[0].Pose.Rotation), 1e-6)
}

func TestGroupEmptyAndInvalid(t *testing.T) {
	clusters, err := Group(nil, cfg)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	_, err = Group(nil, Config{DistanceTolerance: 1})
	assert.ErrorIs(t, err, ErrInvalidTolerance)
	_, err = Group(nil, Config{AngleTolerance: math.Pi})
	assert.ErrorIs(t, err, ErrInvalidTolerance)
}
