// Package testutil provides synthetic oriented point clouds and pose helpers
// for tests and benchmarks.
//
// This package is intended for use in tests and benchmarks only.
//
// # Shapes
//
//	cube := testutil.CubeCorners(2)          // 8 corners, outward normals
//	surf := testutil.HeightField(24, 3)      // asymmetric smooth surface
//	ball := testutil.Sphere(500, 1)          // Fibonacci sphere
//
// # Poses
//
//	rng := testutil.NewRNG(seed)
//	g := rng.Pose(math.Pi, 5)
//	rotErr, transErr := testutil.PoseError(g, got)
package testutil
