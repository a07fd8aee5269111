// Package cluster groups near-duplicate pose hypotheses.
//
// Clustering is greedy: hypotheses are visited by descending weight (ties
// keep their input order), the first unassigned one seeds a cluster and
// absorbs every unassigned hypothesis within tolerance of the seed. Two poses
// are within tolerance when they map the model centre to points at most
// DistanceTolerance apart and their rotations differ by at most
// AngleTolerance.
package cluster
