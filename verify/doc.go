// Package verify scores, refines and ranks clustered poses.
//
// The score of a pose is the fraction of transformed model points that have a
// scene point within ScoreDistance, optionally with normals agreeing within
// NormalAngle. Poses may first be refined by point-to-point ICP; a
// refinement is kept only when it does not lower the score. The scene points
// explained by each result are kept as a roaring bitmap.
package verify
