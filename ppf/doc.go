// Package ppf computes quantized point pair features.
//
// For an ordered pair of oriented points (p1, n1), (p2, n2) with d = p2 - p1
// the feature is
//
//	F = (|d|, angle(n1, d), angle(n2, d), angle(n1, n2))
//
// quantized with a distance step and an angle step of 2*pi/AngleBins. Angles
// lie in [0, pi], so only the first half of the angle bins is ever used by a
// descriptor; the full count is used for the alignment angle alpha.
//
// Alpha is measured in the local frame of the reference point p1: the rigid
// transform that moves p1 to the origin and rotates n1 onto +x. In that frame
// alpha = atan2(-z, y) of the transformed p2.
//
// Swapping the pair keeps the distance bucket and the normal-normal bucket,
// and exchanges the two normal-displacement angles for their supplements:
// Compute(p2, p1).N1D is the bucket of pi - angle(n2, d).
package ppf
