// Package pose implements rigid transforms as a unit quaternion plus a
// translation.
//
// A Transform maps model space into scene space: p' = R*p + t. Matrices are
// 4x4 and row-major.
package pose
