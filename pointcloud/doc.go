// Package pointcloud provides oriented point sets with spatial queries.
//
// A PointSet is immutable once built. Nearest-neighbour and radius queries
// are answered by a kd-tree that is built lazily on first use and is safe
// for concurrent readers.
package pointcloud
