// Package sampling reduces point sets to a target spacing on a uniform voxel
// grid.
package sampling
