// Package l2space owns Layer 2 (Voxel space) of the voxel reconstruction
// data model.
//
// Responsibilities: sampling the reconstruction volume on a regular grid,
// projecting every grid point into every camera once at startup, and
// building the per-pixel reverse index (pixel -> voxels with distances)
// used for incremental visibility and occlusion tests.
// Key types: Space, Voxel, PixelRecord, PixelMap, Params.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
// No SQL/database code is allowed in this package.
package l2space
