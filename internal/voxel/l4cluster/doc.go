// Package l4cluster owns Layer 4 (Floor clustering) of the voxel
// reconstruction data model.
//
// Responsibilities: temporal retention of visible voxels near the
// previous frame's cluster centres, floor projection, and K-means
// partitioning into a fixed number of groups.
// Key types: Clusterer, Params, Result.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
// No SQL/database code is allowed in this package.
package l4cluster
