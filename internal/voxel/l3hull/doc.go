// Package l3hull owns Layer 3 (Visual hull) of the voxel reconstruction
// data model.
//
// Responsibilities: per-frame visibility evaluation by silhouette
// intersection (full scan or incremental scan driven by mask deltas)
// and per-pixel occlusion resolution against the current visible set.
// Key types: Engine, Evaluation, Mode.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
// No SQL/database code is allowed in this package.
package l3hull
