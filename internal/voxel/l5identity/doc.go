// Package l5identity owns Layer 5 (Identity) of the voxel reconstruction
// data model.
//
// Responsibilities: colour histograms of each cluster sampled through
// the occlusion resolver, chi-squared matching of current clusters to
// the reference identities captured at start-up, per-voxel identity
// labels and per-identity floor trails.
// Key types: Bin, Histogram, Assignment, Tracker.
//
// Dependency rule: L5 may depend on L1-L4.
// No SQL/database code is allowed in this package.
package l5identity
