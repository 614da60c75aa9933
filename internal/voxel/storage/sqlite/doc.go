// Package sqlite contains the SQLite persistence adapter for the voxel
// reconstruction pipeline.
//
// It stores reconstruction sessions, the reference histograms captured
// on each session's first usable frame, and every identity's floor
// trail. The schema is versioned with golang-migrate; migrations are
// embedded in the binary.
//
// Domain layer packages (l1cameras through l5identity) must not import
// this package.
package sqlite
