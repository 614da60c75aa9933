// Package l1cameras owns Layer 1 (Cameras) of the voxel reconstruction
// data model.
//
// Responsibilities: the Camera contract consumed by the reconstruction
// core (foreground mask, colour frame, 3D->2D projection, location and
// refresh flag), binary foreground masks, the pinhole projection model
// built from calibration files, and file-backed frame sequences.
// Key types: Camera, Mask, Pinhole, SequenceCamera, StaticCamera.
//
// Calibration itself and background subtraction happen upstream; this
// package only consumes their outputs.
//
// Dependency rule: L1 depends on nothing else under internal/voxel.
package l1cameras
