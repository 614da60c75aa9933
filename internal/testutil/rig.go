package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
)

// Synthetic rig geometry. With HalfHeight 64 and Step 32 the voxel space
// is a 4x4x2 grid whose grid point (xp, yp, zp) sits at
// (-16+32xp, -64+32yp, 32zp).
const (
	RigHalfHeight = 64
	RigStep       = 32
	RigWidth      = 4
	RigHeight     = 4
)

var rigOrigin = [3]int{-RigHalfHeight / 4, -RigHalfHeight, 0}

// Axis is the viewing direction of an orthographic rig camera.
type Axis int

const (
	// AxisZ looks down on the floor from above: (xp, yp).
	AxisZ Axis = iota
	// AxisX looks along +X from far down the -X side: (yp, zp).
	AxisX
	// AxisY looks along +Y from far down the -Y side: (xp, zp).
	AxisY
)

const rigDistance = 10000

// GridPoint returns the world position of grid point (xp, yp, zp).
func GridPoint(xp, yp, zp int) r3.Vec {
	return r3.Vec{
		X: float64(rigOrigin[0] + xp*RigStep),
		Y: float64(rigOrigin[1] + yp*RigStep),
		Z: float64(rigOrigin[2] + zp*RigStep),
	}
}

// NewOrthoCamera returns a RigWidth x RigHeight camera projecting grid
// points one pixel per grid cell along axis.
func NewOrthoCamera(id string, axis Axis) *l1cameras.StaticCamera {
	return NewOrthoCameraSize(id, axis, image.Pt(RigWidth, RigHeight))
}

// NewOrthoCameraSize is NewOrthoCamera with an explicit image size.
// Smaller images leave some voxels without a valid projection.
func NewOrthoCameraSize(id string, axis Axis, size image.Point) *l1cameras.StaticCamera {
	cell := func(v float64, o int) int {
		return int(math.Floor((v - float64(o)) / RigStep))
	}
	var project l1cameras.ProjectFunc
	var location r3.Vec
	switch axis {
	case AxisX:
		location = r3.Vec{X: -rigDistance}
		project = func(p r3.Vec) (image.Point, bool) {
			return image.Pt(cell(p.Y, rigOrigin[1]), cell(p.Z, rigOrigin[2])), true
		}
	case AxisY:
		location = r3.Vec{Y: -rigDistance}
		project = func(p r3.Vec) (image.Point, bool) {
			return image.Pt(cell(p.X, rigOrigin[0]), cell(p.Z, rigOrigin[2])), true
		}
	default:
		location = r3.Vec{Z: rigDistance}
		project = func(p r3.Vec) (image.Point, bool) {
			return image.Pt(cell(p.X, rigOrigin[0]), cell(p.Y, rigOrigin[1])), true
		}
	}
	return l1cameras.NewStaticCamera(id, size, project, location)
}

// NewRig returns a top, side and front camera over the rig grid.
func NewRig() []*l1cameras.StaticCamera {
	return []*l1cameras.StaticCamera{
		NewOrthoCamera("top", AxisZ),
		NewOrthoCamera("side", AxisX),
		NewOrthoCamera("front", AxisY),
	}
}

// Cameras converts static cameras to the Camera interface.
func Cameras(cams []*l1cameras.StaticCamera) []l1cameras.Camera {
	out := make([]l1cameras.Camera, len(cams))
	for i, c := range cams {
		out[i] = c
	}
	return out
}

// PaintVoxel sets the foreground pixel under grid point (xp, yp, zp) in
// every camera that sees it.
func PaintVoxel(cams []*l1cameras.StaticCamera, xp, yp, zp int) {
	w := GridPoint(xp, yp, zp)
	for _, c := range cams {
		if pt, ok := c.Project(w); ok {
			c.Foreground().Set(pt.X, pt.Y, true)
		}
	}
}

// PaintColour colours the frame pixel under grid point (xp, yp, zp) in
// every camera that sees it.
func PaintColour(cams []*l1cameras.StaticCamera, xp, yp, zp int, col color.Color) {
	w := GridPoint(xp, yp, zp)
	for _, c := range cams {
		img, ok := c.Frame().(draw.Image)
		if !ok {
			continue
		}
		if pt, ok := c.Project(w); ok {
			img.Set(pt.X, pt.Y, col)
		}
	}
}

// ClearMasks gives every camera a fresh empty foreground mask.
func ClearMasks(cams []*l1cameras.StaticCamera) {
	for _, c := range cams {
		size := c.Size()
		c.SetForeground(l1cameras.NewMask(size.X, size.Y))
	}
}
