package l2space

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrConfiguration is returned by Build when the cameras or parameters
// cannot describe a voxel space.
var ErrConfiguration = errors.New("invalid voxel space configuration")

// Default sampling parameters, in world units.
const (
	DefaultHalfHeight = 2048
	DefaultStep       = 32
)

// Params controls how the volume is sampled.
type Params struct {
	// HalfHeight (h) sets the volume: x in [-h/4, 7h/4), y in [-h, h),
	// z in [0, h).
	HalfHeight int
	// Step is the grid spacing along every axis.
	Step int
	// Workers caps concurrent slice builders. Zero means GOMAXPROCS.
	Workers int
}

// DefaultParams returns the production sampling parameters.
func DefaultParams() Params {
	return Params{HalfHeight: DefaultHalfHeight, Step: DefaultStep}
}

// Voxel is one grid point of the volume. Projections and Valid hold one
// entry per camera, in camera order; they are fixed after Build. Label
// and Visible are rewritten every frame by later layers.
type Voxel struct {
	X, Y, Z int

	Label   int
	Visible bool

	Projections []image.Point
	Valid       []bool
}

// Point returns the voxel position in world coordinates.
func (v *Voxel) Point() r3.Vec {
	return r3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// Floor returns the voxel's ground-plane position (X, Y).
func (v *Voxel) Floor() r2.Vec {
	return r2.Vec{X: float64(v.X), Y: float64(v.Y)}
}

// PixelRecord lists the voxels that project onto one pixel of one
// camera, with their distances from that camera. Voxels and Distances
// are index-aligned; entries are in ascending voxel index order.
type PixelRecord struct {
	Voxels    []int32
	Distances []float32
}

// Len returns the number of voxels in the record.
func (r *PixelRecord) Len() int { return len(r.Voxels) }

// PixelMap is the reverse index for one camera, one record per pixel in
// row-major order.
type PixelMap struct {
	Width, Height int
	Records       []PixelRecord
}

// At returns the record for pixel (x, y), or nil outside the image.
func (m *PixelMap) At(x, y int) *PixelRecord {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return nil
	}
	return &m.Records[y*m.Width+x]
}

// Space is the voxel arena plus the per-camera reverse indices. The
// arena owns every Voxel; other structures refer to voxels by index.
type Space struct {
	Params Params

	// Grid dimensions and the world coordinate of grid index 0.
	NX, NY, NZ int
	Origin     [3]int

	// Size is the shared image-plane size of every camera.
	Size image.Point

	Voxels    []Voxel
	PixelMaps []PixelMap // one per camera

	corners [8]r3.Vec
}

// CameraCount returns how many cameras the space was built for.
func (s *Space) CameraCount() int { return len(s.PixelMaps) }

// Len returns the number of voxels.
func (s *Space) Len() int { return len(s.Voxels) }

// VoxelIndex maps grid coordinates to an arena index.
func (s *Space) VoxelIndex(xp, yp, zp int) int32 {
	return int32(zp*s.NX*s.NY + yp*s.NX + xp)
}

// Corners returns the eight corners of the sampled volume.
func (s *Space) Corners() [8]r3.Vec { return s.corners }

// Record returns the pixel record of camera c at pt, or nil when pt is
// outside the image.
func (s *Space) Record(c int, pt image.Point) *PixelRecord {
	return s.PixelMaps[c].At(pt.X, pt.Y)
}

// ClearVisible resets the visible flag and label of every voxel.
func (s *Space) ClearVisible() {
	for i := range s.Voxels {
		s.Voxels[i].Visible = false
		s.Voxels[i].Label = -1
	}
}

// VisibleCount counts voxels currently flagged visible.
func (s *Space) VisibleCount() int {
	n := 0
	for i := range s.Voxels {
		if s.Voxels[i].Visible {
			n++
		}
	}
	return n
}
