package l1cameras

import (
	"image"

	"gonum.org/v1/gonum/spatial/r3"
)

// Projector maps world points onto a camera image plane.
type Projector interface {
	// Project returns the image coordinate of p. ok is false when the
	// camera has no projection for p (for example behind the image plane).
	// A returned point may still lie outside the image bounds.
	Project(p r3.Vec) (pt image.Point, ok bool)

	// Location is the camera centre in world coordinates.
	Location() r3.Vec
}

// Camera is the per-camera input consumed by the reconstruction core each
// frame. Implementations are owned by the caller; the core only reads
// from them, apart from clearing the refresh flag after a full recompute.
type Camera interface {
	Projector

	ID() string

	// Size is the image-plane size (width, height). It must not change
	// for the lifetime of a voxel space.
	Size() image.Point

	// Foreground is the current binary foreground mask.
	Foreground() *Mask

	// Frame is the current colour frame, same size as the mask.
	Frame() image.Image

	// RefreshRequested asks the visibility stage for a full recompute.
	RefreshRequested() bool

	// ClearRefresh acknowledges a refresh request.
	ClearRefresh()
}

// ProjectFunc adapts a plain function to the projection half of Projector.
type ProjectFunc func(p r3.Vec) (image.Point, bool)

// StaticCamera is an in-memory Camera whose mask and frame are set
// directly by the caller. Synthetic scenes and tests use it.
type StaticCamera struct {
	id         string
	size       image.Point
	project    ProjectFunc
	location   r3.Vec
	foreground *Mask
	frame      image.Image
	refresh    bool
}

// NewStaticCamera creates a camera with an empty foreground and a black
// frame of the given size.
func NewStaticCamera(id string, size image.Point, project ProjectFunc, location r3.Vec) *StaticCamera {
	return &StaticCamera{
		id:         id,
		size:       size,
		project:    project,
		location:   location,
		foreground: NewMask(size.X, size.Y),
		frame:      image.NewRGBA(image.Rect(0, 0, size.X, size.Y)),
	}
}

func (c *StaticCamera) ID() string                           { return c.id }
func (c *StaticCamera) Size() image.Point                    { return c.size }
func (c *StaticCamera) Location() r3.Vec                     { return c.location }
func (c *StaticCamera) Project(p r3.Vec) (image.Point, bool) { return c.project(p) }
func (c *StaticCamera) Foreground() *Mask                    { return c.foreground }
func (c *StaticCamera) Frame() image.Image                   { return c.frame }
func (c *StaticCamera) RefreshRequested() bool               { return c.refresh }
func (c *StaticCamera) ClearRefresh()                        { c.refresh = false }
func (c *StaticCamera) RequestRefresh()                      { c.refresh = true }
func (c *StaticCamera) SetFrame(img image.Image)             { c.frame = img }

// SetForeground replaces the current mask. The camera keeps m; callers
// must not mutate it afterwards if they want frame-to-frame deltas to be
// meaningful.
func (c *StaticCamera) SetForeground(m *Mask) { c.foreground = m }
