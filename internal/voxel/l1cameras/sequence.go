package l1cameras

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/voxel.report/internal/fsutil"
)

// File name patterns inside a camera's frame directory.
const (
	MaskPattern  = "mask_%05d.png"
	FramePattern = "frame_%05d.png"
)

// SequenceCamera is a Camera backed by pre-rendered per-frame foreground
// masks and colour frames on disk, one directory per camera.
type SequenceCamera struct {
	*Pinhole

	id   string
	dir  string
	fs   fsutil.FileSystem
	size image.Point

	index      int
	foreground *Mask
	frame      image.Image
	refresh    bool
}

// NewSequenceCamera creates a camera reading frames from dir. No frame is
// loaded until Advance is called.
func NewSequenceCamera(fsys fsutil.FileSystem, dir string, cal CameraCalibration) (*SequenceCamera, error) {
	p, err := cal.Pinhole()
	if err != nil {
		return nil, err
	}
	return &SequenceCamera{
		Pinhole: p,
		id:      cal.ID,
		dir:     dir,
		fs:      fsys,
		size:    cal.Size(),
		index:   -1,
		refresh: true,
	}, nil
}

func (c *SequenceCamera) ID() string             { return c.id }
func (c *SequenceCamera) Size() image.Point      { return c.size }
func (c *SequenceCamera) Foreground() *Mask      { return c.foreground }
func (c *SequenceCamera) Frame() image.Image     { return c.frame }
func (c *SequenceCamera) RefreshRequested() bool { return c.refresh }
func (c *SequenceCamera) ClearRefresh()          { c.refresh = false }

// Index returns the currently loaded frame number, or -1.
func (c *SequenceCamera) Index() int { return c.index }

// FrameCount returns how many mask files exist in the camera directory.
func (c *SequenceCamera) FrameCount() (int, error) {
	matches, err := c.fs.Glob(filepath.Join(c.dir, "mask_*.png"))
	if err != nil {
		return 0, fmt.Errorf("camera %s: list masks: %w", c.id, err)
	}
	return len(matches), nil
}

// Advance loads frame n. Jumping anywhere other than the next frame
// requests a refresh, since the previous mask no longer describes the
// preceding moment.
func (c *SequenceCamera) Advance(n int) error {
	mask, err := c.decode(fmt.Sprintf(MaskPattern, n))
	if err != nil {
		return err
	}
	frame, err := c.decode(fmt.Sprintf(FramePattern, n))
	if err != nil {
		return err
	}
	if got := mask.Bounds().Size(); got != c.size {
		return fmt.Errorf("camera %s frame %d: mask size %v does not match calibration %v", c.id, n, got, c.size)
	}
	if got := frame.Bounds().Size(); got != c.size {
		return fmt.Errorf("camera %s frame %d: colour frame size %v does not match calibration %v", c.id, n, got, c.size)
	}

	if n != c.index+1 {
		c.refresh = true
	}
	c.index = n
	c.foreground = MaskFromImage(mask)
	c.frame = frame
	return nil
}

func (c *SequenceCamera) decode(name string) (image.Image, error) {
	path := filepath.Join(c.dir, name)
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("camera %s: open %s: %w", c.id, path, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("camera %s: decode %s: %w", c.id, path, err)
	}
	return img, nil
}

// Sequence advances several SequenceCameras in lockstep.
type Sequence struct {
	cameras []*SequenceCamera
	next    int
	end     int
}

// NewSequence plays frames [start, start+count) of every camera. A
// count of zero or less plays to the last frame every camera has.
func NewSequence(cameras []*SequenceCamera, start, count int) (*Sequence, error) {
	if len(cameras) == 0 {
		return nil, fmt.Errorf("sequence needs at least one camera")
	}
	if start < 0 {
		return nil, fmt.Errorf("start frame must be non-negative, got %d", start)
	}
	available := -1
	for _, c := range cameras {
		n, err := c.FrameCount()
		if err != nil {
			return nil, err
		}
		if available < 0 || n < available {
			available = n
		}
	}
	end := available
	if count > 0 {
		end = min(available, start+count)
	}
	if start >= end {
		return nil, fmt.Errorf("no frames to play from %d (%d available)", start, available)
	}
	return &Sequence{cameras: cameras, next: start, end: end}, nil
}

// Len returns how many frames remain.
func (s *Sequence) Len() int { return s.end - s.next }

// Cameras returns the cameras as the Camera interface, in order.
func (s *Sequence) Cameras() []Camera {
	out := make([]Camera, len(s.cameras))
	for i, c := range s.cameras {
		out[i] = c
	}
	return out
}

// Next loads the next frame on every camera and returns its number. It
// returns io.EOF after the last frame. A frame that fails to load is
// still consumed: its number is returned with the error and the following
// call moves on to the frame after it.
func (s *Sequence) Next(ctx context.Context) (int, error) {
	if s.next >= s.end {
		return 0, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := s.next
	s.next++
	for _, c := range s.cameras {
		if err := c.Advance(n); err != nil {
			return n, err
		}
	}
	return n, nil
}
