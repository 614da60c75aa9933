package l1cameras

import (
	"fmt"
	"image"
	"image/color"
)

// ForegroundThreshold is the grey level at or above which a mask image
// pixel counts as foreground.
const ForegroundThreshold = 128

// Mask is a binary foreground image, one byte per pixel (0 or 1),
// row-major.
type Mask struct {
	Width, Height int
	Pix           []uint8
}

// NewMask allocates an empty (all background) mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// MaskFromImage thresholds img's luminance into a mask.
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y >= ForegroundThreshold {
				m.Pix[(y-b.Min.Y)*m.Width+(x-b.Min.X)] = 1
			}
		}
	}
	return m
}

// Size returns the mask dimensions as a point.
func (m *Mask) Size() image.Point { return image.Pt(m.Width, m.Height) }

// At reports whether (x, y) is foreground. Out-of-range coordinates are
// background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set marks (x, y) as foreground (on=true) or background.
func (m *Mask) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	var v uint8
	if on {
		v = 1
	}
	m.Pix[y*m.Width+x] = v
}

// Fill sets every pixel in r (clipped to the mask) to on.
func (m *Mask) Fill(r image.Rectangle, on bool) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, on)
		}
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	if m == nil {
		return nil
	}
	c := &Mask{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// DiffPoints returns the coordinates where m and prev disagree (the
// symmetric difference of the two foregrounds), in row-major order.
func (m *Mask) DiffPoints(prev *Mask) ([]image.Point, error) {
	if prev == nil {
		return nil, fmt.Errorf("previous mask is nil")
	}
	if m.Width != prev.Width || m.Height != prev.Height {
		return nil, fmt.Errorf("mask size mismatch: %dx%d vs %dx%d", m.Width, m.Height, prev.Width, prev.Height)
	}
	var pts []image.Point
	for i, v := range m.Pix {
		if (v != 0) != (prev.Pix[i] != 0) {
			pts = append(pts, image.Pt(i%m.Width, i/m.Width))
		}
	}
	return pts, nil
}
