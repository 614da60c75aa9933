package testutil

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrthoCameraProjection(t *testing.T) {
	t.Parallel()

	rig := NewRig()
	w := GridPoint(1, 2, 1)

	tests := []struct {
		cam  int
		want image.Point
	}{
		{0, image.Pt(1, 2)},
		{1, image.Pt(2, 1)},
		{2, image.Pt(1, 1)},
	}
	for _, tt := range tests {
		pt, ok := rig[tt.cam].Project(w)
		assert.True(t, ok)
		assert.Equal(t, tt.want, pt, rig[tt.cam].ID())
	}
}

func TestPaintVoxelAndClear(t *testing.T) {
	t.Parallel()

	rig := NewRig()
	PaintVoxel(rig, 3, 0, 1)
	assert.True(t, rig[0].Foreground().At(3, 0))
	assert.True(t, rig[1].Foreground().At(0, 1))
	assert.True(t, rig[2].Foreground().At(3, 1))

	ClearMasks(rig)
	for _, c := range rig {
		assert.Zero(t, c.Foreground().Count())
	}
}

func TestPaintColour(t *testing.T) {
	t.Parallel()

	rig := NewRig()
	red := color.RGBA{R: 255, A: 255}
	PaintColour(rig, 0, 0, 0, red)
	r, g, b, _ := rig[0].Frame().At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})
	assert.Len(t, Cameras(rig), 3)
}
