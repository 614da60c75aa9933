package l1cameras

import (
	"image"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestStaticCamera(t *testing.T) {
	cam := NewStaticCamera("s", image.Pt(2, 2), func(p r3.Vec) (image.Point, bool) {
		return image.Pt(int(p.X), int(p.Y)), true
	}, r3.Vec{Z: 9})

	if cam.ID() != "s" {
		t.Errorf("ID() = %q, want s", cam.ID())
	}
	if n := cam.Foreground().Count(); n != 0 {
		t.Errorf("new camera has %d foreground pixels", n)
	}
	if pt, ok := cam.Project(r3.Vec{X: 1, Y: 1}); !ok || pt != image.Pt(1, 1) {
		t.Errorf("Project() = %v, %v, want (1,1), true", pt, ok)
	}

	if cam.RefreshRequested() {
		t.Error("new static camera should not request a refresh")
	}
	cam.RequestRefresh()
	if !cam.RefreshRequested() {
		t.Error("RequestRefresh had no effect")
	}
	cam.ClearRefresh()
	if cam.RefreshRequested() {
		t.Error("ClearRefresh had no effect")
	}
}
