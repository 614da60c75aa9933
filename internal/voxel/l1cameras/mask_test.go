package l1cameras

import (
	"image"
	"image/color"
	"slices"
	"testing"
)

func TestMask_SetAt(t *testing.T) {
	m := NewMask(4, 3)
	if m.At(1, 1) {
		t.Fatal("new mask should be background")
	}

	m.Set(1, 1, true)
	if !m.At(1, 1) || m.Count() != 1 {
		t.Fatalf("after Set: At = %v, Count = %d", m.At(1, 1), m.Count())
	}

	// Out-of-range reads are background and writes are ignored.
	m.Set(10, 10, true)
	if m.At(10, 10) || m.At(-1, 0) {
		t.Error("out-of-range pixels should read as background")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d after out-of-range write, want 1", m.Count())
	}

	m.Set(1, 1, false)
	if m.Count() != 0 {
		t.Errorf("Count() = %d after clearing, want 0", m.Count())
	}
}

func TestMask_FillClips(t *testing.T) {
	m := NewMask(4, 4)
	m.Fill(image.Rect(2, 2, 10, 10), true)
	if m.Count() != 4 {
		t.Errorf("Count() = %d, want 4", m.Count())
	}
	if !m.At(3, 3) || m.At(1, 1) {
		t.Error("Fill should cover only the clipped rectangle")
	}
}

func TestMask_Clone(t *testing.T) {
	m := NewMask(2, 2)
	m.Set(0, 0, true)
	c := m.Clone()
	c.Set(1, 1, true)
	if m.Count() != 1 || c.Count() != 2 {
		t.Errorf("counts = %d, %d, want 1, 2", m.Count(), c.Count())
	}

	var nilMask *Mask
	if nilMask.Clone() != nil {
		t.Error("cloning a nil mask should return nil")
	}
}

func TestMask_DiffPoints(t *testing.T) {
	prev := NewMask(3, 2)
	prev.Set(0, 0, true)
	prev.Set(2, 1, true)

	cur := prev.Clone()
	cur.Set(0, 0, false) // on -> off
	cur.Set(1, 0, true)  // off -> on

	pts, err := cur.DiffPoints(prev)
	if err != nil {
		t.Fatalf("DiffPoints: %v", err)
	}
	if want := []image.Point{{0, 0}, {1, 0}}; !slices.Equal(pts, want) {
		t.Errorf("DiffPoints() = %v, want %v", pts, want)
	}

	same, err := cur.DiffPoints(cur.Clone())
	if err != nil {
		t.Fatalf("DiffPoints: %v", err)
	}
	if len(same) != 0 {
		t.Errorf("identical masks differ at %v", same)
	}

	if _, err := cur.DiffPoints(NewMask(2, 2)); err == nil {
		t.Error("DiffPoints should reject a mask of another size")
	}
	if _, err := cur.DiffPoints(nil); err == nil {
		t.Error("DiffPoints should reject a nil mask")
	}
}

func TestMaskFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: ForegroundThreshold})
	img.SetGray(2, 0, color.Gray{Y: ForegroundThreshold - 1})

	m := MaskFromImage(img)
	if m.Size() != image.Pt(3, 1) {
		t.Errorf("Size() = %v, want (3,1)", m.Size())
	}
	for x, want := range []bool{true, true, false} {
		if got := m.At(x, 0); got != want {
			t.Errorf("At(%d, 0) = %v, want %v", x, got, want)
		}
	}
}

func TestMaskFromImage_OffsetBounds(t *testing.T) {
	img := image.NewGray(image.Rect(5, 5, 7, 7))
	img.SetGray(6, 6, color.Gray{Y: 255})

	m := MaskFromImage(img)
	if m.Count() != 1 || !m.At(1, 1) {
		t.Errorf("offset image should map (6,6) to (1,1): count %d", m.Count())
	}
}
