package l4cluster

import (
	"errors"
	"math"
	"slices"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
)

// floorSpace builds a bare voxel arena at the given floor points, all
// flagged visible, and returns it with the full index list.
func floorSpace(points ...r2.Vec) (*l2space.Space, []int32) {
	s := &l2space.Space{Voxels: make([]l2space.Voxel, len(points))}
	idx := make([]int32, len(points))
	for i, p := range points {
		s.Voxels[i] = l2space.Voxel{X: int(p.X), Y: int(p.Y), Label: -1, Visible: true}
		idx[i] = int32(i)
	}
	return s, idx
}

// blob returns a 3x3 patch of points spaced 32 apart around c.
func blob(c r2.Vec) []r2.Vec {
	var pts []r2.Vec
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			pts = append(pts, r2.Vec{X: c.X + float64(32*dx), Y: c.Y + float64(32*dy)})
		}
	}
	return pts
}

var corners = []r2.Vec{{X: 0, Y: 0}, {X: 2000, Y: 0}, {X: 0, Y: 2000}, {X: 2000, Y: 2000}}

func fourBlobs() []r2.Vec {
	var pts []r2.Vec
	for _, c := range corners {
		pts = append(pts, blob(c)...)
	}
	return pts
}

func sortedCenters(cs []r2.Vec) []r2.Vec {
	out := append([]r2.Vec(nil), cs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func newClusterer(t *testing.T, p Params) *Clusterer {
	t.Helper()
	c, err := NewClusterer(p)
	if err != nil {
		t.Fatalf("NewClusterer: %v", err)
	}
	return c
}

func checkCorners(t *testing.T, centers []r2.Vec) {
	t.Helper()
	got := sortedCenters(centers)
	for i, want := range corners {
		if math.Abs(got[i].X-want.X) > 1e-9 || math.Abs(got[i].Y-want.Y) > 1e-9 {
			t.Errorf("centre %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestCluster_FourBlobs(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, DefaultParams())
	s, visible := floorSpace(fourBlobs()...)

	res, err := c.Cluster(s, visible, nil)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if diff := cmp.Diff(visible, res.Retained); diff != "" {
		t.Errorf("Retained mismatch (-want +got):\n%s", diff)
	}
	if res.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", res.Dropped)
	}
	if diff := cmp.Diff([]int{9, 9, 9, 9}, res.Sizes()); diff != "" {
		t.Errorf("Sizes mismatch (-want +got):\n%s", diff)
	}
	checkCorners(t, res.Centers)

	// Every blob shares one label.
	for b := 0; b < 4; b++ {
		for i := 1; i < 9; i++ {
			if res.Labels[b*9] != res.Labels[b*9+i] {
				t.Errorf("blob %d split: labels %v", b, res.Labels[b*9:b*9+9])
				break
			}
		}
	}
	want := 0.0
	for _, p := range blob(r2.Vec{}) {
		want += r2.Norm2(p)
	}
	if math.Abs(res.Compactness-4*want) > 1e-6 {
		t.Errorf("Compactness = %v, want %v", res.Compactness, 4*want)
	}
}

func TestCluster_Reproducible(t *testing.T) {
	t.Parallel()

	pts := append(fourBlobs(), r2.Vec{X: 1000, Y: 1000}, r2.Vec{X: 1200, Y: 900})
	run := func() []*Result {
		c := newClusterer(t, DefaultParams())
		var out []*Result
		for range 3 {
			s, visible := floorSpace(pts...)
			res, err := c.Cluster(s, visible, nil)
			if err != nil {
				t.Fatalf("Cluster: %v", err)
			}
			out = append(out, res)
		}
		return out
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("runs with the same seed differ:\n%s", diff)
	}
}

func TestCluster_RetentionExcludesFarVoxels(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.K = 1
	c := newClusterer(t, p)

	s, visible := floorSpace(
		r2.Vec{X: 0, Y: 0},
		r2.Vec{X: 449, Y: 0}, // 201601 < 202400
		r2.Vec{X: 451, Y: 0}, // 203401
		r2.Vec{X: 0, Y: 1000},
		r2.Vec{X: 3000, Y: 3000},
	)
	previous := []r2.Vec{{X: 0, Y: 0}, {X: 3000, Y: 3100}}

	res, err := c.Cluster(s, visible, previous)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if diff := cmp.Diff([]int32{0, 1, 4}, res.Retained); diff != "" {
		t.Errorf("Retained mismatch (-want +got):\n%s", diff)
	}
	if res.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", res.Dropped)
	}
	for _, vi := range []int32{2, 3} {
		if s.Voxels[vi].Visible {
			t.Errorf("voxel %d should have been hidden by retention", vi)
		}
	}
	for _, vi := range res.Retained {
		if !s.Voxels[vi].Visible {
			t.Errorf("retained voxel %d should stay visible", vi)
		}
	}
}

func TestRetain_Monotonic(t *testing.T) {
	t.Parallel()

	// Growing the radius never removes a voxel that a smaller radius kept.
	pts := fourBlobs()
	centers := []r2.Vec{{X: 0, Y: 0}, {X: 2000, Y: 2000}}
	var prev []int32
	for _, r := range []float64{100, 1000, 5000, 202400, 1e7} {
		s, visible := floorSpace(pts...)
		kept := Retain(s, visible, centers, r)
		for _, vi := range prev {
			if !slices.Contains(kept, vi) {
				t.Errorf("radius %v dropped voxel %d kept by a smaller radius", r, vi)
			}
		}
		for _, vi := range visible {
			far := true
			for _, c := range centers {
				if r2.Norm2(r2.Sub(s.Voxels[vi].Floor(), c)) < r {
					far = false
				}
			}
			if s.Voxels[vi].Visible == far {
				t.Errorf("radius %v voxel %d: Visible = %v, far = %v", r, vi, s.Voxels[vi].Visible, far)
			}
		}
		prev = kept
	}
}

func TestCluster_Degenerate(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, DefaultParams())

	s, visible := floorSpace(r2.Vec{}, r2.Vec{X: 1}, r2.Vec{X: 2})
	if _, err := c.Cluster(s, visible, nil); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("three voxels: err = %v, want ErrDegenerateInput", err)
	}
	if _, err := c.Cluster(s, nil, nil); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("no voxels: err = %v, want ErrDegenerateInput", err)
	}

	// Enough voxels, but retention leaves too few.
	s, visible = floorSpace(fourBlobs()...)
	if _, err := c.Cluster(s, visible, []r2.Vec{{X: 9000, Y: 9000}}); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("all retained away: err = %v, want ErrDegenerateInput", err)
	}
	if n := s.VisibleCount(); n != 0 {
		t.Errorf("VisibleCount() = %d, want 0", n)
	}
}

func TestCluster_DuplicatePoints(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, DefaultParams())

	s, visible := floorSpace(make([]r2.Vec, 6)...)
	res, err := c.Cluster(s, visible, nil)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Centers) != 4 {
		t.Errorf("len(Centers) = %d, want 4", len(res.Centers))
	}
	if res.Compactness != 0 {
		t.Errorf("Compactness = %v, want 0", res.Compactness)
	}
	for i, l := range res.Labels {
		if l < 0 || l >= 4 {
			t.Errorf("label %d = %d, want [0,4)", i, l)
		}
	}
}

func TestRefine_DropsStrayVoxel(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, DefaultParams())

	pts := append(fourBlobs(), r2.Vec{X: 1000, Y: 1000})
	s, visible := floorSpace(pts...)
	stray := int32(len(pts) - 1)

	res, err := c.Refine(s, visible)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if slices.Contains(res.Retained, stray) {
		t.Error("stray voxel survived refinement")
	}
	if len(res.Retained) != 36 {
		t.Errorf("len(Retained) = %d, want 36", len(res.Retained))
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if s.Voxels[stray].Visible {
		t.Error("stray voxel should be hidden")
	}
	checkCorners(t, res.Centers)
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero k", func(p *Params) { p.K = 0 }},
		{"zero iterations", func(p *Params) { p.MaxIterations = 0 }},
		{"zero attempts", func(p *Params) { p.Attempts = 0 }},
		{"negative epsilon", func(p *Params) { p.Epsilon = -1 }},
		{"zero radius", func(p *Params) { p.RetentionRadiusSq = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if _, err := NewClusterer(p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("DefaultParams().Validate() = %v", err)
	}
}
