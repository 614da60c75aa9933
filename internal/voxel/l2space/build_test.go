package l2space

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/testutil"
	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
)

func rigParams() Params {
	return Params{HalfHeight: testutil.RigHalfHeight, Step: testutil.RigStep, Workers: 2}
}

func buildRig(t *testing.T) *Space {
	t.Helper()
	s, err := Build(context.Background(), testutil.Cameras(testutil.NewRig()), rigParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func TestBuild_Dimensions(t *testing.T) {
	t.Parallel()

	s := buildRig(t)

	if s.NX != 4 || s.NY != 4 || s.NZ != 2 {
		t.Errorf("grid = %dx%dx%d, want 4x4x2", s.NX, s.NY, s.NZ)
	}
	if s.Len() != 32 {
		t.Errorf("Len() = %d, want 32", s.Len())
	}
	if s.CameraCount() != 3 {
		t.Errorf("CameraCount() = %d, want 3", s.CameraCount())
	}
	if s.Size != image.Pt(4, 4) {
		t.Errorf("Size = %v, want (4,4)", s.Size)
	}
	if s.Origin != [3]int{-16, -64, 0} {
		t.Errorf("Origin = %v, want [-16 -64 0]", s.Origin)
	}

	v := s.Voxels[s.VoxelIndex(1, 2, 1)]
	if v.X != 16 || v.Y != 0 || v.Z != 32 {
		t.Errorf("voxel (1,2,1) at (%d,%d,%d), want (16,0,32)", v.X, v.Y, v.Z)
	}
	if v.Label != -1 {
		t.Errorf("Label = %d, want -1", v.Label)
	}
	if v.Visible {
		t.Error("new voxel should not be visible")
	}

	c := s.Corners()
	if c[0].X != -16 {
		t.Errorf("corner 0 X = %v, want -16", c[0].X)
	}
	if want := (r3.Vec{X: 112, Y: 64, Z: 64}); c[6] != want {
		t.Errorf("corner 6 = %v, want %v", c[6], want)
	}
}

func TestBuild_ProjectionsAndRecords(t *testing.T) {
	t.Parallel()

	s := buildRig(t)

	for i := range s.Voxels {
		v := &s.Voxels[i]
		if len(v.Projections) != 3 || len(v.Valid) != 3 {
			t.Fatalf("voxel %d: %d projections, %d valid flags, want 3 each", i, len(v.Projections), len(v.Valid))
		}
		for c := range v.Valid {
			if !v.Valid[c] {
				t.Fatalf("voxel %d: camera %d projection invalid", i, c)
			}
			r := s.Record(c, v.Projections[c])
			if r == nil {
				t.Fatalf("voxel %d: no record for camera %d at %v", i, c, v.Projections[c])
			}
			if !slices.Contains(r.Voxels, int32(i)) {
				t.Errorf("voxel %d missing from camera %d record at %v", i, c, v.Projections[c])
			}
		}
	}

	// The top camera sees the two z layers through each floor pixel,
	// in ascending index order, upper layer nearer.
	top := s.PixelMaps[0].At(1, 2)
	want := []int32{s.VoxelIndex(1, 2, 0), s.VoxelIndex(1, 2, 1)}
	if diff := cmp.Diff(want, top.Voxels); diff != "" {
		t.Fatalf("top record voxels mismatch (-want +got):\n%s", diff)
	}
	if top.Distances[0] <= top.Distances[1] {
		t.Errorf("upper layer should be nearer: distances %v", top.Distances)
	}

	// The side camera sees four voxels along X per pixel.
	side := s.PixelMaps[1].At(2, 1)
	if side.Len() != 4 {
		t.Fatalf("side record length = %d, want 4", side.Len())
	}
	for i := 1; i < side.Len(); i++ {
		if side.Voxels[i-1] >= side.Voxels[i] {
			t.Errorf("side voxels not ascending: %v", side.Voxels)
		}
		if side.Distances[i-1] >= side.Distances[i] {
			t.Errorf("side distances not ascending: %v", side.Distances)
		}
	}

	// Pixels below the grid's z extent receive nothing.
	if n := s.PixelMaps[1].At(0, 3).Len(); n != 0 {
		t.Errorf("record below grid has %d voxels, want 0", n)
	}
	if r := s.PixelMaps[1].At(4, 0); r != nil {
		t.Errorf("At outside image = %v, want nil", r)
	}
}

func TestBuild_LogsProgress(t *testing.T) {
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.SetLogger(original) })
	var (
		mu     sync.Mutex
		logged []string
	)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	monitoring.SetDebug(false)

	buildRig(t)

	mu.Lock()
	defer mu.Unlock()
	found := slices.ContainsFunc(logged, func(line string) bool {
		return strings.Contains(line, "projected 2/2 slices")
	})
	if !found {
		t.Errorf("final progress line not logged without debug: %v", logged)
	}
}

func TestBuild_PartialCoverage(t *testing.T) {
	t.Parallel()

	top := testutil.NewOrthoCamera("top", testutil.AxisZ)
	// Shifted one pixel left, so the first grid column falls off the image.
	shifted := l1cameras.NewStaticCamera("shifted", image.Pt(4, 4), func(p r3.Vec) (image.Point, bool) {
		pt, ok := top.Project(p)
		return pt.Sub(image.Pt(1, 0)), ok
	}, top.Location())
	cams := []l1cameras.Camera{testutil.NewOrthoCamera("side", testutil.AxisX), shifted}

	s, err := Build(context.Background(), cams, rigParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i := range s.Voxels {
		v := &s.Voxels[i]
		if v.X == -16 {
			if v.Valid[1] {
				t.Errorf("voxel %d should be outside the shifted camera", i)
			}
			if v.Projections[1] != (image.Point{}) {
				t.Errorf("voxel %d: invalid projection stored as %v", i, v.Projections[1])
			}
		} else if !v.Valid[1] {
			t.Errorf("voxel %d should be inside the shifted camera", i)
		}
	}
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	rig := testutil.NewRig()
	one := rigParams()
	one.Workers = 1
	many := rigParams()
	many.Workers = 8

	a, err := Build(context.Background(), testutil.Cameras(rig), one)
	if err != nil {
		t.Fatalf("Build(1 worker): %v", err)
	}
	b, err := Build(context.Background(), testutil.Cameras(rig), many)
	if err != nil {
		t.Fatalf("Build(8 workers): %v", err)
	}
	if diff := cmp.Diff(a.PixelMaps, b.PixelMaps); diff != "" {
		t.Errorf("pixel maps differ between worker counts (-1 +8):\n%s", diff)
	}
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	small := testutil.NewOrthoCameraSize("small", testutil.AxisZ, image.Pt(2, 2))
	tests := []struct {
		name    string
		cameras []l1cameras.Camera
		params  Params
	}{
		{"no cameras", nil, rigParams()},
		{"size mismatch", []l1cameras.Camera{testutil.NewOrthoCamera("a", testutil.AxisZ), small}, rigParams()},
		{"zero step", testutil.Cameras(testutil.NewRig()), Params{HalfHeight: 64}},
		{"negative half height", testutil.Cameras(testutil.NewRig()), Params{HalfHeight: -1, Step: 1}},
		{"empty image", []l1cameras.Camera{testutil.NewOrthoCameraSize("e", testutil.AxisZ, image.Point{})}, rigParams()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.cameras, tt.params)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Build error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, testutil.Cameras(testutil.NewRig()), rigParams()); !errors.Is(err, context.Canceled) {
		t.Errorf("Build error = %v, want context.Canceled", err)
	}
}

func TestSpace_ClearVisible(t *testing.T) {
	t.Parallel()

	s := buildRig(t)
	s.Voxels[3].Visible = true
	s.Voxels[3].Label = 2
	if n := s.VisibleCount(); n != 1 {
		t.Fatalf("VisibleCount() = %d, want 1", n)
	}

	s.ClearVisible()
	if n := s.VisibleCount(); n != 0 {
		t.Errorf("VisibleCount() after clear = %d, want 0", n)
	}
	if s.Voxels[3].Label != -1 {
		t.Errorf("Label after clear = %d, want -1", s.Voxels[3].Label)
	}
}
