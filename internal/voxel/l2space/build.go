package l2space

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
)

// hit is one voxel projection waiting to be merged into a PixelRecord.
type hit struct {
	camera int32
	pixel  int32
	voxel  int32
	dist   float32
}

// Build samples the volume described by p and projects every grid point
// into every camera.
//
// Workers own whole z-slices, so each Voxel is written by exactly one
// goroutine. Pixel record appends are buffered per slice and merged in
// slice order after all workers finish, which leaves every record in
// ascending voxel index order. Camera projections must be safe for
// concurrent use.
func Build(ctx context.Context, cameras []l1cameras.Camera, p Params) (*Space, error) {
	size, err := validate(cameras, p)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	h, step := p.HalfHeight, p.Step
	xmin, ymin, zmin := -(h / 4), -h, 0
	s := &Space{
		Params: p,
		NX:     span(2*h, step),
		NY:     span(2*h, step),
		NZ:     span(h, step),
		Origin: [3]int{xmin, ymin, zmin},
		Size:   size,
	}
	s.corners = corners(float64(xmin), float64(ymin), float64(zmin), float64(xmin+2*h), float64(ymin+2*h), float64(zmin+h))

	nc := len(cameras)
	plane := s.NX * s.NY
	total := plane * s.NZ
	if total*nc > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d voxels x %d cameras overflows voxel indices", ErrConfiguration, total, nc)
	}

	s.Voxels = make([]Voxel, total)
	projections := make([]image.Point, total*nc)
	valid := make([]bool, total*nc)
	locations := make([]r3.Vec, nc)
	for c, cam := range cameras {
		locations[c] = cam.Location()
	}
	bounds := image.Rectangle{Max: size}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	reportEvery := max(1, s.NZ/10)

	slices := make([][]hit, s.NZ)
	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for zp := 0; zp < s.NZ; zp++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			z := zmin + zp*step
			var hits []hit
			for yp := 0; yp < s.NY; yp++ {
				y := ymin + yp*step
				for xp := 0; xp < s.NX; xp++ {
					i := zp*plane + yp*s.NX + xp
					v := &s.Voxels[i]
					v.X, v.Y, v.Z = xmin+xp*step, y, z
					v.Label = -1
					v.Projections = projections[i*nc : (i+1)*nc : (i+1)*nc]
					v.Valid = valid[i*nc : (i+1)*nc : (i+1)*nc]

					w := v.Point()
					for c, cam := range cameras {
						pt, ok := cam.Project(w)
						if !ok || !pt.In(bounds) {
							continue
						}
						v.Valid[c] = true
						v.Projections[c] = pt
						hits = append(hits, hit{
							camera: int32(c),
							pixel:  int32(pt.Y*size.X + pt.X),
							voxel:  int32(i),
							dist:   float32(r3.Norm(r3.Sub(w, locations[c]))),
						})
					}
				}
			}
			slices[zp] = hits

			if n := int(done.Add(1)); n%reportEvery == 0 || n == s.NZ {
				monitoring.Logf("voxel space: projected %d/%d slices", n, s.NZ)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build voxel space: %w", err)
	}

	s.PixelMaps = mergeHits(slices, nc, size)

	monitoring.Logf("voxel space: %d voxels (%dx%dx%d, step %d) over %d cameras built in %v",
		total, s.NX, s.NY, s.NZ, step, nc, time.Since(start).Round(time.Millisecond))
	return s, nil
}

func validate(cameras []l1cameras.Camera, p Params) (image.Point, error) {
	if len(cameras) == 0 {
		return image.Point{}, fmt.Errorf("%w: no cameras", ErrConfiguration)
	}
	if p.HalfHeight <= 0 || p.Step <= 0 {
		return image.Point{}, fmt.Errorf("%w: half height and step must be positive, got %d and %d",
			ErrConfiguration, p.HalfHeight, p.Step)
	}
	size := cameras[0].Size()
	if size.X <= 0 || size.Y <= 0 {
		return image.Point{}, fmt.Errorf("%w: camera %s has empty image plane %v", ErrConfiguration, cameras[0].ID(), size)
	}
	for _, cam := range cameras[1:] {
		if got := cam.Size(); got != size {
			return image.Point{}, fmt.Errorf("%w: camera %s image plane %v does not match %v",
				ErrConfiguration, cam.ID(), got, size)
		}
	}
	return size, nil
}

// span is the number of grid samples in [0, extent) at spacing step.
func span(extent, step int) int {
	return (extent + step - 1) / step
}

func corners(x0, y0, z0, x1, y1, z1 float64) [8]r3.Vec {
	return [8]r3.Vec{
		{X: x0, Y: y0, Z: z0}, {X: x1, Y: y0, Z: z0},
		{X: x1, Y: y1, Z: z0}, {X: x0, Y: y1, Z: z0},
		{X: x0, Y: y0, Z: z1}, {X: x1, Y: y0, Z: z1},
		{X: x1, Y: y1, Z: z1}, {X: x0, Y: y1, Z: z1},
	}
}

// mergeHits sizes every pixel record exactly, then fills the records in
// slice order.
func mergeHits(slices [][]hit, cameras int, size image.Point) []PixelMap {
	pixels := size.X * size.Y
	counts := make([][]int32, cameras)
	totals := make([]int, cameras)
	for c := range counts {
		counts[c] = make([]int32, pixels)
	}
	for _, hits := range slices {
		for _, h := range hits {
			counts[h.camera][h.pixel]++
			totals[h.camera]++
		}
	}

	maps := make([]PixelMap, cameras)
	for c := range maps {
		voxels := make([]int32, totals[c])
		dists := make([]float32, totals[c])
		records := make([]PixelRecord, pixels)
		off := 0
		for px, n := range counts[c] {
			end := off + int(n)
			records[px] = PixelRecord{Voxels: voxels[off:off:end], Distances: dists[off:off:end]}
			off = end
		}
		maps[c] = PixelMap{Width: size.X, Height: size.Y, Records: records}
	}

	for _, hits := range slices {
		for _, h := range hits {
			r := &maps[h.camera].Records[h.pixel]
			r.Voxels = append(r.Voxels, h.voxel)
			r.Distances = append(r.Distances, h.dist)
		}
	}
	return maps
}
