package l3hull

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
)

// ErrMask is returned when a camera supplies a missing or wrongly sized
// foreground mask.
var ErrMask = errors.New("foreground mask does not match image plane")

// DefaultChunkSize is the number of voxels evaluated per work item.
const DefaultChunkSize = 4096

// Mode selects how Evaluate decides which voxels to re-test.
type Mode int

const (
	// ModeAuto runs incrementally when previous-frame state exists and no
	// camera asked for a refresh, otherwise fully.
	ModeAuto Mode = iota
	// ModeFull re-tests every voxel.
	ModeFull
	// ModeIncremental re-tests only voxels under changed pixels plus
	// those visible last frame.
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	// Mode is the mode that actually ran, never ModeAuto.
	Mode Mode
	// Refresh is true when a camera requested a refresh this frame.
	Refresh bool
	// Visible lists every currently visible voxel. Full passes produce
	// ascending arena order; incremental passes produce candidate order.
	Visible []int32
	// Evaluated counts voxels that were re-tested.
	Evaluated int
	// ChangedPixels counts mask pixels that flipped since the last frame,
	// summed over cameras. Zero for full passes without previous state.
	ChangedPixels int
}

// Config controls Engine parallelism.
type Config struct {
	// Workers caps concurrent chunk evaluations. Zero means GOMAXPROCS.
	Workers int
	// ChunkSize is the number of voxels per work item. Zero means
	// DefaultChunkSize.
	ChunkSize int
}

// Engine evaluates voxel visibility frame by frame and remembers the
// state the incremental mode needs: the previous masks and the previous
// visible set. It is not safe for concurrent use.
type Engine struct {
	space   *l2space.Space
	cameras []l1cameras.Camera
	workers int
	chunk   int

	previous []*l1cameras.Mask
	visible  []int32

	// Generation stamps deduplicate incremental candidates without
	// clearing a per-voxel set every frame.
	stamp []uint32
	gen   uint32
}

// NewEngine creates an engine over space. cameras must be the cameras
// the space was built from, in the same order.
func NewEngine(space *l2space.Space, cameras []l1cameras.Camera, cfg Config) (*Engine, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: nil voxel space", l2space.ErrConfiguration)
	}
	if len(cameras) != space.CameraCount() {
		return nil, fmt.Errorf("%w: space built for %d cameras, got %d",
			l2space.ErrConfiguration, space.CameraCount(), len(cameras))
	}
	for _, cam := range cameras {
		if cam.Size() != space.Size {
			return nil, fmt.Errorf("%w: camera %s image plane %v does not match %v",
				l2space.ErrConfiguration, cam.ID(), cam.Size(), space.Size)
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Engine{
		space:   space,
		cameras: cameras,
		workers: workers,
		chunk:   chunk,
		stamp:   make([]uint32, space.Len()),
	}, nil
}

// HasPrevious reports whether previous-frame state is available.
func (e *Engine) HasPrevious() bool { return e.previous != nil }

// Visible returns a copy of the remembered visible set.
func (e *Engine) Visible() []int32 { return append([]int32(nil), e.visible...) }

// SetVisible replaces the remembered visible set, for example with the
// subset that survived cluster retention.
func (e *Engine) SetVisible(indices []int32) {
	e.visible = append(e.visible[:0], indices...)
}

// Reset discards previous-frame state so the next Auto evaluation runs
// a full pass.
func (e *Engine) Reset() {
	e.previous = nil
	e.visible = nil
}

// Evaluate updates every affected voxel's Visible flag from the current
// camera masks and returns the visible set.
func (e *Engine) Evaluate(ctx context.Context, mode Mode) (*Evaluation, error) {
	masks := make([]*l1cameras.Mask, len(e.cameras))
	refresh := false
	for c, cam := range e.cameras {
		m := cam.Foreground()
		if m == nil || m.Size() != e.space.Size {
			return nil, fmt.Errorf("camera %s: %w", cam.ID(), ErrMask)
		}
		masks[c] = m
		if cam.RefreshRequested() {
			refresh = true
		}
	}

	eval := &Evaluation{Refresh: refresh}
	var candidates []int32
	run := ModeFull
	switch {
	case mode == ModeFull || e.previous == nil:
	case mode == ModeIncremental:
		run = ModeIncremental
	case refresh:
	default:
		run = ModeIncremental
	}
	if run == ModeIncremental {
		var err error
		candidates, eval.ChangedPixels, err = e.candidates(masks)
		if err != nil {
			return nil, err
		}
		// An empty candidate set has nothing to update incrementally.
		if mode == ModeAuto && len(candidates) == 0 {
			run = ModeFull
		}
	}
	eval.Mode = run

	var err error
	if run == ModeFull {
		eval.Evaluated = e.space.Len()
		eval.Visible, err = e.evaluate(ctx, masks, e.space.Len(), func(k int) int32 { return int32(k) })
	} else {
		eval.Evaluated = len(candidates)
		eval.Visible, err = e.evaluate(ctx, masks, len(candidates), func(k int) int32 { return candidates[k] })
	}
	if err != nil {
		return nil, err
	}

	if run == ModeFull {
		for _, cam := range e.cameras {
			cam.ClearRefresh()
		}
	}
	if e.previous == nil {
		e.previous = make([]*l1cameras.Mask, len(masks))
	}
	for c, m := range masks {
		e.previous[c] = m.Clone()
	}
	e.visible = append(e.visible[:0], eval.Visible...)

	monitoring.Debugf("visibility: %s pass, %d evaluated, %d changed pixels, %d visible",
		run, eval.Evaluated, eval.ChangedPixels, len(eval.Visible))
	return eval, nil
}

// candidates returns the voxels referenced by any changed pixel of any
// camera, followed by the previously visible voxels, each once.
func (e *Engine) candidates(masks []*l1cameras.Mask) ([]int32, int, error) {
	e.gen++
	if e.gen == 0 {
		clear(e.stamp)
		e.gen = 1
	}

	var out []int32
	add := func(i int32) {
		if e.stamp[i] != e.gen {
			e.stamp[i] = e.gen
			out = append(out, i)
		}
	}

	changed := 0
	for c, m := range masks {
		pts, err := m.DiffPoints(e.previous[c])
		if err != nil {
			return nil, 0, fmt.Errorf("camera %s: %w", e.cameras[c].ID(), err)
		}
		changed += len(pts)
		for _, pt := range pts {
			for _, vi := range e.space.Record(c, pt).Voxels {
				add(vi)
			}
		}
	}
	for _, vi := range e.visible {
		add(vi)
	}
	return out, changed, nil
}

// evaluate runs the unanimity test over n voxels, chunked across
// workers. Per-chunk visible lists are concatenated in chunk order.
func (e *Engine) evaluate(ctx context.Context, masks []*l1cameras.Mask, n int, at func(k int) int32) ([]int32, error) {
	chunks := (n + e.chunk - 1) / e.chunk
	lists := make([][]int32, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for ci := 0; ci < chunks; ci++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo, hi := ci*e.chunk, min(n, (ci+1)*e.chunk)
			var vis []int32
			for k := lo; k < hi; k++ {
				vi := at(k)
				v := &e.space.Voxels[vi]
				v.Visible = Unanimous(v, masks)
				if v.Visible {
					vis = append(vis, vi)
				}
			}
			lists[ci] = vis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate visibility: %w", err)
	}

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	visible := make([]int32, 0, total)
	for _, l := range lists {
		visible = append(visible, l...)
	}
	return visible, nil
}

// Unanimous reports whether every camera with a valid projection of v
// sees foreground there. A voxel no camera can see is never visible.
func Unanimous(v *l2space.Voxel, masks []*l1cameras.Mask) bool {
	seen := 0
	for c, ok := range v.Valid {
		if !ok {
			continue
		}
		seen++
		pt := v.Projections[c]
		if !masks[c].At(pt.X, pt.Y) {
			return false
		}
	}
	return seen > 0
}
