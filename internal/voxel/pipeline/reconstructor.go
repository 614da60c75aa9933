package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/timeutil"
	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/l3hull"
	"github.com/banshee-data/voxel.report/internal/voxel/l4cluster"
	"github.com/banshee-data/voxel.report/internal/voxel/l5identity"
)

// Config holds the tunables of every stage the Reconstructor drives.
type Config struct {
	Engine     l3hull.Config
	Cluster    l4cluster.Params
	Thresholds l5identity.BinThresholds

	// RefineInitial clusters the first frame twice, retaining only the
	// voxels near the first-pass centres before capturing references.
	RefineInitial bool

	// MaxCarriedFrames is how many consecutive degenerate steady frames
	// may carry the last centres forward. Once reached the centres are
	// dropped and the next frame clusters without retention. Zero keeps
	// them indefinitely.
	MaxCarriedFrames int
}

// DefaultMaxCarriedFrames is one second of carried centres at 25 fps.
const DefaultMaxCarriedFrames = 25

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Cluster:          l4cluster.DefaultParams(),
		Thresholds:       l5identity.DefaultBinThresholds(),
		RefineInitial:    true,
		MaxCarriedFrames: DefaultMaxCarriedFrames,
	}
}

// ErrFrameInput marks a frame whose camera input could not be loaded.
var ErrFrameInput = errors.New("frame input unavailable")

// degradedInput reports whether err only spoils the current frame.
func degradedInput(err error) bool {
	return errors.Is(err, ErrFrameInput) ||
		errors.Is(err, l3hull.ErrMask) ||
		errors.Is(err, l4cluster.ErrDegenerateInput)
}

// FrameResult is the outcome of one processed frame. Slices indexed by
// identity have K entries; Labels is parallel to Retained.
type FrameResult struct {
	Index     int
	Timestamp time.Time
	State     l5identity.State
	Mode      l3hull.Mode

	Visible  []int32
	Retained []int32
	Labels   []int

	// Centers holds each identity's floor centre for this frame. On a
	// degenerate steady frame it carries the previous centres forward.
	Centers []r2.Vec

	// Assignment is nil until the tracker reaches steady state.
	Assignment *l5identity.Assignment
	Total      float64

	// Histograms is indexed by identity. References is only set on the
	// frame that captured them.
	Histograms []l5identity.Histogram
	References []l5identity.Histogram

	Degenerate bool
	Duration   time.Duration
}

// FrameSink receives every processed frame. Sinks run synchronously in
// registration order after the frame completes; an error is logged and
// does not stop the pipeline.
type FrameSink interface {
	RecordFrame(ctx context.Context, res *FrameResult) error
}

// FrameSinkFunc adapts a plain function to FrameSink.
type FrameSinkFunc func(ctx context.Context, res *FrameResult) error

// RecordFrame calls f.
func (f FrameSinkFunc) RecordFrame(ctx context.Context, res *FrameResult) error { return f(ctx, res) }

// Snapshot is a copy of the reconstructor's outputs for concurrent
// readers.
type Snapshot struct {
	Latest     *FrameResult
	State      l5identity.State
	Trails     [][]r2.Vec
	References []l5identity.Histogram
	Frames     int
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithClock sets the clock used for frame timestamps and pacing.
func WithClock(c timeutil.Clock) Option {
	return func(r *Reconstructor) { r.clock = c }
}

// WithSinks appends frame sinks.
func WithSinks(sinks ...FrameSink) Option {
	return func(r *Reconstructor) { r.sinks = append(r.sinks, sinks...) }
}

// Reconstructor runs the per-frame state machine: the first usable frame
// captures one reference histogram per cluster, every later frame is
// matched against them. ProcessFrame is not safe for concurrent use;
// Snapshot may be called from any goroutine.
type Reconstructor struct {
	space     *l2space.Space
	cameras   []l1cameras.Camera
	cfg       Config
	engine    *l3hull.Engine
	clusterer *l4cluster.Clusterer
	tracker   *l5identity.Tracker
	clock     timeutil.Clock
	sinks     []FrameSink

	next    int
	centers []r2.Vec
	carried int

	mu     sync.RWMutex
	latest *FrameResult
	state  l5identity.State
	frames int
}

// NewReconstructor creates a reconstructor over a space built from
// cameras.
func NewReconstructor(space *l2space.Space, cameras []l1cameras.Camera, cfg Config, opts ...Option) (*Reconstructor, error) {
	if cfg.MaxCarriedFrames < 0 {
		return nil, fmt.Errorf("max carried frames must not be negative, got %d", cfg.MaxCarriedFrames)
	}
	engine, err := l3hull.NewEngine(space, cameras, cfg.Engine)
	if err != nil {
		return nil, err
	}
	clusterer, err := l4cluster.NewClusterer(cfg.Cluster)
	if err != nil {
		return nil, err
	}
	tracker, err := l5identity.NewTracker(cfg.Cluster.K, cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	r := &Reconstructor{
		space:     space,
		cameras:   cameras,
		cfg:       cfg,
		engine:    engine,
		clusterer: clusterer,
		tracker:   tracker,
		clock:     timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Space returns the voxel space being reconstructed.
func (r *Reconstructor) Space() *l2space.Space { return r.space }

// Tracker returns the identity tracker. Its accessors may be used while a
// frame is being processed.
func (r *Reconstructor) Tracker() *l5identity.Tracker { return r.tracker }

// K returns the number of tracked identities.
func (r *Reconstructor) K() int { return r.cfg.Cluster.K }

// ProcessFrame reconstructs the cameras' current frame and fans the
// result out to every sink. A frame whose masks are unusable is published
// as degenerate rather than returned as an error.
func (r *Reconstructor) ProcessFrame(ctx context.Context) (*FrameResult, error) {
	return r.process(ctx, nil)
}

// SkipFrame publishes the current frame as degenerate because its input
// could not be loaded.
func (r *Reconstructor) SkipFrame(ctx context.Context, cause error) (*FrameResult, error) {
	return r.process(ctx, fmt.Errorf("%w: %w", ErrFrameInput, cause))
}

func (r *Reconstructor) process(ctx context.Context, inputErr error) (*FrameResult, error) {
	start := r.clock.Now()
	res := &FrameResult{Index: r.next, Timestamp: start}
	r.next++

	r.tracker.BeginInitialClustering()
	err := inputErr
	if err == nil {
		if r.tracker.State() == l5identity.StateSteady {
			err = r.step(ctx, res)
		} else {
			err = r.initialise(ctx, res)
		}
	}
	if err != nil {
		if !degradedInput(err) {
			return nil, fmt.Errorf("frame %d: %w", res.Index, err)
		}
		r.degrade(res, err)
	}
	res.Duration = r.clock.Since(start)

	r.publish(res, r.tracker.State())
	for _, sink := range r.sinks {
		if err := sink.RecordFrame(ctx, res); err != nil {
			monitoring.Logf("frame %d: sink %T failed: %v", res.Index, sink, err)
		}
	}
	monitoring.Debugf("frame %d: %s %s pass, %d visible, %d retained, total %.3f, took %v",
		res.Index, res.State, res.Mode, len(res.Visible), len(res.Retained), res.Total, res.Duration)
	return res, nil
}

// degrade marks res degenerate. The last centres carry forward, trails
// are left alone and the engine starts the next frame from a full pass.
func (r *Reconstructor) degrade(res *FrameResult, cause error) {
	monitoring.Logf("frame %d: degenerate frame: %v", res.Index, cause)
	res.State = r.tracker.State()
	res.Degenerate = true
	res.Centers = append([]r2.Vec(nil), r.centers...)
	r.engine.Reset()

	if res.State != l5identity.StateSteady || r.centers == nil {
		return
	}
	r.carried++
	if r.cfg.MaxCarriedFrames > 0 && r.carried >= r.cfg.MaxCarriedFrames {
		monitoring.Logf("frame %d: %d degenerate frames in a row, dropping carried centres", res.Index, r.carried)
		r.centers = nil
		r.carried = 0
	}
}

// initialise clusters the whole visible hull and captures the reference
// histograms. Engine state is discarded afterwards so the first steady
// frame starts from a full pass without retention.
func (r *Reconstructor) initialise(ctx context.Context, res *FrameResult) error {
	res.State = l5identity.StateInitialClustering

	eval, err := r.engine.Evaluate(ctx, l3hull.ModeFull)
	if err != nil {
		return err
	}
	res.Mode = eval.Mode
	res.Visible = eval.Visible

	var cl *l4cluster.Result
	if r.cfg.RefineInitial {
		cl, err = r.clusterer.Refine(r.space, eval.Visible)
	} else {
		cl, err = r.clusterer.Cluster(r.space, eval.Visible, nil)
	}
	if err != nil {
		return err
	}

	refs := l5identity.BuildHistograms(r.space, r.cameras, cl.Retained, cl.Labels, r.K(), r.tracker.Thresholds())
	if err := r.tracker.CaptureReferences(refs); err != nil {
		return err
	}
	for i, vi := range cl.Retained {
		r.space.Voxels[vi].Label = cl.Labels[i]
	}
	res.Retained = cl.Retained
	res.Labels = cl.Labels
	res.Centers = cl.Centers
	res.Histograms = refs
	res.References = refs
	monitoring.Logf("frame %d: captured %d reference histograms from %d voxels", res.Index, len(refs), len(cl.Retained))

	r.engine.Reset()
	r.centers = nil
	return nil
}

// step runs one steady-state frame.
func (r *Reconstructor) step(ctx context.Context, res *FrameResult) error {
	res.State = l5identity.StateSteady

	eval, err := r.engine.Evaluate(ctx, l3hull.ModeAuto)
	if err != nil {
		return err
	}
	res.Mode = eval.Mode
	res.Visible = eval.Visible

	previous := r.centers
	if eval.Mode == l3hull.ModeFull && eval.Refresh {
		previous = nil
	}
	cl, err := r.clusterer.Cluster(r.space, eval.Visible, previous)
	if err != nil {
		return err
	}
	r.engine.SetVisible(cl.Retained)

	tr, err := r.tracker.Track(r.space, r.cameras, cl)
	if err != nil {
		return err
	}
	identity := tr.Assignment.Identity

	res.Retained = cl.Retained
	res.Labels = make([]int, len(cl.Labels))
	for i, c := range cl.Labels {
		res.Labels[i] = identity[c]
	}
	res.Centers = make([]r2.Vec, len(cl.Centers))
	res.Histograms = make([]l5identity.Histogram, len(cl.Centers))
	for c, ctr := range cl.Centers {
		res.Centers[identity[c]] = ctr
		res.Histograms[identity[c]] = tr.Histograms[c]
	}
	res.Assignment = &tr.Assignment
	res.Total = tr.Assignment.Total

	r.centers = res.Centers
	r.carried = 0
	return nil
}

func (r *Reconstructor) publish(res *FrameResult, state l5identity.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = res
	r.state = state
	r.frames++
}

// Snapshot returns a copy of every trail and the latest result. The
// result itself is shared and must be treated as read-only.
func (r *Reconstructor) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Latest:     r.latest,
		State:      r.state,
		Trails:     r.tracker.Trails(),
		References: r.tracker.References(),
		Frames:     r.frames,
	}
}
