package l5identity

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/l4cluster"
)

var (
	// ErrReferencesCaptured is returned when references are captured twice.
	ErrReferencesCaptured = errors.New("reference histograms already captured")
	// ErrNoReferences is returned when tracking starts before capture.
	ErrNoReferences = errors.New("no reference histograms captured")
)

// State is the identity tracker's lifecycle stage.
type State int

const (
	// StateColdStart: nothing processed yet.
	StateColdStart State = iota
	// StateInitialClustering: waiting for a frame good enough to capture
	// the reference histograms from.
	StateInitialClustering
	// StateSteady: references captured, tracking every frame.
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateColdStart:
		return "cold_start"
	case StateInitialClustering:
		return "initial_clustering"
	case StateSteady:
		return "steady"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TrackResult is the outcome of one Track call.
type TrackResult struct {
	Assignment Assignment
	Histograms []Histogram
}

// Tracker keeps the K persistent identities: their reference histograms
// and floor trails. Track and CaptureReferences must be called from one
// goroutine; the accessors may be called from any.
type Tracker struct {
	k          int
	thresholds BinThresholds

	mu         sync.RWMutex
	state      State
	references []Histogram
	trails     [][]r2.Vec
}

// NewTracker creates a tracker for k identities.
func NewTracker(k int, t BinThresholds) (*Tracker, error) {
	if k < 1 {
		return nil, fmt.Errorf("identity count must be at least 1, got %d", k)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bin thresholds: %w", err)
	}
	return &Tracker{k: k, thresholds: t, trails: make([][]r2.Vec, k)}, nil
}

// K returns the number of identities.
func (t *Tracker) K() int { return t.k }

// State returns the current lifecycle stage.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Thresholds returns the colour bin thresholds.
func (t *Tracker) Thresholds() BinThresholds { return t.thresholds }

// BeginInitialClustering moves a cold tracker to StateInitialClustering.
// It has no effect in any other state.
func (t *Tracker) BeginInitialClustering() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateColdStart {
		t.state = StateInitialClustering
	}
}

// CaptureReferences stores refs as the permanent reference set and moves
// the tracker to StateSteady. References can only be captured once.
func (t *Tracker) CaptureReferences(refs []Histogram) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.references != nil {
		return ErrReferencesCaptured
	}
	if len(refs) != t.k {
		return fmt.Errorf("need %d reference histograms, got %d", t.k, len(refs))
	}
	t.references = append([]Histogram(nil), refs...)
	t.state = StateSteady
	return nil
}

// References returns a copy of the reference histograms, or nil before
// capture.
func (t *Tracker) References() []Histogram {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.references == nil {
		return nil
	}
	return append([]Histogram(nil), t.references...)
}

// Track matches the clusters in res to identities, writes each retained
// voxel's identity into its Label, and appends every cluster centre to
// its identity's trail.
func (t *Tracker) Track(space *l2space.Space, cameras []l1cameras.Camera, res *l4cluster.Result) (*TrackResult, error) {
	refs := t.References()
	if refs == nil {
		return nil, ErrNoReferences
	}
	if len(res.Centers) != t.k {
		return nil, fmt.Errorf("got %d clusters for %d identities", len(res.Centers), t.k)
	}

	hists := BuildHistograms(space, cameras, res.Retained, res.Labels, t.k, t.thresholds)
	a, err := Match(hists, refs)
	if err != nil {
		return nil, err
	}

	for i, vi := range res.Retained {
		space.Voxels[vi].Label = a.Identity[res.Labels[i]]
	}
	t.mu.Lock()
	for c, ctr := range res.Centers {
		id := a.Identity[c]
		t.trails[id] = append(t.trails[id], ctr)
	}
	t.mu.Unlock()
	return &TrackResult{Assignment: a, Histograms: hists}, nil
}

// Trail returns a copy of one identity's trail.
func (t *Tracker) Trail(id int) []r2.Vec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]r2.Vec(nil), t.trails[id]...)
}

// Trails returns a copy of every identity's trail, indexed by identity.
func (t *Tracker) Trails() [][]r2.Vec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]r2.Vec, t.k)
	for id, trail := range t.trails {
		out[id] = append([]r2.Vec(nil), trail...)
	}
	return out
}
