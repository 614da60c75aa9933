package l4cluster

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
)

// ErrDegenerateInput is returned when fewer voxels than clusters remain
// after retention. Callers skip the rest of the frame.
var ErrDegenerateInput = errors.New("too few voxels to cluster")

// Defaults for clustering.
const (
	DefaultK                 = 4
	DefaultMaxIterations     = 10
	DefaultEpsilon           = 1.0
	DefaultAttempts          = 10
	DefaultRetentionRadiusSq = 202400 // about 450 grid units
	DefaultSeed              = 1
)

// Params configures a Clusterer.
type Params struct {
	K             int     // number of clusters
	MaxIterations int     // Lloyd iterations per attempt
	Epsilon       float64 // stop when no centre moves further than this
	Attempts      int     // restarts; the most compact result wins

	// RetentionRadiusSq is the squared floor distance from a previous
	// centre within which a voxel is kept.
	RetentionRadiusSq float64

	Seed uint64
}

// DefaultParams returns production clustering parameters.
func DefaultParams() Params {
	return Params{
		K:                 DefaultK,
		MaxIterations:     DefaultMaxIterations,
		Epsilon:           DefaultEpsilon,
		Attempts:          DefaultAttempts,
		RetentionRadiusSq: DefaultRetentionRadiusSq,
		Seed:              DefaultSeed,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.K < 1 {
		return fmt.Errorf("k must be at least 1, got %d", p.K)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", p.MaxIterations)
	}
	if p.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", p.Attempts)
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative, got %f", p.Epsilon)
	}
	if p.RetentionRadiusSq <= 0 {
		return fmt.Errorf("retention radius must be positive, got %f", p.RetentionRadiusSq)
	}
	return nil
}

// Result is one frame's partition of the retained voxels.
type Result struct {
	// Retained lists the voxels that survived retention; Labels[i] is
	// the cluster of Retained[i], in [0, K).
	Retained []int32
	Labels   []int

	// Centers holds the K floor-plane cluster centres.
	Centers []r2.Vec

	// Dropped counts visible voxels removed by retention.
	Dropped int

	// Compactness is the summed squared distance of every retained
	// voxel to its centre.
	Compactness float64
}

// Sizes returns the number of retained voxels in each cluster.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Centers))
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// Clusterer partitions visible voxels on the floor plane. Its random
// source is seeded once, so a fixed sequence of inputs always produces
// the same sequence of results. It is not safe for concurrent use.
type Clusterer struct {
	params Params
	rng    *rand.Rand
}

// NewClusterer validates p and creates a Clusterer.
func NewClusterer(p Params) (*Clusterer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster params: %w", err)
	}
	return &Clusterer{
		params: p,
		rng:    rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Params returns the clusterer's configuration.
func (c *Clusterer) Params() Params { return c.params }

// Cluster filters visible against the previous centres, clears Visible
// on every dropped voxel, and partitions the rest into K clusters. With
// no previous centres every visible voxel is kept.
func (c *Clusterer) Cluster(space *l2space.Space, visible []int32, previous []r2.Vec) (*Result, error) {
	retained := visible
	if len(previous) > 0 {
		retained = Retain(space, visible, previous, c.params.RetentionRadiusSq)
	}
	return c.partition(space, retained, len(visible)-len(retained))
}

// Refine clusters visible, keeps only the voxels near the resulting
// centres, and clusters those again. It is used once to seed tracking
// from an unfiltered first frame.
func (c *Clusterer) Refine(space *l2space.Space, visible []int32) (*Result, error) {
	first, err := c.partition(space, visible, 0)
	if err != nil {
		return nil, err
	}
	kept := Retain(space, visible, first.Centers, c.params.RetentionRadiusSq)
	monitoring.Debugf("cluster refine: kept %d of %d voxels", len(kept), len(visible))
	return c.partition(space, kept, len(visible)-len(kept))
}

// Retain returns the voxels of visible whose floor point lies strictly
// within radiusSq of at least one centre, and clears Visible on the rest.
func Retain(space *l2space.Space, visible []int32, centers []r2.Vec, radiusSq float64) []int32 {
	kept := make([]int32, 0, len(visible))
	for _, vi := range visible {
		v := &space.Voxels[vi]
		p := v.Floor()
		near := false
		for _, ctr := range centers {
			if r2.Norm2(r2.Sub(p, ctr)) < radiusSq {
				near = true
				break
			}
		}
		if near {
			kept = append(kept, vi)
		} else {
			v.Visible = false
		}
	}
	return kept
}

func (c *Clusterer) partition(space *l2space.Space, voxels []int32, dropped int) (*Result, error) {
	k := c.params.K
	if len(voxels) < k {
		return nil, fmt.Errorf("%w: %d voxels for %d clusters", ErrDegenerateInput, len(voxels), k)
	}

	points := make([]r2.Vec, len(voxels))
	for i, vi := range voxels {
		points[i] = space.Voxels[vi].Floor()
	}

	labels, centers, compactness := c.kmeans(points)
	return &Result{
		Retained:    append([]int32(nil), voxels...),
		Labels:      labels,
		Centers:     centers,
		Dropped:     dropped,
		Compactness: compactness,
	}, nil
}
