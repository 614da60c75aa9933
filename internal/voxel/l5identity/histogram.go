package l5identity

import (
	"image"

	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/l3hull"
)

// Histogram counts colour samples per bin.
type Histogram [NumBins]int

// Total returns the number of samples in h.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// BuildHistograms samples each retained voxel's colour in every camera
// where it is the nearest visible voxel and counts it into its cluster's
// histogram. labels[i] is the cluster of retained[i].
func BuildHistograms(space *l2space.Space, cameras []l1cameras.Camera, retained []int32, labels []int, k int, t BinThresholds) []Histogram {
	hists := make([]Histogram, k)
	frames := make([]image.Image, len(cameras))
	for c, cam := range cameras {
		frames[c] = cam.Frame()
	}

	for i, vi := range retained {
		v := &space.Voxels[vi]
		for c, frame := range frames {
			if frame == nil || !v.Valid[c] || !l3hull.IsNearestVisible(space, vi, c) {
				continue
			}
			pt := v.Projections[c].Add(frame.Bounds().Min)
			h, s, val := HSV(frame.At(pt.X, pt.Y))
			hists[labels[i]][Classify(h, s, val, t)]++
		}
	}
	return hists
}

// ChiSquared returns the chi-squared distance between two histograms.
// Bins empty in both contribute nothing.
func ChiSquared(a, b Histogram) float64 {
	d := 0.0
	for i := range a {
		sum := a[i] + b[i]
		if sum == 0 {
			continue
		}
		diff := float64(a[i] - b[i])
		d += diff * diff / float64(sum)
	}
	return d
}
