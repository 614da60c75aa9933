package l4cluster

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// kmeans runs Attempts rounds of k-means++ seeded Lloyd iterations and
// keeps the most compact. Requires len(points) >= K.
func (c *Clusterer) kmeans(points []r2.Vec) ([]int, []r2.Vec, float64) {
	var (
		bestLabels  []int
		bestCenters []r2.Vec
		best        = math.Inf(1)
	)
	for range c.params.Attempts {
		labels, centers, compactness := c.lloyd(points)
		if compactness < best {
			bestLabels, bestCenters, best = labels, centers, compactness
		}
	}
	return bestLabels, bestCenters, best
}

func (c *Clusterer) lloyd(points []r2.Vec) ([]int, []r2.Vec, float64) {
	k := c.params.K
	centers := c.seed(points)
	labels := make([]int, len(points))
	assign(points, centers, labels)

	sums := make([]r2.Vec, k)
	counts := make([]int, k)
	for range c.params.MaxIterations {
		clear(sums)
		clear(counts)
		for i, p := range points {
			sums[labels[i]] = r2.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}

		next := make([]r2.Vec, k)
		for j := range next {
			if counts[j] > 0 {
				next[j] = r2.Scale(1/float64(counts[j]), sums[j])
			}
		}
		for j := range next {
			if counts[j] == 0 {
				// Move the point worst served by its centre into the
				// empty cluster.
				far := farthest(points, next, labels, counts)
				counts[labels[far]]--
				labels[far] = j
				counts[j] = 1
				next[j] = points[far]
			}
		}

		shift := 0.0
		for j := range centers {
			shift = math.Max(shift, r2.Norm(r2.Sub(next[j], centers[j])))
		}
		centers = next
		assign(points, centers, labels)
		if shift <= c.params.Epsilon {
			break
		}
	}

	compactness := 0.0
	for i, p := range points {
		compactness += r2.Norm2(r2.Sub(p, centers[labels[i]]))
	}
	return labels, centers, compactness
}

// seed picks K initial centres with k-means++: the first uniformly, each
// following one with probability proportional to its squared distance
// from the nearest centre chosen so far.
func (c *Clusterer) seed(points []r2.Vec) []r2.Vec {
	k := c.params.K
	centers := make([]r2.Vec, 0, k)
	centers = append(centers, points[c.rng.IntN(len(points))])

	d2 := make([]float64, len(points))
	for i, p := range points {
		d2[i] = r2.Norm2(r2.Sub(p, centers[0]))
	}
	for len(centers) < k {
		total := 0.0
		for _, d := range d2 {
			total += d
		}
		pick := 0
		if total > 0 {
			target := c.rng.Float64() * total
			for i, d := range d2 {
				target -= d
				if target < 0 {
					pick = i
					break
				}
				pick = i
			}
		} else {
			pick = c.rng.IntN(len(points))
		}
		ctr := points[pick]
		centers = append(centers, ctr)
		for i, p := range points {
			d2[i] = math.Min(d2[i], r2.Norm2(r2.Sub(p, ctr)))
		}
	}
	return centers
}

// assign labels every point with its nearest centre; ties go to the
// lower cluster index.
func assign(points, centers []r2.Vec, labels []int) {
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for j, ctr := range centers {
			if d := r2.Norm2(r2.Sub(p, ctr)); d < bestD {
				best, bestD = j, d
			}
		}
		labels[i] = best
	}
}

// farthest returns the point furthest from its own centre among
// clusters that can spare a member.
func farthest(points, centers []r2.Vec, labels, counts []int) int {
	far, farD := -1, -1.0
	for i, p := range points {
		if counts[labels[i]] < 2 {
			continue
		}
		if d := r2.Norm2(r2.Sub(p, centers[labels[i]])); d > farD {
			far, farD = i, d
		}
	}
	return far
}
