package l5identity

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/combin"
)

// ExhaustiveLimit is the largest K matched by trying every permutation.
// Larger K use the Hungarian solver.
const ExhaustiveLimit = 6

// Assignment maps current clusters to reference identities.
type Assignment struct {
	// Identity[c] is the identity assigned to cluster c. It is a
	// permutation of 0..K-1.
	Identity []int
	// Distances[c][r] is the chi-squared distance from cluster c to
	// reference r.
	Distances [][]float64
	// Total is the summed distance of the chosen pairs.
	Total float64
}

// Match finds the bijection from current clusters to references with
// the lowest summed chi-squared distance. Among equally good bijections
// the lexicographically smallest wins.
func Match(current, references []Histogram) (Assignment, error) {
	k := len(current)
	if k == 0 || k != len(references) {
		return Assignment{}, fmt.Errorf("cannot match %d clusters to %d references", k, len(references))
	}

	dist := make([][]float64, k)
	for c := range dist {
		dist[c] = make([]float64, k)
		for r := range dist[c] {
			dist[c][r] = ChiSquared(current[c], references[r])
		}
	}

	var identity []int
	if k <= ExhaustiveLimit {
		identity = exhaustive(dist)
	} else {
		identity = hungarian(dist)
	}
	return Assignment{Identity: identity, Distances: dist, Total: total(dist, identity)}, nil
}

func total(dist [][]float64, perm []int) float64 {
	t := 0.0
	for c, r := range perm {
		t += dist[c][r]
	}
	return t
}

// exhaustive tries all K! permutations.
func exhaustive(dist [][]float64) []int {
	k := len(dist)
	var best []int
	bestTotal := math.Inf(1)
	for _, perm := range combin.Permutations(k, k) {
		t := total(dist, perm)
		if t < bestTotal || (t == bestTotal && slices.Compare(perm, best) < 0) {
			best, bestTotal = perm, t
		}
	}
	return best
}
