package l5identity

import "math"

// hungarian solves the square minimum-cost assignment problem with the
// Kuhn-Munkres algorithm in its shortest augmenting path form, O(n^3).
// It returns perm with perm[row] = column.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	inf := math.Inf(1)

	// Potentials and matching use 1-based indices; column 0 is the
	// virtual start of each augmenting path.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	owner := make([]int, n+1) // owner[col] = matched row
	prev := make([]int, n+1)  // previous column on the path
	slack := make([]float64, n+1)
	done := make([]bool, n+1)

	for row := 1; row <= n; row++ {
		owner[0] = row
		col := 0
		for j := range slack {
			slack[j] = inf
			done[j] = false
		}

		for owner[col] != 0 {
			done[col] = true
			r := owner[col]
			delta, next := inf, 0
			for j := 1; j <= n; j++ {
				if done[j] {
					continue
				}
				if reduced := cost[r-1][j-1] - u[r] - v[j]; reduced < slack[j] {
					slack[j] = reduced
					prev[j] = col
				}
				if slack[j] < delta {
					delta, next = slack[j], j
				}
			}
			for j := 0; j <= n; j++ {
				if done[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					slack[j] -= delta
				}
			}
			col = next
		}

		for col != 0 {
			p := prev[col]
			owner[col] = owner[p]
			col = p
		}
	}

	perm := make([]int, n)
	for j := 1; j <= n; j++ {
		perm[owner[j]-1] = j - 1
	}
	return perm
}
