package opt

import (
	"math"
	"math/rand"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// Cluster partitions orders into at most k geographic groups with a fixed
// number of k-means iterations. The iteration count is a budget, not a
// convergence criterion. Initial centroids are k distinct order locations
// drawn from rng, so a fixed seed gives a fixed partition. Empty clusters are
// dropped; members keep their input order.
func Cluster(orders []*model.Order, k, iterations int, rng *rand.Rand) [][]*model.Order {
	if k <= 0 || len(orders) == 0 {
		return nil
	}
	if len(orders) <= k {
		out := make([][]*model.Order, len(orders))
		for i, o := range orders {
			out[i] = []*model.Order{o}
		}
		return out
	}
	if iterations <= 0 {
		iterations = 1
	}

	centroids := make([]geo.Point, k)
	for i, idx := range rng.Perm(len(orders))[:k] {
		centroids[i] = orders[idx].Location
	}

	assign := make([]int, len(orders))
	for it := 0; it < iterations; it++ {
		for i, o := range orders {
			assign[i] = nearestCentroid(centroids, o.Location)
		}
		members := make([][]geo.Point, k)
		for i, o := range orders {
			members[assign[i]] = append(members[assign[i]], o.Location)
		}
		for c := range centroids {
			if len(members[c]) > 0 {
				centroids[c] = geo.Centroid(members[c])
			}
		}
	}

	groups := make([][]*model.Order, k)
	for i, o := range orders {
		groups[assign[i]] = append(groups[assign[i]], o)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// nearestCentroid breaks ties toward the lowest index.
func nearestCentroid(centroids []geo.Point, p geo.Point) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range centroids {
		if d := geo.Distance(c, p); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
