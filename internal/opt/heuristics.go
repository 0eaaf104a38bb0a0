package opt

import (
	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// improveEpsilon is the minimum gain for a 2-opt move to count as an improvement.
const improveEpsilon = 1e-9

// ImproveOrder2Opt applies 2-opt to a visiting order over pts until a full pass
// finds no improving reversal. The first and last entries never move.
func ImproveOrder2Opt(pts []geo.Point, order []int) []int {
	best := append([]int(nil), order...)
	n := len(best)
	if n < 4 {
		return best
	}
	for {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				a, b := pts[best[i-1]], pts[best[i]]
				c, d := pts[best[k]], pts[best[k+1]]
				delta := geo.Distance(a, c) + geo.Distance(b, d) - geo.Distance(a, b) - geo.Distance(c, d)
				if delta < -improveEpsilon {
					twoOptSwap(best, i, k)
					improved = true
				}
			}
		}
		if !improved {
			return best
		}
	}
}

// twoOptSwap reverses ord[i..k] in place.
func twoOptSwap(ord []int, i, k int) {
	for ; i < k; i, k = i+1, k-1 {
		ord[i], ord[k] = ord[k], ord[i]
	}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Improve returns a 2-opt local optimum of path. Paths shorter than four points are returned unchanged.
func Improve(path []geo.Point) []geo.Point {
	order := ImproveOrder2Opt(path, identity(len(path)))
	out := make([]geo.Point, len(order))
	for i, idx := range order {
		out[i] = path[idx]
	}
	return out
}

// ImproveRoute applies Improve to r, keeping stop metadata aligned and refreshing distance and ETA.
func ImproveRoute(r Route, speed float64) Route {
	if len(r.Stops) < 4 {
		return r
	}
	order := ImproveOrder2Opt(model.Points(r.Stops), identity(len(r.Stops)))
	stops := make([]model.RouteStop, len(order))
	for i, idx := range order {
		stops[i] = r.Stops[idx]
	}
	d := geo.PathLength(model.Points(stops))
	return Route{Stops: stops, Distance: d, ETAMinutes: ETAMinutes(d, speed)}
}
