package opt

import (
	"fmt"
	"iter"
	"time"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// Sample is one position along a flown route.
type Sample struct {
	Elapsed  time.Duration `json:"elapsed"`
	Minute   float64       `json:"minute"`
	Position geo.Point     `json:"position"`
	Leg      int           `json:"leg"`
	Arrived  bool          `json:"arrived"`
}

// MaxSamples bounds how finely a route may be sampled.
const MaxSamples = 10000

// FlightTime is how long the route takes at speed.
func FlightTime(stops []model.RouteStop, speed float64) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(geo.PathLength(model.Points(stops)) / speed * float64(time.Hour))
}

// CheckStep rejects steps that would make Trajectory yield more than
// MaxSamples positions for the route.
func CheckStep(stops []model.RouteStop, speed float64, step time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("%w: step must be positive", ErrTooManySamples)
	}
	flight := FlightTime(stops, speed)
	if n := float64(flight) / float64(step); n > MaxSamples {
		return fmt.Errorf("%w: %s flight at step %s gives %.0f samples, max %d", ErrTooManySamples, flight, step, n, MaxSamples)
	}
	return nil
}

// Trajectory samples the route every step while flying at speed (distance
// units per hour, matching ETAMinutes). The sequence is lazy, finite and can
// be ranged over any number of times; the final sample sits on the last stop
// with Arrived set.
func Trajectory(stops []model.RouteStop, speed float64, step time.Duration) iter.Seq[Sample] {
	pts := model.Points(stops)
	return func(yield func(Sample) bool) {
		if len(pts) == 0 {
			return
		}
		if len(pts) == 1 || speed <= 0 || step <= 0 {
			yield(Sample{Position: pts[0], Arrived: true})
			return
		}
		cum := make([]float64, len(pts))
		for i := 1; i < len(pts); i++ {
			cum[i] = cum[i-1] + geo.Distance(pts[i-1], pts[i])
		}
		total := cum[len(cum)-1]
		flight := time.Duration(total / speed * float64(time.Hour))
		for t := time.Duration(0); t < flight; t += step {
			pos, leg := positionAt(pts, cum, t.Hours()*speed)
			if !yield(Sample{Elapsed: t, Minute: t.Minutes(), Position: pos, Leg: leg}) {
				return
			}
		}
		yield(Sample{Elapsed: flight, Minute: flight.Minutes(), Position: pts[len(pts)-1], Leg: len(pts) - 2, Arrived: true})
	}
}

// positionAt interpolates the point reached after travelling dist along pts.
func positionAt(pts []geo.Point, cum []float64, dist float64) (geo.Point, int) {
	for i := 1; i < len(pts); i++ {
		if dist <= cum[i] {
			leg := cum[i] - cum[i-1]
			if leg == 0 {
				return pts[i], i - 1
			}
			return geo.Lerp(pts[i-1], pts[i], (dist-cum[i-1])/leg), i - 1
		}
	}
	return pts[len(pts)-1], len(pts) - 2
}
